package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	historyFileName = ".davinci_history"
	historySize     = 500
)

// LineEditor reads console input with readline on a terminal and falls
// back to bufio.Scanner for piped input.
type LineEditor struct {
	interactive bool
	rl          *readline.Instance

	scanner *bufio.Scanner
	out     io.Writer
}

// NewLineEditor creates an editor over stdin/stdout. historyPath may be
// empty to use ~/.davinci_history.
func NewLineEditor(historyPath string) *LineEditor {
	if !term.IsTerminal(int(os.Stdin.Fd())) || os.Getenv("INSIDE_EMACS") != "" {
		return newScanEditor(os.Stdin, os.Stdout)
	}

	if historyPath == "" {
		historyPath = defaultHistoryPath()
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline unavailable (%v), using basic input\n", err)
		return newScanEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{interactive: true, rl: rl}
}

func newScanEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}

// GetLine reads one line. Ctrl-C and Ctrl-D both end input with io.EOF.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if !le.interactive {
		fmt.Fprint(le.out, prompt)
		if !le.scanner.Scan() {
			if err := le.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return le.scanner.Text(), nil
	}

	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed) //nolint:errcheck // history is best effort
	}
	return line, nil
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

// Close saves history and releases the terminal. Safe to call twice.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close() //nolint:errcheck // nothing useful to do on failure
		le.rl = nil
	}
}
