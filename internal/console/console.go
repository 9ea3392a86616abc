package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
)

const (
	defaultPrompt = "davinci> "
	recordTimeout = 2 * time.Second
)

// ErrUnknownInput is returned for lines that are neither a console command,
// a named command nor a protocol line.
var ErrUnknownInput = errors.New("unknown input")

// Fireplace is the coordinator surface the console drives.
type Fireplace interface {
	device.Commander
	Subscribe(fn func()) fireplace.ObserverID
	Unsubscribe(id fireplace.ObserverID)
	Diagnostics() fireplace.Diagnostics
	DeviceInfo() fireplace.DeviceInfo
	ScanInterval() time.Duration
	SetScanInterval(d time.Duration)
}

// LineReader supplies input lines; *LineEditor implements it.
type LineReader interface {
	GetLine(prompt string) (string, error)
}

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Options configures a Console. Fireplace and Out are required.
type Options struct {
	Fireplace  Fireplace
	CommandLog device.CommandLogRepository
	Out        io.Writer
	Prompt     string

	// Probe checks the fireplace is reachable; nil disables "probe".
	Probe func(ctx context.Context) error

	Logger Logger
}

// Console is an interactive fireplace shell.
type Console struct {
	fp     Fireplace
	caps   *device.Capabilities
	cmdLog device.CommandLogRepository
	probe  func(ctx context.Context) error
	prompt string
	logger Logger

	outMu sync.Mutex
	out   io.Writer
}

// New creates a console.
func New(opts Options) (*Console, error) {
	if opts.Fireplace == nil {
		return nil, errors.New("console: fireplace is required")
	}
	if opts.Out == nil {
		return nil, errors.New("console: output writer is required")
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}

	return &Console{
		fp:     opts.Fireplace,
		caps:   device.NewCapabilities(opts.Fireplace),
		cmdLog: opts.CommandLog,
		probe:  opts.Probe,
		prompt: opts.Prompt,
		logger: opts.Logger,
		out:    opts.Out,
	}, nil
}

// Run reads and executes lines until quit, end of input or ctx is
// cancelled. State changes are printed while it runs.
func (c *Console) Run(ctx context.Context, in LineReader) error {
	ctx, cancel := context.WithCancel(ctx)

	signal := make(chan struct{}, 1)
	id := c.fp.Subscribe(func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer c.fp.Unsubscribe(id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchState(ctx, signal)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	c.printf("DaVinci console for %s. Type 'help' for commands.\n", c.fp.Diagnostics().Address)

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult)

	// Reads cannot be interrupted, so the reader runs on its own goroutine
	// and is abandoned on cancellation.
	next := func() {
		go func() {
			line, err := in.GetLine(c.prompt)
			select {
			case lines <- readResult{line, err}:
			case <-ctx.Done():
			}
		}()
	}

	next()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-lines:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("reading input: %w", r.err)
			}

			quit, err := c.Execute(ctx, r.line)
			if err != nil {
				c.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			next()
		}
	}
}

// watchState prints each distinct snapshot until ctx is done.
func (c *Console) watchState(ctx context.Context, signal <-chan struct{}) {
	last := c.fp.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-signal:
			s := c.fp.State()
			if s == last {
				continue
			}
			last = s
			c.printf("state: %s\n", FormatState(s))
		}
	}
}

// Execute runs one input line. quit is true for quit/exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	word := strings.ToLower(fields[0])
	args := fields[1:]

	switch word {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		c.printHelp()
		return false, nil
	case "state":
		c.printf("%s\n", FormatState(c.fp.State()))
		return false, nil
	case "diag":
		c.printDiagnostics()
		return false, nil
	case "interval":
		return false, c.interval(args)
	case "probe":
		return false, c.runProbe(ctx)
	case "refresh":
		params := map[string]any{}
		if len(args) > 0 {
			params[device.ParamProperties] = args
		}
		return false, c.run(ctx, device.CmdRefresh, strings.Join(fields, " "), params)
	case "set", "get":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: %s needs a property", device.ErrInvalidParameter, fields[0])
		}
		raw := strings.ToUpper(strings.Join(fields, " "))
		return false, c.run(ctx, device.CmdRaw, raw, map[string]any{device.ParamLine: raw})
	}

	if !slices.Contains(device.CommandNames(), word) {
		return false, fmt.Errorf("%w: %q (try 'help')", ErrUnknownInput, fields[0])
	}

	params, err := parseParams(args)
	if err != nil {
		return false, err
	}
	return false, c.run(ctx, word, strings.Join(fields, " "), params)
}

// run executes a named command and records it in the command log.
func (c *Console) run(ctx context.Context, name, display string, params map[string]any) error {
	err := c.caps.Execute(name, params)
	c.record(ctx, display, err)
	if err != nil {
		return err
	}
	c.printf("queued: %s\n", display)
	return nil
}

func (c *Console) record(ctx context.Context, command string, execErr error) {
	if c.cmdLog == nil {
		return
	}

	entry := &device.CommandLogEntry{
		DeviceID: c.fp.DeviceInfo().Identifier,
		Command:  command,
		Origin:   device.OriginConsole,
		Accepted: execErr == nil,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := c.cmdLog.Record(recCtx, entry); err != nil && c.logger != nil {
		c.logger.Warn("failed to record console command", "command", command, "error", err)
	}
}

func (c *Console) interval(args []string) error {
	if len(args) == 0 {
		c.printf("scan interval: %s\n", c.fp.ScanInterval())
		return nil
	}

	secs, err := strconv.Atoi(args[0])
	if err != nil || !slices.Contains(config.ValidScanIntervals, secs) {
		return fmt.Errorf("interval must be one of %v seconds", config.ValidScanIntervals)
	}
	c.fp.SetScanInterval(time.Duration(secs) * time.Second)
	c.printf("scan interval: %s\n", c.fp.ScanInterval())
	return nil
}

func (c *Console) runProbe(ctx context.Context) error {
	if c.probe == nil {
		return errors.New("probe not available")
	}
	start := time.Now()
	if err := c.probe(ctx); err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	c.printf("reachable (%s)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// parseParams turns key=value arguments into command parameters. Whole
// numbers become ints; properties is split on commas.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", device.ErrInvalidParameter, arg)
		}
		key = strings.ToLower(key)

		switch {
		case key == device.ParamProperties:
			params[key] = strings.Split(value, ",")
		default:
			if n, err := strconv.Atoi(value); err == nil {
				params[key] = n
			} else {
				params[key] = value
			}
		}
	}
	return params, nil
}

func (c *Console) printHelp() {
	c.printf(`Protocol lines:
  GET <PROPERTY>            e.g. GET LAMP
  SET <PROPERTY> <VALUE>    e.g. SET FLAME ON, SET LEDCOLOR 255,0,0,0

Named commands (key=value parameters):
  %s

Console commands:
  state                     print the current state
  refresh [PROPERTY ...]    query all or some properties
  diag                      connection diagnostics
  interval [SECONDS]        show or change the scan interval
  probe                     test that the fireplace is reachable
  help                      this text
  quit                      leave the console
`, strings.Join(device.CommandNames(), " "))
}

func (c *Console) printDiagnostics() {
	d := c.fp.Diagnostics()
	c.printf("address:            %s\n", d.Address)
	c.printf("connected:          %t\n", d.Connected)
	c.printf("reconnect attempts: %d\n", d.ReconnectAttempts)
	if d.LastError != "" {
		c.printf("last error:         %s\n", d.LastError)
	}
	c.printf("queue:              %d/%d\n", d.QueueSize, d.QueueCapacity)
	c.printf("scan interval:      %s\n", d.ScanInterval)
	if d.PendingQuery != "" {
		c.printf("pending query:      %s\n", d.PendingQuery)
	}
	c.printf("commands sent:      %d (dropped %d, failed %d)\n", d.CommandsSent, d.CommandsDropped, d.CommandsFailed)
	c.printf("lines received:     %d (parse errors %d)\n", d.LinesReceived, d.ParseErrors)
	c.printf("observers:          %d\n", d.Observers)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// FormatState renders a snapshot on one line.
func FormatState(s fireplace.State) string {
	var b strings.Builder

	if s.Connected {
		b.WriteString("connected")
	} else {
		b.WriteString("disconnected")
	}

	fmt.Fprintf(&b, " lamp=%s", onOff(s.LampOn))
	if s.LampOn {
		fmt.Fprintf(&b, "(%d%%)", s.LampLevel)
	}
	fmt.Fprintf(&b, " led=%s", onOff(s.LEDOn))
	if s.LEDOn {
		fmt.Fprintf(&b, "(%s)", s.LEDColor.Wire())
	}
	fmt.Fprintf(&b, " flame=%s", onOff(s.FlameOn))
	fmt.Fprintf(&b, " fan=%s", onOff(s.FanOn))
	if s.FanOn {
		fmt.Fprintf(&b, "(%d%%)", s.FanSpeed)
	}
	return b.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
