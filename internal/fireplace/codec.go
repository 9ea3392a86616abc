package fireplace

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
)

// maxLineLength bounds a single inbound line. The longest legitimate reply
// is a LEDCOLOR tuple of roughly 40 bytes.
const maxLineLength = 1024

// LineKind classifies an inbound line.
type LineKind int

// Line classifications.
const (
	// LineIgnored covers empty lines and OK acknowledgements.
	LineIgnored LineKind = iota

	// LineError is an ERROR acknowledgement.
	LineError

	// LinePush is a well-formed HEY <property> <value> message.
	LinePush

	// LineMalformedPush is a HEY line without a value.
	LineMalformedPush

	// LineReply is a bare value, a reply to the outstanding GET.
	LineReply
)

// String returns the classification name for logging.
func (k LineKind) String() string {
	switch k {
	case LineIgnored:
		return "ignored"
	case LineError:
		return "error"
	case LinePush:
		return "push"
	case LineMalformedPush:
		return "malformed_push"
	case LineReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Line is one classified inbound message.
type Line struct {
	Kind LineKind

	// Property is set for LinePush.
	Property Property

	// Value is the property value for LinePush and the whole trimmed line
	// for LineReply.
	Value string

	// Raw is the trimmed line as received.
	Raw string
}

// ClassifyLine trims and classifies a decoded line. Bare replies are not
// correlated here; the session attaches the outstanding query property.
func ClassifyLine(raw string) Line {
	line := strings.TrimSpace(raw)
	switch {
	case line == "" || line == replyOK:
		return Line{Kind: LineIgnored, Raw: line}
	case line == replyError:
		return Line{Kind: LineError, Raw: line}
	case strings.HasPrefix(line, pushPrefix):
		rest := line[len(pushPrefix):]
		name, value, ok := strings.Cut(rest, " ")
		if !ok || name == "" {
			return Line{Kind: LineMalformedPush, Raw: line}
		}
		return Line{
			Kind:     LinePush,
			Property: Property(name),
			Value:    value,
			Raw:      line,
		}
	default:
		return Line{Kind: LineReply, Value: line, Raw: line}
	}
}

// FrameCommand appends the protocol terminator to an outbound command.
func FrameCommand(cmd string) []byte {
	b := make([]byte, 0, len(cmd)+1)
	b = append(b, cmd...)
	return append(b, terminator)
}

// lineReader splits the inbound stream on carriage returns. A read that
// times out mid-line keeps the partial bytes for the next call.
type lineReader struct {
	br      *bufio.Reader
	partial strings.Builder
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, maxLineLength)}
}

// ReadLine returns the next line without its terminator.
func (r *lineReader) ReadLine() (string, error) {
	chunk, err := r.br.ReadString(terminator)
	if err != nil {
		r.partial.WriteString(chunk)
		if r.partial.Len() > maxLineLength {
			r.partial.Reset()
			return "", ErrLineTooLong
		}
		return "", err
	}

	if r.partial.Len() > 0 {
		r.partial.WriteString(chunk)
		chunk = r.partial.String()
		r.partial.Reset()
	}
	if len(chunk) > maxLineLength {
		return "", ErrLineTooLong
	}
	return strings.TrimSuffix(chunk, string(terminator)), nil
}

// isTimeout reports whether err is a read deadline expiring.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
