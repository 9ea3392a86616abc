package fireplace

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Property is a protocol property name as it appears on the wire.
type Property string

// Protocol properties.
const (
	PropLamp          Property = "LAMP"
	PropLampLevel     Property = "LAMPLEVEL"
	PropLED           Property = "LED"
	PropLEDColor      Property = "LEDCOLOR"
	PropFlame         Property = "FLAME"
	PropHeatFan       Property = "HEATFAN"
	PropHeatFanSpeed  Property = "HEATFANSPEED"
	PropLEDBrightness Property = "LEDBRIGHTNESS"
)

// Wire tokens.
const (
	valueOn     = "ON"
	valueOff    = "OFF"
	replyOK     = "OK"
	replyError  = "ERROR"
	pushPrefix  = "HEY "
	verbSet     = "SET"
	verbGet     = "GET"
	terminator  = '\r'
	nativeScale = 10
)

// Native level bounds.
const (
	MinNativeLevel = 0
	MaxNativeLevel = 10
)

// refreshOrder is the full poll list. A subsystem's power property precedes
// its level property so level-driven power inference never runs against a
// stale power flag.
var refreshOrder = []Property{
	PropLamp,
	PropLampLevel,
	PropLED,
	PropLEDColor,
	PropFlame,
	PropHeatFan,
	PropHeatFanSpeed,
}

// RefreshOrder returns a copy of the full ordered poll list.
func RefreshOrder() []Property {
	out := make([]Property, len(refreshOrder))
	copy(out, refreshOrder)
	return out
}

// ParseProperty normalises a property name and checks it against the
// protocol vocabulary.
func ParseProperty(s string) (Property, error) {
	p := Property(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProperty, s)
	}
	return p, nil
}

// Valid reports whether p belongs to the protocol vocabulary.
func (p Property) Valid() bool {
	switch p {
	case PropLamp, PropLampLevel, PropLED, PropLEDColor, PropFlame,
		PropHeatFan, PropHeatFanSpeed, PropLEDBrightness:
		return true
	}
	return false
}

// SetCommand builds "SET <property> <value>".
func SetCommand(p Property, value string) string {
	return verbSet + " " + string(p) + " " + value
}

// GetCommand builds "GET <property>".
func GetCommand(p Property) string {
	return verbGet + " " + string(p)
}

// OnOff renders a power flag as the wire token.
func OnOff(on bool) string {
	if on {
		return valueOn
	}
	return valueOff
}

// queryProperty returns the property a GET command asks for. Mutations
// and anything unparseable report false.
func queryProperty(cmd string) (Property, bool) {
	fields := strings.Fields(cmd)
	if len(fields) != 2 || !strings.EqualFold(fields[0], verbGet) {
		return "", false
	}
	return Property(strings.ToUpper(fields[1])), true
}

// FromNative converts a native 0-10 level to the 0-100 scale.
func FromNative(native int) int {
	return native * nativeScale
}

// ToNative converts a 0-100 level to the native 0-10 scale, rounding half
// to even and clamping to the native range.
func ToNative(level int) int {
	n := int(math.RoundToEven(float64(level) / nativeScale))
	return clamp(n, MinNativeLevel, MaxNativeLevel)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RGBW is the accent light colour, each channel 0-255.
type RGBW struct {
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
	White int `json:"white"`
}

// IsZero reports whether every channel is off.
func (c RGBW) IsZero() bool {
	return c.Red == 0 && c.Green == 0 && c.Blue == 0 && c.White == 0
}

// Max returns the brightest channel value.
func (c RGBW) Max() int {
	return max(c.Red, c.Green, c.Blue, c.White)
}

// Wire renders the colour for SET LEDCOLOR ("r,g,b,w").
func (c RGBW) Wire() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.Red, c.Green, c.Blue, c.White)
}

// Clamp limits every channel to 0-255.
func (c RGBW) Clamp() RGBW {
	return RGBW{
		Red:   clamp(c.Red, 0, 255),
		Green: clamp(c.Green, 0, 255),
		Blue:  clamp(c.Blue, 0, 255),
		White: clamp(c.White, 0, 255),
	}
}

var ledColorPattern = regexp.MustCompile(`^RED:\s*(\d+)\s+GREEN:\s*(\d+)\s+BLUE:\s*(\d+)\s+WHITE:\s*(\d+)`)

// ParseLEDColor parses a LEDCOLOR reply such as
// "RED: 255 GREEN: 128 BLUE: 0 WHITE: 50". The OFF sentinel is not a
// colour and is rejected here; callers check for it first.
func ParseLEDColor(s string) (RGBW, error) {
	m := ledColorPattern.FindStringSubmatch(s)
	if m == nil {
		return RGBW{}, fmt.Errorf("%w: LEDCOLOR %q", ErrMalformedValue, s)
	}

	var ch [4]int
	for i := range ch {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return RGBW{}, fmt.Errorf("%w: LEDCOLOR channel %q", ErrMalformedValue, m[i+1])
		}
		ch[i] = v
	}
	return RGBW{Red: ch[0], Green: ch[1], Blue: ch[2], White: ch[3]}, nil
}

// Backoff returns the reconnect delay for the given attempt:
// min(base * 2^attempt, limit).
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d >= limit {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}
