package device

import (
	"fmt"
	"math"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

// Brightness and percentage scales.
const (
	MaxBrightness = 255
	MaxPercentage = 100
	maxChannel    = 255

	// brightnessPerStep converts 0-255 brightness to the 0-10 native scale.
	brightnessPerStep = 25.5
)

// Commander is the part of the coordinator the capabilities drive.
type Commander interface {
	SendCommand(cmd string) bool
	RefreshProperties(props ...fireplace.Property)
	State() fireplace.State
}

// send queues every command in order. It stops at the first drop.
func send(c Commander, cmds ...string) error {
	for _, cmd := range cmds {
		if !c.SendCommand(cmd) {
			return fmt.Errorf("%w: %s", ErrQueueFull, cmd)
		}
	}
	return nil
}

// Lamp is the dimmable lamp.
type Lamp struct {
	c Commander
}

// NewLamp creates the lamp capability.
func NewLamp(c Commander) *Lamp {
	return &Lamp{c: c}
}

// IsOn reports the lamp power state.
func (l *Lamp) IsOn() bool {
	return l.c.State().LampOn
}

// Brightness returns the 0-255 brightness (truncated), or false when the
// lamp is off. An on lamp never reports 0.
func (l *Lamp) Brightness() (int, bool) {
	s := l.c.State()
	if !s.LampOn {
		return 0, false
	}
	return max(1, s.LampLevel*MaxBrightness/MaxPercentage), true
}

// TurnOn switches the lamp on. With a brightness, the level is set first;
// a brightness that rounds to level 0 turns the lamp off instead.
func (l *Lamp) TurnOn(brightness *int) error {
	if brightness == nil {
		if err := send(l.c, fireplace.SetCommand(fireplace.PropLamp, fireplace.OnOff(true))); err != nil {
			return err
		}
		l.c.RefreshProperties(fireplace.PropLamp, fireplace.PropLampLevel)
		return nil
	}

	b := *brightness
	if b < 0 || b > MaxBrightness {
		return fmt.Errorf("%w: %d", ErrInvalidBrightness, b)
	}
	level := int(math.RoundToEven(float64(b) / brightnessPerStep))

	err := send(l.c,
		fireplace.SetCommand(fireplace.PropLampLevel, fmt.Sprint(level)),
		fireplace.SetCommand(fireplace.PropLamp, fireplace.OnOff(level != 0)),
	)
	if err != nil {
		return err
	}
	l.c.RefreshProperties(fireplace.PropLamp, fireplace.PropLampLevel)
	return nil
}

// TurnOff switches the lamp off.
func (l *Lamp) TurnOff() error {
	if err := send(l.c, fireplace.SetCommand(fireplace.PropLamp, fireplace.OnOff(false))); err != nil {
		return err
	}
	l.c.RefreshProperties(fireplace.PropLamp)
	return nil
}

// AccentLight is the RGBW accent LED strip.
type AccentLight struct {
	c Commander
}

// NewAccentLight creates the accent light capability.
func NewAccentLight(c Commander) *AccentLight {
	return &AccentLight{c: c}
}

// IsOn reports the LED power state.
func (a *AccentLight) IsOn() bool {
	return a.c.State().LEDOn
}

// Color returns the current color, or false when the LED is off.
func (a *AccentLight) Color() (fireplace.RGBW, bool) {
	s := a.c.State()
	if !s.LEDOn {
		return fireplace.RGBW{}, false
	}
	return s.LEDColor, true
}

// Brightness is the largest channel, at least 1 while on.
func (a *AccentLight) Brightness() (int, bool) {
	s := a.c.State()
	if !s.LEDOn {
		return 0, false
	}
	return max(1, s.LEDColor.Max()), true
}

// TurnOn switches the LED on. Without a color or brightness it keeps the
// last color. A brightness rescales the color so its brightest channel
// matches; an unknown (all-zero) color becomes white at that brightness.
// An all-zero result turns the LED off.
func (a *AccentLight) TurnOn(color *fireplace.RGBW, brightness *int) error {
	if color == nil && brightness == nil {
		if err := send(a.c, fireplace.SetCommand(fireplace.PropLED, fireplace.OnOff(true))); err != nil {
			return err
		}
		a.c.RefreshProperties(fireplace.PropLED, fireplace.PropLEDColor)
		return nil
	}

	rgbw := a.c.State().LEDColor
	if color != nil {
		if !validColor(*color) {
			return fmt.Errorf("%w: %s", ErrInvalidColor, color.Wire())
		}
		rgbw = *color
	}
	if brightness != nil {
		b := *brightness
		if b < 0 || b > MaxBrightness {
			return fmt.Errorf("%w: %d", ErrInvalidBrightness, b)
		}
		rgbw = ScaleColor(rgbw, b)
	}

	err := send(a.c,
		fireplace.SetCommand(fireplace.PropLEDColor, rgbw.Wire()),
		fireplace.SetCommand(fireplace.PropLED, fireplace.OnOff(!rgbw.IsZero())),
	)
	if err != nil {
		return err
	}
	a.c.RefreshProperties(fireplace.PropLED, fireplace.PropLEDColor)
	return nil
}

// TurnOff switches the LED off.
func (a *AccentLight) TurnOff() error {
	if err := send(a.c, fireplace.SetCommand(fireplace.PropLED, fireplace.OnOff(false))); err != nil {
		return err
	}
	a.c.RefreshProperties(fireplace.PropLED)
	return nil
}

// ScaleColor rescales c so its brightest channel equals brightness.
// Channels are truncated and capped at 255.
func ScaleColor(c fireplace.RGBW, brightness int) fireplace.RGBW {
	peak := c.Max()
	if peak == 0 {
		c.White = brightness
		return c
	}
	factor := float64(brightness) / float64(peak)
	scale := func(v int) int {
		return min(maxChannel, int(float64(v)*factor))
	}
	return fireplace.RGBW{
		Red:   scale(c.Red),
		Green: scale(c.Green),
		Blue:  scale(c.Blue),
		White: scale(c.White),
	}
}

func validColor(c fireplace.RGBW) bool {
	for _, v := range []int{c.Red, c.Green, c.Blue, c.White} {
		if v < 0 || v > maxChannel {
			return false
		}
	}
	return true
}

// Flame is the flame switch.
type Flame struct {
	c Commander
}

// NewFlame creates the flame capability.
func NewFlame(c Commander) *Flame {
	return &Flame{c: c}
}

// IsOn reports whether the flame is lit.
func (f *Flame) IsOn() bool {
	return f.c.State().FlameOn
}

// TurnOn lights the flame.
func (f *Flame) TurnOn() error { return f.set(true) }

// TurnOff extinguishes the flame.
func (f *Flame) TurnOff() error { return f.set(false) }

func (f *Flame) set(on bool) error {
	if err := send(f.c, fireplace.SetCommand(fireplace.PropFlame, fireplace.OnOff(on))); err != nil {
		return err
	}
	f.c.RefreshProperties(fireplace.PropFlame)
	return nil
}

// HeatFan is the heat fan. It has ten discrete speeds.
type HeatFan struct {
	c Commander
}

// SpeedCount is the number of discrete fan speeds.
const SpeedCount = 10

// NewHeatFan creates the heat fan capability.
func NewHeatFan(c Commander) *HeatFan {
	return &HeatFan{c: c}
}

// IsOn reports the fan power state.
func (h *HeatFan) IsOn() bool {
	return h.c.State().FanOn
}

// Percentage returns the fan speed on the 0-100 scale.
func (h *HeatFan) Percentage() int {
	return h.c.State().FanSpeed
}

// TurnOn starts the fan, at the given percentage if set. Without one the
// fireplace resumes its last speed.
func (h *HeatFan) TurnOn(percentage *int) error {
	if percentage != nil {
		return h.SetPercentage(*percentage)
	}
	if err := send(h.c, fireplace.SetCommand(fireplace.PropHeatFan, fireplace.OnOff(true))); err != nil {
		return err
	}
	h.c.RefreshProperties(fireplace.PropHeatFan)
	return nil
}

// TurnOff stops the fan.
func (h *HeatFan) TurnOff() error {
	if err := send(h.c, fireplace.SetCommand(fireplace.PropHeatFan, fireplace.OnOff(false))); err != nil {
		return err
	}
	h.c.RefreshProperties(fireplace.PropHeatFan)
	return nil
}

// SetPercentage sets the speed; 0 turns the fan off.
func (h *HeatFan) SetPercentage(p int) error {
	if p < 0 || p > MaxPercentage {
		return fmt.Errorf("%w: %d", ErrInvalidPercentage, p)
	}
	speed := int(math.RoundToEven(float64(p) / float64(SpeedCount)))

	err := send(h.c,
		fireplace.SetCommand(fireplace.PropHeatFanSpeed, fmt.Sprint(speed)),
		fireplace.SetCommand(fireplace.PropHeatFan, fireplace.OnOff(speed != 0)),
	)
	if err != nil {
		return err
	}
	h.c.RefreshProperties(fireplace.PropHeatFan, fireplace.PropHeatFanSpeed)
	return nil
}

// Capabilities bundles every capability of one fireplace.
type Capabilities struct {
	Lamp        *Lamp
	AccentLight *AccentLight
	Flame       *Flame
	HeatFan     *HeatFan

	c Commander
}

// NewCapabilities creates all capabilities over c.
func NewCapabilities(c Commander) *Capabilities {
	return &Capabilities{
		Lamp:        NewLamp(c),
		AccentLight: NewAccentLight(c),
		Flame:       NewFlame(c),
		HeatFan:     NewHeatFan(c),
		c:           c,
	}
}
