package device

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

// Command names understood by Execute.
const (
	CmdLampOn   = "lamp_on"
	CmdLampOff  = "lamp_off"
	CmdLampSet  = "lamp_set"
	CmdLEDOn    = "led_on"
	CmdLEDOff   = "led_off"
	CmdLEDSet   = "led_set"
	CmdFlameOn  = "flame_on"
	CmdFlameOff = "flame_off"
	CmdFanOn    = "fan_on"
	CmdFanOff   = "fan_off"
	CmdFanSet   = "fan_set"
	CmdRefresh  = "refresh"
	CmdRaw      = "raw"
)

// Parameter keys.
const (
	ParamBrightness = "brightness"
	ParamRGBW       = "rgbw"
	ParamPercentage = "percentage"
	ParamProperties = "properties"
	ParamLine       = "line"
)

type commandFunc func(c *Capabilities, params map[string]any) error

var commands = map[string]commandFunc{
	CmdLampOn: func(c *Capabilities, p map[string]any) error {
		b, err := optionalInt(p, ParamBrightness)
		if err != nil {
			return err
		}
		return c.Lamp.TurnOn(b)
	},
	CmdLampOff: func(c *Capabilities, _ map[string]any) error { return c.Lamp.TurnOff() },
	CmdLampSet: func(c *Capabilities, p map[string]any) error {
		b, err := requiredInt(p, ParamBrightness)
		if err != nil {
			return err
		}
		return c.Lamp.TurnOn(&b)
	},
	CmdLEDOn: func(c *Capabilities, p map[string]any) error {
		color, err := optionalColor(p)
		if err != nil {
			return err
		}
		b, err := optionalInt(p, ParamBrightness)
		if err != nil {
			return err
		}
		return c.AccentLight.TurnOn(color, b)
	},
	CmdLEDOff: func(c *Capabilities, _ map[string]any) error { return c.AccentLight.TurnOff() },
	CmdLEDSet: func(c *Capabilities, p map[string]any) error {
		color, err := optionalColor(p)
		if err != nil {
			return err
		}
		if color == nil {
			return fmt.Errorf("%w: %s is required", ErrInvalidParameter, ParamRGBW)
		}
		b, err := optionalInt(p, ParamBrightness)
		if err != nil {
			return err
		}
		return c.AccentLight.TurnOn(color, b)
	},
	CmdFlameOn:  func(c *Capabilities, _ map[string]any) error { return c.Flame.TurnOn() },
	CmdFlameOff: func(c *Capabilities, _ map[string]any) error { return c.Flame.TurnOff() },
	CmdFanOn: func(c *Capabilities, p map[string]any) error {
		pct, err := optionalInt(p, ParamPercentage)
		if err != nil {
			return err
		}
		return c.HeatFan.TurnOn(pct)
	},
	CmdFanOff: func(c *Capabilities, _ map[string]any) error { return c.HeatFan.TurnOff() },
	CmdFanSet: func(c *Capabilities, p map[string]any) error {
		pct, err := requiredInt(p, ParamPercentage)
		if err != nil {
			return err
		}
		return c.HeatFan.SetPercentage(pct)
	},
	CmdRefresh: func(c *Capabilities, p map[string]any) error {
		props, err := propertiesParam(p)
		if err != nil {
			return err
		}
		if len(props) == 0 {
			props = fireplace.RefreshOrder()
		}
		c.c.RefreshProperties(props...)
		return nil
	},
	CmdRaw: func(c *Capabilities, p map[string]any) error {
		line, _ := p[ParamLine].(string)
		line = strings.TrimSpace(line)
		if line == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidParameter, ParamLine)
		}
		return send(c.c, line)
	},
}

// CommandNames returns the command vocabulary, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a named command with JSON-style parameters. Numbers may be
// float64 (as decoded from JSON), int or json.Number.
func (c *Capabilities) Execute(name string, params map[string]any) error {
	fn, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return fn(c, params)
}

func optionalInt(params map[string]any, key string) (*int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := toInt(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, key, err)
	}
	return &v, nil
}

func requiredInt(params map[string]any, key string) (int, error) {
	v, err := optionalInt(params, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParameter, key)
	}
	return *v, nil
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a whole number", v)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

// optionalColor accepts [r,g,b,w] or the wire form "r,g,b,w".
func optionalColor(params map[string]any) (*fireplace.RGBW, error) {
	raw, ok := params[ParamRGBW]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: %s needs 4 channels", ErrInvalidParameter, ParamRGBW)
		}
		var ch [4]int
		for i, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %q", ErrInvalidParameter, ParamRGBW, i, part)
			}
			ch[i] = n
		}
		return &fireplace.RGBW{Red: ch[0], Green: ch[1], Blue: ch[2], White: ch[3]}, nil
	case []int:
		if len(v) != 4 {
			return nil, fmt.Errorf("%w: %s needs 4 channels", ErrInvalidParameter, ParamRGBW)
		}
		return &fireplace.RGBW{Red: v[0], Green: v[1], Blue: v[2], White: v[3]}, nil
	case []any:
		if len(v) != 4 {
			return nil, fmt.Errorf("%w: %s needs 4 channels", ErrInvalidParameter, ParamRGBW)
		}
		var ch [4]int
		for i, item := range v {
			n, err := toInt(item)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidParameter, ParamRGBW, i, err)
			}
			ch[i] = n
		}
		return &fireplace.RGBW{Red: ch[0], Green: ch[1], Blue: ch[2], White: ch[3]}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unexpected type %T", ErrInvalidParameter, ParamRGBW, raw)
	}
}

func propertiesParam(params map[string]any) ([]fireplace.Property, error) {
	raw, ok := params[ParamProperties]
	if !ok || raw == nil {
		return nil, nil
	}

	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be strings", ErrInvalidParameter, ParamProperties)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("%w: %s: unexpected type %T", ErrInvalidParameter, ParamProperties, raw)
	}

	props := make([]fireplace.Property, 0, len(names))
	for _, name := range names {
		p, err := fireplace.ParseProperty(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		props = append(props, p)
	}
	return props, nil
}
