package fireplace

import (
	"fmt"
	"strconv"
)

// reduce applies one (property, value) pair to s.
//
// It reports whether s was mutated. A parse failure returns an error
// wrapping ErrMalformedValue and leaves s untouched. Acknowledgement-only
// and unknown properties return false with no error.
func reduce(s *State, prop Property, value string) (bool, error) {
	switch prop {
	case PropLamp:
		s.LampOn = value == valueOn
	case PropLED:
		s.LEDOn = value == valueOn
	case PropFlame:
		s.FlameOn = value == valueOn
	case PropHeatFan:
		s.FanOn = value == valueOn

	case PropLampLevel:
		level, err := parseLevel(prop, value)
		if err != nil {
			return false, err
		}
		s.LampLevel = level
		s.LampOn = level > 0

	case PropHeatFanSpeed:
		level, err := parseLevel(prop, value)
		if err != nil {
			return false, err
		}
		s.FanSpeed = level
		s.FanOn = level > 0

	case PropLEDColor:
		if value == valueOff {
			s.LEDOn = false
			return true, nil
		}
		color, err := ParseLEDColor(value)
		if err != nil {
			return false, err
		}
		s.LEDColor = color
		s.LEDOn = !color.IsZero()

	case PropLEDBrightness:
		return false, nil

	default:
		return false, nil
	}
	return true, nil
}

// parseLevel reads a native 0-10 level and scales it to 0-100. An
// out-of-order reply can deliver "ON" where a number was expected.
func parseLevel(prop Property, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedValue, prop, value)
	}
	if n < MinNativeLevel || n > MaxNativeLevel {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrMalformedValue, prop, n)
	}
	return FromNative(n), nil
}
