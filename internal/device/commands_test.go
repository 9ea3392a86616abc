package device

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  string
		want    []string
	}{
		{"lamp on", CmdLampOn, `{}`, []string{"SET LAMP ON"}},
		{"lamp on with brightness", CmdLampOn, `{"brightness": 255}`, []string{"SET LAMPLEVEL 10", "SET LAMP ON"}},
		{"lamp set", CmdLampSet, `{"brightness": 127}`, []string{"SET LAMPLEVEL 5", "SET LAMP ON"}},
		{"lamp off", CmdLampOff, `{}`, []string{"SET LAMP OFF"}},
		{"led set array", CmdLEDSet, `{"rgbw": [255, 0, 0, 0]}`, []string{"SET LEDCOLOR 255,0,0,0", "SET LED ON"}},
		{"led set wire string", CmdLEDSet, `{"rgbw": "0,255,0,10"}`, []string{"SET LEDCOLOR 0,255,0,10", "SET LED ON"}},
		{"led on scaled", CmdLEDOn, `{"rgbw": [0, 0, 51, 17], "brightness": 255}`, []string{"SET LEDCOLOR 0,0,255,85", "SET LED ON"}},
		{"led off", CmdLEDOff, `{}`, []string{"SET LED OFF"}},
		{"flame on", CmdFlameOn, `{}`, []string{"SET FLAME ON"}},
		{"flame off", CmdFlameOff, `{}`, []string{"SET FLAME OFF"}},
		{"fan on", CmdFanOn, `{}`, []string{"SET HEATFAN ON"}},
		{"fan on with percentage", CmdFanOn, `{"percentage": 40}`, []string{"SET HEATFANSPEED 4", "SET HEATFAN ON"}},
		{"fan set", CmdFanSet, `{"percentage": 0}`, []string{"SET HEATFANSPEED 0", "SET HEATFAN OFF"}},
		{"fan off", CmdFanOff, `{}`, []string{"SET HEATFAN OFF"}},
		{"raw", CmdRaw, `{"line": " GET FLAME "}`, []string{"GET FLAME"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params map[string]any
			if err := json.Unmarshal([]byte(tt.params), &params); err != nil {
				t.Fatalf("bad test params: %v", err)
			}
			c := &fakeCommander{}
			if err := NewCapabilities(c).Execute(tt.command, params); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !reflect.DeepEqual(c.commands, tt.want) {
				t.Errorf("commands = %v, want %v", c.commands, tt.want)
			}
		})
	}
}

func TestExecuteRefresh(t *testing.T) {
	c := &fakeCommander{}
	caps := NewCapabilities(c)

	if err := caps.Execute(CmdRefresh, nil); err != nil {
		t.Fatalf("Execute(refresh) error = %v", err)
	}
	if err := caps.Execute(CmdRefresh, map[string]any{ParamProperties: []any{"flame", "LAMP"}}); err != nil {
		t.Fatalf("Execute(refresh, properties) error = %v", err)
	}

	want := [][]fireplace.Property{
		fireplace.RefreshOrder(),
		{fireplace.PropFlame, fireplace.PropLamp},
	}
	if !reflect.DeepEqual(c.refreshes, want) {
		t.Errorf("refreshes = %v, want %v", c.refreshes, want)
	}
	if len(c.commands) != 0 {
		t.Errorf("refresh queued commands directly: %v", c.commands)
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]any
		wantErr error
	}{
		{"unknown command", "self_destruct", nil, ErrUnknownCommand},
		{"lamp set missing brightness", CmdLampSet, nil, ErrInvalidParameter},
		{"lamp set fractional", CmdLampSet, map[string]any{ParamBrightness: 12.5}, ErrInvalidParameter},
		{"lamp set string", CmdLampSet, map[string]any{ParamBrightness: "bright"}, ErrInvalidParameter},
		{"lamp set out of range", CmdLampSet, map[string]any{ParamBrightness: 300}, ErrInvalidBrightness},
		{"led set missing color", CmdLEDSet, map[string]any{}, ErrInvalidParameter},
		{"led set short color", CmdLEDSet, map[string]any{ParamRGBW: []any{1.0, 2.0}}, ErrInvalidParameter},
		{"led set bad channel", CmdLEDSet, map[string]any{ParamRGBW: []int{0, 0, 0, 256}}, ErrInvalidColor},
		{"fan set missing", CmdFanSet, nil, ErrInvalidParameter},
		{"fan set out of range", CmdFanSet, map[string]any{ParamPercentage: json.Number("101")}, ErrInvalidPercentage},
		{"refresh unknown property", CmdRefresh, map[string]any{ParamProperties: []string{"TURBO"}}, ErrInvalidParameter},
		{"raw empty", CmdRaw, map[string]any{ParamLine: "  "}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCommander{}
			err := NewCapabilities(c).Execute(tt.command, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if len(c.commands) != 0 {
				t.Errorf("commands queued on error: %v", c.commands)
			}
		})
	}
}

func TestExecuteQueueFull(t *testing.T) {
	c := &fakeCommander{capacity: 1}
	err := NewCapabilities(c).Execute(CmdLampSet, map[string]any{ParamBrightness: 255})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Execute() error = %v, want ErrQueueFull", err)
	}
}

func TestCommandNames(t *testing.T) {
	names := CommandNames()
	if len(names) != 13 {
		t.Fatalf("len(CommandNames()) = %d, want 13", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Errorf("names not sorted: %v", names)
			break
		}
	}
}
