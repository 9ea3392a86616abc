package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
)

// commandLogTimeout bounds one command log insert.
const commandLogTimeout = 2 * time.Second

// FireplaceResponse is the body of GET /api/v1/fireplace.
type FireplaceResponse struct {
	Device       fireplace.DeviceInfo `json:"device"`
	State        fireplace.State      `json:"state"`
	Entities     Entities             `json:"entities"`
	ScanInterval int                  `json:"scan_interval"`
}

// Entities presents the state the way each capability reports it.
type Entities struct {
	Lamp        LampView  `json:"lamp"`
	AccentLight LEDView   `json:"accent_light"`
	Flame       PowerView `json:"flame"`
	HeatFan     FanView   `json:"heat_fan"`
}

// LampView is the lamp as a dimmable light.
type LampView struct {
	On         bool `json:"on"`
	Brightness *int `json:"brightness"`
}

// LEDView is the accent light as an RGBW light.
type LEDView struct {
	On         bool            `json:"on"`
	Color      *fireplace.RGBW `json:"color"`
	Brightness *int            `json:"brightness"`
}

// PowerView is a plain switch.
type PowerView struct {
	On bool `json:"on"`
}

// FanView is the heat fan with its 0-100 speed.
type FanView struct {
	On         bool `json:"on"`
	Percentage int  `json:"percentage"`
}

// CommandRequest is the body of POST /api/v1/fireplace/commands.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ScanIntervalRequest is the body of PUT /api/v1/fireplace/scan-interval.
type ScanIntervalRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) entities() Entities {
	var e Entities

	e.Lamp.On = s.caps.Lamp.IsOn()
	if b, ok := s.caps.Lamp.Brightness(); ok {
		e.Lamp.Brightness = &b
	}

	e.AccentLight.On = s.caps.AccentLight.IsOn()
	if c, ok := s.caps.AccentLight.Color(); ok {
		e.AccentLight.Color = &c
	}
	if b, ok := s.caps.AccentLight.Brightness(); ok {
		e.AccentLight.Brightness = &b
	}

	e.Flame.On = s.caps.Flame.IsOn()
	e.HeatFan.On = s.caps.HeatFan.IsOn()
	e.HeatFan.Percentage = s.caps.HeatFan.Percentage()
	return e
}

// handleGetFireplace returns identity, raw state and per-entity views.
func (s *Server) handleGetFireplace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FireplaceResponse{
		Device:       s.fp.DeviceInfo(),
		State:        s.fp.State(),
		Entities:     s.entities(),
		ScanInterval: int(s.fp.ScanInterval().Seconds()),
	})
}

// handleDiagnostics returns the coordinator's connection counters.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	diag := s.fp.Diagnostics()
	writeJSON(w, http.StatusOK, map[string]any{
		"diagnostics": diag,
		"commands":    device.CommandNames(),
		"ws_clients":  s.hub.ClientCount(),
	})
}

// handleExecuteCommand runs one named command from the shared vocabulary.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	err := s.caps.Execute(req.Command, req.Parameters)
	s.recordCommand(r.Context(), req.Command, err)
	if err != nil {
		s.logger.Warn("api command failed", "command", req.Command, "error", err)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"command": req.Command,
	})
}

// handleRefresh queues GETs for the requested properties, or all of them.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Properties []string `json:"properties"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var params map[string]any
	if len(body.Properties) > 0 {
		params = map[string]any{device.ParamProperties: body.Properties}
	}

	err := s.caps.Execute(device.CmdRefresh, params)
	s.recordCommand(r.Context(), device.CmdRefresh, err)
	if err != nil {
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleSetScanInterval changes the periodic refresh interval.
func (s *Server) handleSetScanInterval(w http.ResponseWriter, r *http.Request) {
	var req ScanIntervalRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !slices.Contains(config.ValidScanIntervals, req.Seconds) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("seconds must be one of %v", config.ValidScanIntervals))
		return
	}

	s.fp.SetScanInterval(time.Duration(req.Seconds) * time.Second)
	writeJSON(w, http.StatusOK, map[string]any{"scan_interval": req.Seconds})
}

func (s *Server) recordCommand(ctx context.Context, command string, cmdErr error) {
	if s.cmdLog == nil {
		return
	}

	entry := &device.CommandLogEntry{
		DeviceID: s.fp.DeviceInfo().Identifier,
		Command:  command,
		Origin:   device.OriginAPI,
		Accepted: cmdErr == nil,
	}
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandLogTimeout)
	defer cancel()
	if err := s.cmdLog.Record(ctx, entry); err != nil {
		s.logger.Error("failed to record command", "error", err)
	}
}

// decodeBody decodes a JSON body keeping numbers as json.Number so the
// command parameters keep their integer form.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
