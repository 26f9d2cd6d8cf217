package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-noisemeter/internal/audio"
	"github.com/oszuidwest/zwfm-noisemeter/internal/config"
	"github.com/oszuidwest/zwfm-noisemeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisemeter/internal/meter"
	"github.com/oszuidwest/zwfm-noisemeter/internal/report"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
)

// DefaultEventLimit is the page size for events/list when none is given.
const DefaultEventLimit = 50

// ErrEventLogDisabled is returned when no event log path is configured.
var ErrEventLogDisabled = errors.New("event log not configured")

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventsPage is one page of the event log, newest first.
type EventsPage struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	ctx    context.Context
	cfg    *config.Config
	mgr    *meter.Manager
	status func() types.StatusResponse
}

// NewCommandHandler creates a new command handler. Sessions started through
// the handler are bound to ctx. status builds the reply for status/get.
func NewCommandHandler(ctx context.Context, cfg *config.Config, mgr *meter.Manager, status func() types.StatusResponse) *CommandHandler {
	return &CommandHandler{
		ctx:    ctx,
		cfg:    cfg,
		mgr:    mgr,
		status: status,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "report":
		h.handleReport(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "devices":
		h.handleDevices(action, cmd, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands.
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	var op func(*meter.Meter) error
	switch action {
	case "start":
		op = func(m *meter.Meter) error { return m.Start(h.ctx) }
	case "stop":
		op = (*meter.Meter).Stop
	case "pause":
		op = (*meter.Meter).Pause
	case "resume":
		op = (*meter.Meter).Resume
	default:
		slog.Warn("unknown session action", "action", action)
		return
	}

	HandleCommand(cmd, send, func(req *ProfileRequest) (any, error) {
		m, err := h.mgr.Meter(req.Profile)
		if err != nil {
			return nil, err
		}
		if err := op(m); err != nil {
			return nil, err
		}
		return m.Status(), nil
	})
}

// handleReport routes report/* commands.
func (h *CommandHandler) handleReport(action string, cmd WSCommand, send chan<- any) {
	if action != "get" {
		slog.Warn("unknown report action", "action", action)
		return
	}
	HandleCommand(cmd, send, func(req *ProfileRequest) (any, error) {
		return h.Report(req.Profile)
	})
}

// handleEvents routes events/* commands.
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	if action != "list" {
		slog.Warn("unknown events action", "action", action)
		return
	}
	var req EventsRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	HandleActionAsync(cmd, send, func() (any, error) {
		return h.Events(&req)
	})
}

// handleDevices routes devices/* commands. Listing runs the capture tool, so
// it does not block the reader goroutine.
func (h *CommandHandler) handleDevices(action string, cmd WSCommand, send chan<- any) {
	if action != "list" {
		slog.Warn("unknown devices action", "action", action)
		return
	}
	HandleActionAsync(cmd, send, func() (any, error) {
		return Devices(), nil
	})
}

// handleStatus routes status/* commands.
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	if action != "get" {
		slog.Warn("unknown status action", "action", action)
		return
	}
	if h.status == nil {
		return
	}
	SendData(send, h.status())
}

// --- Queries shared with the HTTP API ---

// Report builds the session report for a profile.
func (h *CommandHandler) Report(profile string) (*report.Report, error) {
	m, err := h.mgr.Meter(profile)
	if err != nil {
		return nil, err
	}
	st := m.Stats()
	location := h.cfg.Snapshot().Location
	return report.Build(profile, m.SessionID(), &st, m.Elapsed(), location)
}

// Events reads one page of the configured event log.
func (h *CommandHandler) Events(req *EventsRequest) (*EventsPage, error) {
	path := h.cfg.Snapshot().EventLogPath
	if path == "" {
		return nil, ErrEventLogDisabled
	}
	limit := cmp.Or(req.Limit, DefaultEventLimit)
	events, hasMore, err := eventlog.ReadLast(path, limit, req.Offset, eventlog.TypeFilter(req.Filter))
	if err != nil {
		return nil, err
	}
	return &EventsPage{Events: events, HasMore: hasMore}, nil
}

// Devices returns the available audio input devices.
func Devices() []types.AudioDevice {
	devices := audio.ListDevices()
	out := make([]types.AudioDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, types.AudioDevice{ID: d.ID, Name: d.Name})
	}
	return out
}
