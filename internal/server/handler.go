// Package server provides WebSocket command handling for the noise meter
// live feed.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
	"github.com/oszuidwest/zwfm-noisemeter/internal/validation"
)

// DecodeAndValidate decodes JSON and validates the struct.
// Returns true if successful, false if an error response was already sent.
func DecodeAndValidate[T any](cmd WSCommand, send chan<- any, data *T) bool {
	if len(cmd.Data) == 0 {
		cmd.Data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(cmd.Data, data); err != nil {
		SendError(send, cmd.Type, fmt.Errorf("invalid JSON: %w", err))
		return false
	}

	if err := validation.Struct(data); err != nil {
		SendValidationErrors(send, cmd.Type, err)
		return false
	}

	return true
}

// HandleCommand decodes, validates, and processes a command with automatic
// response handling. process returns the optional result data.
func HandleCommand[T any](cmd WSCommand, send chan<- any, process func(*T) (any, error)) {
	var data T
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}

	result, err := process(&data)
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}

	SendSuccess(send, cmd.Type, result)
}

// HandleActionAsync runs a command action asynchronously with panic recovery.
func HandleActionAsync(cmd WSCommand, send chan<- any, action func() (any, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in async handler", "command", cmd.Type, "panic", r)
				SendError(send, cmd.Type, fmt.Errorf("internal error"))
			}
		}()

		result, err := action()
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, result)
	}()
}

// --- Response helpers ---

// SendSuccess sends a success response for a command.
func SendSuccess(send chan<- any, cmdType string, data any) {
	trySend(send, cmdType, types.CommandResult{
		Type:    cmdType + "_result",
		Success: true,
		Data:    data,
	})
}

// SendError sends an error response for a command.
func SendError(send chan<- any, cmdType string, err error) {
	trySend(send, cmdType, types.CommandResult{
		Type:    cmdType + "_result",
		Success: false,
		Error:   err.Error(),
	})
}

// SendValidationErrors sends field-level validation errors.
func SendValidationErrors(send chan<- any, cmdType string, err error) {
	verr, ok := err.(*types.ValidationError)
	if !ok {
		verr = validation.ToValidationError(err)
	}
	trySend(send, cmdType, types.CommandResult{
		Type:    cmdType + "_result",
		Success: false,
		Error:   verr,
	})
}

// SendData sends arbitrary data to the WebSocket client.
func SendData(send chan<- any, data any) {
	trySend(send, "data", data)
}

// trySend attempts to send a message, logging a warning if the channel is full.
func trySend(send chan<- any, cmdType string, msg any) {
	select {
	case send <- msg:
	default:
		slog.Warn("failed to send response: channel full or closed", "type", cmdType)
	}
}
