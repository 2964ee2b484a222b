package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

// Status is the lifecycle state of the realtime subscription.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Inbound frame types understood by the message router.
const (
	frameStepComplete      = "step_complete"
	frameExecutionComplete = "execution_complete"
	frameError             = "error"
)

// Event is one item on the subscription's event channel. It is a closed set:
// StatusEvent, StepEvent, CompletedEvent, or ErrorEvent.
type Event interface {
	isEvent()
}

// StatusEvent reports a connection status transition.
type StatusEvent struct {
	Status Status
}

// StepEvent carries one realtime step progress update.
type StepEvent struct {
	Step api.StepUpdate
}

// CompletedEvent carries the terminal execution result. It is delivered at
// most once per subscription and ends the stream.
type CompletedEvent struct {
	Result api.ExecutionResult
}

// ErrorEvent carries a server-signaled or connection-level error message.
// It does not by itself end the subscription.
type ErrorEvent struct {
	Message string
}

func (StatusEvent) isEvent()    {}
func (StepEvent) isEvent()      {}
func (CompletedEvent) isEvent() {}
func (ErrorEvent) isEvent()     {}

// inboundMessage is the wire shape of a realtime frame.
type inboundMessage struct {
	Type        string          `json:"type"`
	ExecutionID string          `json:"execution_id"`
	Data        json.RawMessage `json:"data"`
}

func parseInbound(data []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if strings.TrimSpace(msg.Type) == "" {
		return nil, fmt.Errorf("malformed frame: missing type")
	}
	return &msg, nil
}

// parseStep validates a step_complete payload at the boundary instead of
// trusting the tag.
func parseStep(data json.RawMessage) (api.StepUpdate, error) {
	var step api.StepUpdate
	if len(data) == 0 {
		return step, fmt.Errorf("step payload missing")
	}
	if err := json.Unmarshal(data, &step); err != nil {
		return step, fmt.Errorf("step payload: %w", err)
	}
	if strings.TrimSpace(step.Action) == "" {
		return step, fmt.Errorf("step payload: missing action")
	}
	if step.StepNumber < 0 {
		return step, fmt.Errorf("step payload: negative step number")
	}
	return step, nil
}

// parseResult validates an execution_complete payload.
func parseResult(data json.RawMessage) (api.ExecutionResult, error) {
	var result api.ExecutionResult
	if len(data) == 0 {
		return result, fmt.Errorf("result payload missing")
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("result payload: %w", err)
	}
	if strings.TrimSpace(result.ExecutionID) == "" {
		return result, fmt.Errorf("result payload: missing execution_id")
	}
	return result, nil
}

// parseErrorMessage extracts a message from a server-signaled error frame,
// defaulting when absent.
func parseErrorMessage(data json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err == nil {
			if msg := strings.TrimSpace(payload.Message); msg != "" {
				return msg
			}
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return msg
			}
		}
	}
	return "unknown error"
}
