// Package protocol defines the newline-delimited JSON message protocol spoken
// between a running FSM interpreter and its controller, and the codec that
// frames it on the wire.
package protocol

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Type identifies a protocol message.
type Type string

// Server -> client message types.
const (
	TypeFSMConnected             Type = "FSM_CONNECTED"
	TypeFSMStarted               Type = "FSM_STARTED"
	TypeFSMError                 Type = "FSM_ERROR"
	TypeCurrentState             Type = "CURRENT_STATE"
	TypeStateActionExecuted      Type = "STATE_ACTION_EXECUTED"
	TypeTransitionTaken          Type = "TRANSITION_TAKEN"
	TypeTransitionActionExecuted Type = "TRANSITION_ACTION_EXECUTED"
	TypeVariableUpdate           Type = "VARIABLE_UPDATE"
	TypeFSMFinished              Type = "FSM_FINISHED"
	TypeFSMStuck                 Type = "FSM_STUCK"
)

// Client -> server message types.
const (
	TypeSetVariable Type = "SET_VARIABLE"
	TypeStopFSM     Type = "STOP_FSM"
)

// Message is a single protocol frame: a type tag and a JSON object payload.
// Messages are atomic and self-contained; ordering on a single connection is
// the only delivery guarantee.
type Message struct {
	Type    Type           `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Known reports whether the message type belongs to the protocol vocabulary.
func (m Message) Known() bool {
	switch m.Type {
	case TypeFSMConnected, TypeFSMStarted, TypeFSMError, TypeCurrentState,
		TypeStateActionExecuted, TypeTransitionTaken, TypeTransitionActionExecuted,
		TypeVariableUpdate, TypeFSMFinished, TypeFSMStuck,
		TypeSetVariable, TypeStopFSM:
		return true
	}
	return false
}

// SetVariablePayload carries a variable write request.
type SetVariablePayload struct {
	Name  string `mapstructure:"name"`
	Value any    `mapstructure:"value"`
}

// CurrentStatePayload reports the engine's current state.
type CurrentStatePayload struct {
	Name     string `mapstructure:"name"`
	IsFinish bool   `mapstructure:"is_finish"`
}

// TransitionTakenPayload reports a completed transition choice.
type TransitionTakenPayload struct {
	FromState string `mapstructure:"from_state"`
	ToState   string `mapstructure:"to_state"`
	Delay     int    `mapstructure:"delay"`
}

// VariableUpdatePayload acknowledges an applied variable write.
type VariableUpdatePayload struct {
	Name  string `mapstructure:"name"`
	Value any    `mapstructure:"value"`
}

// ErrorPayload carries a human-readable error description.
type ErrorPayload struct {
	Message string `mapstructure:"message"`
}

// DecodePayload maps a message's payload object onto a typed payload struct.
func DecodePayload[T any](m Message) (T, error) {
	var out T
	if err := mapstructure.Decode(m.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return out, nil
}

// SetVariable decodes and validates a SET_VARIABLE payload. The name field
// is required; a missing name is a protocol error.
func (m Message) SetVariable() (SetVariablePayload, error) {
	p, err := DecodePayload[SetVariablePayload](m)
	if err != nil {
		return p, err
	}
	if p.Name == "" {
		return p, fmt.Errorf("%s: missing required field \"name\"", m.Type)
	}
	return p, nil
}

func newMessage(t Type, payload map[string]any) Message {
	if payload == nil {
		payload = map[string]any{}
	}
	return Message{Type: t, Payload: payload}
}

// FSMConnected builds the greeting sent when a controller attaches.
func FSMConnected(text string) Message {
	return newMessage(TypeFSMConnected, map[string]any{"message": text})
}

// FSMStarted announces the run has begun at the given start state.
func FSMStarted(startState string) Message {
	return newMessage(TypeFSMStarted, map[string]any{"start_state": startState})
}

// FSMError reports a recoverable protocol or evaluation error.
func FSMError(text string) Message {
	return newMessage(TypeFSMError, map[string]any{"message": text})
}

// CurrentState reports entry into a state.
func CurrentState(name string, isFinish bool) Message {
	return newMessage(TypeCurrentState, map[string]any{"name": name, "is_finish": isFinish})
}

// StateActionExecuted reports that a state's action ran.
func StateActionExecuted(state string) Message {
	return newMessage(TypeStateActionExecuted, map[string]any{"state_name": state})
}

// TransitionTaken reports the chosen transition after its delay elapsed.
func TransitionTaken(from, to string, delay int) Message {
	return newMessage(TypeTransitionTaken, map[string]any{
		"from_state": from, "to_state": to, "delay": delay,
	})
}

// TransitionActionExecuted reports that a transition's action ran.
func TransitionActionExecuted(from, to string) Message {
	return newMessage(TypeTransitionActionExecuted, map[string]any{
		"from_state": from, "to_state": to,
	})
}

// VariableUpdate acknowledges a variable's new value.
func VariableUpdate(name string, value any) Message {
	return newMessage(TypeVariableUpdate, map[string]any{"name": name, "value": value})
}

// FSMFinished reports arrival at a final state. Terminal.
func FSMFinished(state string) Message {
	return newMessage(TypeFSMFinished, map[string]any{"finish_state": state})
}

// FSMStuck reports that no outgoing transition is satisfied. Terminal until
// externally stopped.
func FSMStuck(state string) Message {
	return newMessage(TypeFSMStuck, map[string]any{"state_name": state})
}

// SetVariable builds a controller variable write command.
func SetVariable(name string, value any) Message {
	return newMessage(TypeSetVariable, map[string]any{"name": name, "value": value})
}

// StopFSM builds a controller stop command.
func StopFSM() Message {
	return newMessage(TypeStopFSM, nil)
}
