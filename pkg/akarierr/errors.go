// Package akarierr defines the error taxonomy shared by the host control
// plane and the guest agent wire protocols.
package akarierr

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a class of failure that can cross the aux.sock or
// host/guest wire boundary.
type Kind string

const (
	ContainerAlreadyExists   Kind = "containerAlreadyExists"
	ContainerNotFound        Kind = "containerNotFound"
	UnexpectedStatus         Kind = "unexpectedContainerStatus"
	VmCommandFailed          Kind = "vmCommandFailed"
	VsockProxyFailed         Kind = "vsockProxyFailed"
	AgentError               Kind = "agentError"
	Io                       Kind = "io"
	Serialization            Kind = "serialization"
	ConfigInvalid            Kind = "configInvalid"
	LockPoisoned             Kind = "lockPoisoned"
	ThreadNotFound           Kind = "threadNotFound"
)

// Error is the concrete error type carried across the aux.sock and
// host/guest wire boundaries.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Payload carries a Kind-specific detail, e.g. the observed status for
	// UnexpectedStatus or the agent's message for AgentError.
	Payload string `json:"payload,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Payload != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Payload)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithPayload attaches a Kind-specific payload string and returns e.
func (e *Error) WithPayload(payload string) *Error {
	e.Payload = payload
	return e
}

// Is reports whether err (or any error it wraps) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var akErr *Error
	for err != nil {
		if ak, ok := err.(*Error); ok {
			akErr = ak
			break
		}
		unwrap, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrap.Unwrap()
	}
	return akErr != nil && akErr.Kind == kind
}

// MarshalJSON renders the wire-visible subset of Error (kind, message,
// payload) without the unexported cause.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Payload string `json:"payload,omitempty"`
	}
	return json.Marshal(wire{Kind: e.Kind, Message: e.Message, Payload: e.Payload})
}

// UnmarshalJSON restores an Error previously produced by MarshalJSON.
func (e *Error) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Payload string `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Kind = wire.Kind
	e.Message = wire.Message
	e.Payload = wire.Payload
	return nil
}
