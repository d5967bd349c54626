// Package guestwire implements the host/guest control protocol carried
// over a per-container vsock stream: NUL-delimited JSON request and
// response frames.
package guestwire

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"akari/pkg/akarierr"
)

// RequestKind selects the ContainerCommand variant a frame carries.
type RequestKind string

const (
	RequestCreate RequestKind = "create"
	RequestStart  RequestKind = "start"
	RequestKill   RequestKind = "kill"
	RequestDelete RequestKind = "delete"
	RequestState  RequestKind = "state"
)

// Request is one frame sent from host to guest.
type Request struct {
	Kind RequestKind `json:"kind"`

	// Spec is set for RequestCreate: the full parsed OCI runtime spec,
	// forwarded opaque - the host never interprets spec.Process beyond
	// copying it through.
	Spec *specs.Spec `json:"spec,omitempty"`
	// VsockPort is the sidecar option on a Create request sent over the
	// bootstrap port: the per-container port the agent must listen on
	// for this container's subsequent lifecycle requests.
	VsockPort uint32 `json:"vsockPort,omitempty"`
	// Signal is set for RequestKill.
	Signal int `json:"signal,omitempty"`
}

// Response is one frame sent from guest to host.
type Response struct {
	// Status and Pid are populated for RequestState responses.
	Status string `json:"status,omitempty"`
	Pid    *int   `json:"pid,omitempty"`

	// Err is non-nil if the agent rejected the request. A successful
	// Response has Err == nil.
	Err *akarierr.Error `json:"error,omitempty"`
}

// OK reports whether the response indicates success.
func (r Response) OK() bool {
	return r.Err == nil
}
