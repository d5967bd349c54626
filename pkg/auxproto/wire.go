// Package auxproto implements the aux.sock wire protocol: the
// length-framed JSON RPC surface the Control Server exposes to the
// shim adapter and the OCI CLI.
package auxproto

import "akari/pkg/akarierr"

// Method names the aux.sock RPC surface (service "Task"/"VmRpc" in
// spec terms; a single flat method namespace here).
type Method string

const (
	MethodCreate  Method = "create"
	MethodStart   Method = "start"
	MethodKill    Method = "kill"
	MethodDelete  Method = "delete"
	MethodState   Method = "state"
	MethodConnect Method = "connect"
)

// Request is one aux.sock call.
type Request struct {
	Method      Method `json:"method"`
	ContainerID string `json:"containerId"`

	// Create fields.
	Bundle string `json:"bundle,omitempty"`
	Rootfs string `json:"rootfs,omitempty"`
	Stdin  string `json:"stdin,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Kill field.
	Signal int `json:"signal,omitempty"`

	// Connect field.
	Port uint32 `json:"port,omitempty"`
}

// StateResponse mirrors the OCI-shaped state record returned by `state`.
type StateResponse struct {
	ContainerID string `json:"containerId"`
	Status      string `json:"status"`
	Pid         *int   `json:"pid,omitempty"`
	Bundle      string `json:"bundle"`
}

// Response is one aux.sock reply. Err is set on failure and State on a
// successful state call; both are empty for operations whose success
// result is empty (create, start, kill, delete, connect).
type Response struct {
	Err   *akarierr.Error `json:"error,omitempty"`
	State *StateResponse  `json:"state,omitempty"`
}

// OK reports whether the response indicates success.
func (r Response) OK() bool {
	return r.Err == nil
}
