package models

// VmCommandKind identifies the variant of a VmCommand.
type VmCommandKind string

const (
	VmStart      VmCommandKind = "start"
	VmStop       VmCommandKind = "stop"
	VmConnect    VmCommandKind = "connect"
	VmDisconnect VmCommandKind = "disconnect"
)

// VmCommand describes one VM Engine command. The engine's dispatch
// queue in pkg/vmengine carries closures, not VmCommand values, so no
// engine code reads this type.
type VmCommand struct {
	Kind VmCommandKind
	// Port and HostEndpointPath are set for Connect/Disconnect.
	Port             uint32
	HostEndpointPath string
}

// VmState is the VM Engine's lifecycle state.
type VmState string

const (
	VmUninitialized VmState = "uninitialized"
	VmConfigured    VmState = "configured"
	VmStarting      VmState = "starting"
	VmRunning       VmState = "running"
	VmStopping      VmState = "stopping"
	VmStopped       VmState = "stopped"
)
