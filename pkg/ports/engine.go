// Package ports collects the interface definitions the Control Server
// depends on, in a hexagonal ports-and-adapters split.
package ports

import "context"

// VMEngine is the port definition for the VM Engine: one virtual
// machine instance, its serialized hypervisor event queue, and its
// per-port vsock proxy lifecycle. Start/Stop/Connect/Disconnect are
// issued through an ordered single-consumer command channel internally;
// this interface exposes the synchronous result each call awaits.
type VMEngine interface {
	// Start transitions the VM from Configured to Running.
	Start(ctx context.Context) error
	// Stop requests a graceful stop, transitioning to Stopped.
	Stop(ctx context.Context) error
	// Connect opens a guest vsock connection on port and proxies it to a
	// local-stream listener at hostEndpointPath.
	Connect(ctx context.Context, port uint32, hostEndpointPath string) error
	// Disconnect tears down the proxy and frees port.
	Disconnect(ctx context.Context, port uint32) error
}
