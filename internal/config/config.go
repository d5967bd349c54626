// Package config holds the daemon-wide configuration shared by every
// Akari binary: a plain struct plus a viper/pflag binding helper used
// by every command's PersistentPreRunE.
package config

import "akari/pkg/log"

// Config is bound from flags and environment variables (AKARI_ prefix),
// flags taking precedence. No config file is read.
type Config struct {
	// Logging controls the shared logger.
	Logging log.Config

	// Root is $ROOT: the directory holding aux.sock, vm.json.base, and
	// the per-container shared/ bind points.
	Root string

	// AuxSock overrides the aux.sock path; empty means $ROOT/aux.sock.
	AuxSock string

	// ConsoleSock is the default path for a container's console socket.
	ConsoleSock string

	// VM is the VM template used for every container's VM Engine
	// instance (Akari runs one VM Engine per Control Server, not per
	// container; see SPEC_FULL.md §4.1).
	VM VMConfig

	// DebugEndpoint is the bind address for the metrics debug server
	// (serves /metrics). Empty disables it.
	DebugEndpoint string
}

// VMConfig configures the guest VM's boot parameters.
type VMConfig struct {
	CPUCount      uint
	MemoryLimit   string
	KernelImage   string
	InitialRamdisk string
	KernelCmdline string
	BootLoaderEFI bool
}
