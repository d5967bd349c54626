package vmengine

import "github.com/docker/go-units"

// Config is the VM Engine's VmConfig: opaque to the rest of the core.
// The Control Server builds one and passes it through whole; nothing
// outside this package inspects individual fields.
type Config struct {
	// CPUCount is the number of virtual CPUs to allocate.
	CPUCount uint

	// MemoryBytes is the amount of RAM to allocate. ParseMemory turns a
	// human-readable size ("2GiB") into this field.
	MemoryBytes uint64

	// KernelImagePath and InitialRamdiskPath locate the guest boot
	// artifacts.
	KernelImagePath    string
	InitialRamdiskPath string
	// KernelCmdline is passed to the guest kernel.
	KernelCmdline string

	// BootLoaderIsEFI selects an EFI boot loader instead of a direct
	// kernel boot loader.
	BootLoaderIsEFI bool

	// ConsoleSocketPath, if non-empty, attaches a virtio serial console
	// wired to the server process's stdin and stderr; the VZ backend
	// does not open or bind the path itself.
	ConsoleSocketPath string

	// SharedDirectories maps a guest-visible tag to a host directory,
	// used to expose a container's rootfs into the VM.
	SharedDirectories map[string]string

	// DiskImagePaths are block-device-backed disk attachments.
	DiskImagePaths []string
}

// ParseMemory parses a human-readable size (e.g. "2GiB") into bytes.
func ParseMemory(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
