package models

// Status is the lifecycle state of a Container, as tracked by the
// Control Server's state map.
type Status string

const (
	StatusCreating Status = "creating"
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
)

// Container is the Control Server's record of one guest-side container.
// It is mutated only while the owning StateMap's exclusive lock is held.
type Container struct {
	// ID is the opaque identifier supplied by the caller. Unique within
	// a Control Server instance.
	ID string
	// BundlePath is the absolute path to the OCI bundle.
	BundlePath string
	// RootfsPath is the absolute path to the bundle's rootfs.
	RootfsPath string
	// Stdin, Stdout, Stderr are optional host-side FIFO/console paths.
	Stdin  string
	Stdout string
	Stderr string

	Status Status
	// Pid is the guest-side process id, known once the agent reports it.
	Pid *int
	// VsockPort is the per-container port allocated at create time.
	VsockPort uint32

	// Annotations are copied from the OCI spec at create time. They are
	// not part of the aux.sock StateResponse schema, so nothing outside
	// the Control Server sees them.
	Annotations map[string]string
	// BundleSymlinkOwned records whether the Control Server created the
	// shared-bundle symlink being deleted, so delete only removes
	// symlinks it is responsible for.
	BundleSymlinkOwned bool
}

// OciVersion is the ociVersion written into the default config.json
// that `akari spec` generates.
const OciVersion = "v1.0.2"
