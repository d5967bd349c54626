//go:build darwin

package vmengine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Code-Hex/vz/v3"

	"akari/pkg/models"
	"akari/pkg/vsockmux"
)

// VZEngine is the Virtualization.framework-backed VM Engine: one
// vz.VirtualMachine, serialized onto a single dispatch goroutine, with
// its virtio-socket device proxied through a Multiplexer.
type VZEngine struct {
	core  *engineCore
	state *stateGuard
	mux   *vsockmux.Multiplexer

	vm     *vz.VirtualMachine
	socket *vz.VirtioSocketDevice
}

// New builds a VZEngine from cfg without starting it; the returned
// engine is in the Configured state.
func New(cfg *Config) (*VZEngine, error) {
	config, err := buildConfiguration(cfg)
	if err != nil {
		return nil, fmt.Errorf("building vm configuration: %w", err)
	}

	valid, err := config.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating vm configuration: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("vm configuration is not valid")
	}

	vm, err := vz.NewVirtualMachine(config)
	if err != nil {
		return nil, fmt.Errorf("creating virtual machine: %w", err)
	}

	sockets := vm.SocketDevices()
	if len(sockets) == 0 {
		return nil, fmt.Errorf("virtual machine has no vsock device")
	}

	return &VZEngine{
		core:   newEngineCore(),
		state:  newStateGuard(),
		mux:    vsockmux.New(),
		vm:     vm,
		socket: sockets[0],
	}, nil
}

func buildConfiguration(cfg *Config) (*vz.VirtualMachineConfiguration, error) {
	var bootLoader vz.BootLoader
	var err error

	if cfg.BootLoaderIsEFI {
		store, serr := vz.NewEFIVariableStore(cfg.KernelCmdline + ".efi-vars", vz.WithCreatingEFIVariableStore())
		if serr != nil {
			return nil, fmt.Errorf("creating efi variable store: %w", serr)
		}
		bootLoader, err = vz.NewEFIBootLoader(vz.WithEFIVariableStore(store))
	} else {
		bootLoader, err = vz.NewLinuxBootLoader(
			cfg.KernelImagePath,
			vz.WithCommandLine(cfg.KernelCmdline),
			vz.WithInitrd(cfg.InitialRamdiskPath),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("creating boot loader: %w", err)
	}

	config, err := vz.NewVirtualMachineConfiguration(bootLoader, cfg.CPUCount, cfg.MemoryBytes)
	if err != nil {
		return nil, fmt.Errorf("creating vm configuration: %w", err)
	}

	var storageDevices []vz.StorageDeviceConfiguration
	for _, path := range cfg.DiskImagePaths {
		attachment, err := vz.NewDiskImageStorageDeviceAttachment(path, false)
		if err != nil {
			return nil, fmt.Errorf("attaching disk %s: %w", path, err)
		}
		device, err := vz.NewVirtioBlockDeviceConfiguration(attachment)
		if err != nil {
			return nil, fmt.Errorf("configuring block device for %s: %w", path, err)
		}
		storageDevices = append(storageDevices, device)
	}
	config.SetStorageDevicesVirtualMachineConfiguration(storageDevices)

	var shares []vz.DirectorySharingDeviceConfiguration
	for tag, hostPath := range cfg.SharedDirectories {
		shared, err := vz.NewSharedDirectory(hostPath, false)
		if err != nil {
			return nil, fmt.Errorf("sharing directory %s: %w", hostPath, err)
		}
		share, err := vz.NewSingleDirectoryShare(shared)
		if err != nil {
			return nil, fmt.Errorf("configuring directory share %s: %w", tag, err)
		}
		fsConfig, err := vz.NewVirtioFileSystemDeviceConfiguration(tag)
		if err != nil {
			return nil, fmt.Errorf("configuring filesystem device %s: %w", tag, err)
		}
		fsConfig.SetDirectoryShare(share)
		shares = append(shares, fsConfig)
	}
	config.SetDirectorySharingDevicesVirtualMachineConfiguration(shares)

	vsockConfig, err := vz.NewVirtioSocketDeviceConfiguration()
	if err != nil {
		return nil, fmt.Errorf("configuring vsock device: %w", err)
	}
	config.SetSocketDevicesVirtualMachineConfiguration([]vz.SocketDeviceConfiguration{vsockConfig})

	entropyConfig, err := vz.NewVirtioEntropyDeviceConfiguration()
	if err != nil {
		return nil, fmt.Errorf("configuring entropy device: %w", err)
	}
	config.SetEntropyDevicesVirtualMachineConfiguration([]*vz.VirtioEntropyDeviceConfiguration{entropyConfig})

	if cfg.ConsoleSocketPath != "" {
		attachment, err := vz.NewFileHandleSerialPortAttachment(os.Stdin, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("attaching serial console: %w", err)
		}
		serialPort, err := vz.NewVirtioConsoleDeviceSerialPortConfiguration(attachment)
		if err != nil {
			return nil, fmt.Errorf("configuring serial console: %w", err)
		}
		config.SetSerialPortsVirtualMachineConfiguration([]*vz.VirtioConsoleDeviceSerialPortConfiguration{serialPort})
	}

	return config, nil
}

func (e *VZEngine) Start(ctx context.Context) error {
	if err := e.state.requireAndTransition(models.VmConfigured, models.VmStarting); err != nil {
		return err
	}

	var startErr error
	err := e.core.submit(ctx, func() {
		if err := e.vm.Start(); err != nil {
			e.state.settle(models.VmConfigured)
			startErr = fmt.Errorf("starting virtual machine: %w", err)
			return
		}
		e.waitForState(vz.VirtualMachineStateRunning, 30*time.Second)
		e.state.settle(models.VmRunning)
	})
	if err != nil {
		return err
	}
	return startErr
}

func (e *VZEngine) Stop(ctx context.Context) error {
	if err := e.state.requireAndTransition(models.VmRunning, models.VmStopping); err != nil {
		return err
	}

	return e.core.submit(ctx, func() {
		defer e.core.stop()

		if e.vm.CanRequestStop() {
			if stopped, err := e.vm.RequestStop(); err == nil && stopped {
				e.waitForState(vz.VirtualMachineStateStopped, 10*time.Second)
				e.state.settle(models.VmStopped)
				return
			}
		}

		_ = e.vm.Stop()
		e.waitForState(vz.VirtualMachineStateStopped, 10*time.Second)
		e.state.settle(models.VmStopped)
	})
}

func (e *VZEngine) waitForState(want vz.VirtualMachineState, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.vm.State() == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (e *VZEngine) Connect(ctx context.Context, port uint32, hostEndpointPath string) error {
	if err := e.state.requireState(models.VmRunning); err != nil {
		return err
	}

	var connectErr error
	err := e.core.submit(ctx, func() {
		guestConn, err := e.socket.Connect(port)
		if err != nil {
			connectErr = fmt.Errorf("connecting vsock port %d: %w", port, err)
			return
		}
		connectErr = e.mux.Connect(port, hostEndpointPath, guestConn)
	})
	if err != nil {
		return err
	}
	return connectErr
}

func (e *VZEngine) Disconnect(ctx context.Context, port uint32) error {
	if err := e.state.requireState(models.VmRunning); err != nil {
		return err
	}

	var disconnectErr error
	err := e.core.submit(ctx, func() {
		disconnectErr = e.mux.Disconnect(port)
	})
	if err != nil {
		return err
	}
	return disconnectErr
}
