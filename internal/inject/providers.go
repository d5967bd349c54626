package inject

import (
	"akari/internal/config"
	"akari/pkg/vmengine"
)

func vmEngineConfig(cfg *config.Config) (*vmengine.Config, error) {
	mem, err := vmengine.ParseMemory(cfg.VM.MemoryLimit)
	if err != nil {
		return nil, err
	}
	return &vmengine.Config{
		CPUCount:           cfg.VM.CPUCount,
		MemoryBytes:        mem,
		KernelImagePath:    cfg.VM.KernelImage,
		InitialRamdiskPath: cfg.VM.InitialRamdisk,
		KernelCmdline:      cfg.VM.KernelCmdline,
		BootLoaderIsEFI:    cfg.VM.BootLoaderEFI,
		ConsoleSocketPath:  cfg.ConsoleSock,
	}, nil
}

func rootFromConfig(cfg *config.Config) string {
	return cfg.Root
}
