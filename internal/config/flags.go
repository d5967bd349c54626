package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"akari/pkg/defaults"
)

const (
	rootFlag        = "root"
	auxSockFlag     = "aux-sock"
	consoleSockFlag = "console-sock"
	cpuFlag         = "vm-cpu"
	memFlag         = "vm-mem"
	kernelFlag      = "vm-kernel"
	initrdFlag      = "vm-initrd"
	cmdlineFlag     = "vm-cmdline"
	efiFlag         = "vm-efi"
	debugFlag       = "debug-endpoint"
)

// AddRootFlags registers the flags shared by every Akari binary:
// $ROOT, aux.sock path, and console socket.
func AddRootFlags(cmd *cobra.Command, cfg *Config) {
	cmd.PersistentFlags().StringVar(&cfg.Root, rootFlag, defaults.Root(), "Akari state root directory")
	cmd.PersistentFlags().StringVar(&cfg.AuxSock, auxSockFlag, "", "aux.sock path (default $ROOT/aux.sock)")
	cmd.PersistentFlags().StringVar(&cfg.ConsoleSock, consoleSockFlag, "", "container console socket path")
}

// AddVMFlags registers the Control Server's VM template flags.
func AddVMFlags(cmd *cobra.Command, cfg *Config) {
	cmd.Flags().UintVar(&cfg.VM.CPUCount, cpuFlag, 2, "VM CPU count")
	cmd.Flags().StringVar(&cfg.VM.MemoryLimit, memFlag, "1GiB", "VM memory size (e.g. 512MiB, 2GiB)")
	cmd.Flags().StringVar(&cfg.VM.KernelImage, kernelFlag, "", "Path to the guest kernel image")
	cmd.Flags().StringVar(&cfg.VM.InitialRamdisk, initrdFlag, "", "Path to the guest initial ramdisk")
	cmd.Flags().StringVar(&cfg.VM.KernelCmdline, cmdlineFlag, "console=hvc0", "Guest kernel command line")
	cmd.Flags().BoolVar(&cfg.VM.BootLoaderEFI, efiFlag, false, "Boot the guest via EFI instead of a raw Linux kernel")
	cmd.Flags().StringVar(&cfg.DebugEndpoint, debugFlag, "", "Debug/metrics HTTP server bind address (empty disables it)")
}

// ResolvedAuxSock returns cfg.AuxSock if set, else the default path
// under cfg.Root.
func (cfg *Config) ResolvedAuxSock() string {
	if cfg.AuxSock != "" {
		return cfg.AuxSock
	}
	return defaults.AuxSockPath(cfg.Root)
}

// BindCommandToViper binds every flag on cmd (persistent and local) to
// viper, so AKARI_-prefixed environment variables can override
// defaults. No config file is loaded.
func BindCommandToViper(cmd *cobra.Command) {
	bindFlagsToViper(cmd.PersistentFlags())
	bindFlagsToViper(cmd.Flags())
}

func bindFlagsToViper(fs *pflag.FlagSet) {
	fs.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
		_ = viper.BindEnv(flag.Name)

		if !flag.Changed && viper.IsSet(flag.Name) {
			val := viper.Get(flag.Name)
			_ = fs.Set(flag.Name, fmt.Sprintf("%v", val))
		}
	})
}
