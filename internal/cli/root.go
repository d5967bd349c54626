// Package cli implements the akari OCI CLI surface: create, start,
// kill, delete, state, connect, spec. Every command but spec is a thin
// aux.sock round trip; spec has no server round trip at all.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"akari/internal/config"
	"akari/pkg/log"
)

// NewRootCommand builds the akari CLI's root command and every
// subcommand, binding flags to viper before each run.
func NewRootCommand() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "akari",
		Short: "Akari OCI-compatible container runtime CLI",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.BindCommandToViper(cmd)
			return log.Configure(&cfg.Logging)
		},
	}

	viper.SetEnvPrefix("AKARI")
	log.AddFlagsToCommand(root, &cfg.Logging)
	config.AddRootFlags(root, cfg)

	root.AddCommand(
		newCreateCommand(cfg),
		newStartCommand(cfg),
		newKillCommand(cfg),
		newDeleteCommand(cfg),
		newStateCommand(cfg),
		newConnectCommand(cfg),
		newSpecCommand(),
	)

	return root
}
