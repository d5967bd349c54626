package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"akari/internal/config"
	"akari/pkg/auxproto"
)

func newCreateCommand(cfg *config.Config) *cobra.Command {
	var bundle, consoleSocket, stdin, stdout, stderr string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a container from an OCI bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if consoleSocket != "" {
				cfg.ConsoleSock = consoleSocket
			}
			client, err := dial(cfg)
			if err != nil {
				return err
			}

			rootfs := filepath.Join(bundle, "rootfs")
			_, err = client.CallExpectOK(auxproto.Request{
				Method:      auxproto.MethodCreate,
				ContainerID: args[0],
				Bundle:      bundle,
				Rootfs:      rootfs,
				Stdin:       stdin,
				Stdout:      stdout,
				Stderr:      stderr,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundle, "bundle", "", "path to the OCI bundle (containing config.json)")
	cmd.Flags().StringVar(&consoleSocket, "console-socket", "", "path to a socket for the container's console")
	cmd.Flags().StringVar(&stdin, "stdin", "", "path to the container's stdin")
	cmd.Flags().StringVar(&stdout, "stdout", "", "path to the container's stdout")
	cmd.Flags().StringVar(&stderr, "stderr", "", "path to the container's stderr")
	_ = cmd.MarkFlagRequired("bundle")

	return cmd
}
