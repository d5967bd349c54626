package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"akari/internal/config"
	"akari/pkg/auxproto"
)

func newConnectCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <id> <port>",
		Short: "Open an additional vsock proxy to a running container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return err
			}

			client, err := dial(cfg)
			if err != nil {
				return err
			}
			_, err = client.CallExpectOK(auxproto.Request{
				Method:      auxproto.MethodConnect,
				ContainerID: args[0],
				Port:        uint32(port),
			})
			return err
		},
	}
}
