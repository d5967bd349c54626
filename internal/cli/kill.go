package cli

import (
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"akari/internal/config"
	"akari/pkg/auxproto"
)

func newKillCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id> [signal]",
		Short: "Send a signal to a container (default: SIGTERM)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signal := int(syscall.SIGTERM)
			if len(args) == 2 {
				parsed, err := strconv.Atoi(args[1])
				if err != nil {
					return err
				}
				signal = parsed
			}

			client, err := dial(cfg)
			if err != nil {
				return err
			}
			_, err = client.CallExpectOK(auxproto.Request{
				Method:      auxproto.MethodKill,
				ContainerID: args[0],
				Signal:      signal,
			})
			return err
		},
	}
}
