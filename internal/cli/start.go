package cli

import (
	"github.com/spf13/cobra"

	"akari/internal/config"
	"akari/pkg/auxproto"
)

func newStartCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a created container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cfg)
			if err != nil {
				return err
			}
			_, err = client.CallExpectOK(auxproto.Request{Method: auxproto.MethodStart, ContainerID: args[0]})
			return err
		},
	}
}
