package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"akari/internal/config"
	"akari/pkg/auxproto"
)

func newStateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "state <id>",
		Short: "Print a container's current state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cfg)
			if err != nil {
				return err
			}
			resp, err := client.CallExpectOK(auxproto.Request{Method: auxproto.MethodState, ContainerID: args[0]})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp.State, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
