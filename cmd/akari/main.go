// Command akari is the OCI-compatible CLI client: create, start, kill,
// delete, state, connect, spec. Every command but spec talks to the
// Control Server over aux.sock.
package main

import (
	"fmt"
	"os"

	"akari/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
