package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"akari/pkg/models"
)

// newSpecCommand writes a minimal default config.json to the current
// directory, the same role `runc spec` plays for other OCI runtimes.
// No aux.sock round trip: spec is pure client-side template generation.
func newSpecCommand() *cobra.Command {
	var bundle string

	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Generate a default config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.json"
			if bundle != "" {
				path = bundle + "/config.json"
			}

			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			return enc.Encode(defaultSpec())
		},
	}

	cmd.Flags().StringVar(&bundle, "bundle", "", "directory to write config.json into (default: current directory)")
	return cmd
}

func defaultSpec() *specs.Spec {
	return &specs.Spec{
		Version: models.OciVersion,
		Process: &specs.Process{
			Terminal: true,
			Cwd:      "/",
			Args:     []string{"sh"},
			Env:      []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
		},
		Root: &specs.Root{
			Path:     "rootfs",
			Readonly: false,
		},
		Hostname: "akari",
		Mounts: []specs.Mount{
			{Destination: "/proc", Type: "proc", Source: "proc"},
			{Destination: "/dev", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
			{Destination: "/sys", Type: "sysfs", Source: "sysfs", Options: []string{"nosuid", "noexec", "nodev", "ro"}},
		},
	}
}
