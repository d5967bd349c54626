package log

import "github.com/spf13/cobra"

// AddFlagsToCommand registers the logging flags on cmd, binding their
// values into cfg.
func AddFlagsToCommand(cmd *cobra.Command, cfg *Config) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Level, "log-level", "info", "the minimum log level to emit (debug, info, warn, error)")
	flags.StringVar(&cfg.Format, "log-format", "text", "the log format to use (text, json)")
	flags.StringVar(&cfg.Output, "log-output", "stderr", "the log output destination (stderr, stdout, or a file path)")
}
