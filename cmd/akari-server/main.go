// Command akari-server is the Control Server daemon: it owns the VM
// Engine and the container state map, and exposes aux.sock to the
// shim adapter and the akari CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"akari/internal/config"
	"akari/internal/inject"
	"akari/pkg/log"
	"akari/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

func main() {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "akari-server",
		Short: "Akari Control Server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.BindCommandToViper(cmd)
			if err := log.Configure(&cfg.Logging); err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	viper.SetEnvPrefix("AKARI")
	log.AddFlagsToCommand(cmd, &cfg.Logging)
	config.AddRootFlags(cmd, cfg)
	config.AddVMFlags(cmd, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger(ctx)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	if cfg.DebugEndpoint != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.DebugEndpoint, mux); err != nil {
				logger.WithError(err).Warn("debug endpoint exited")
			}
		}()
	}

	engine, err := inject.InitializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("initializing VM Engine: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting VM Engine: %w", err)
	}

	server, err := inject.InitializeServer(ctx, cfg, engine)
	if err != nil {
		return fmt.Errorf("initializing Control Server: %w", err)
	}

	auxSock := cfg.ResolvedAuxSock()
	logger.WithField("auxSock", auxSock).Info("starting Control Server")
	return server.ListenAndServe(ctx, auxSock)
}
