//go:build !wireinject && !darwin

package inject

import (
	"context"

	"github.com/spf13/afero"

	"akari/internal/config"
	"akari/pkg/controlserver"
	"akari/pkg/ports"
	"akari/pkg/vmengine"
)

// InitializeEngine constructs a MockEngine outside of darwin, where
// Virtualization.framework is unavailable. Useful for running the
// Control Server's own tests and for non-macOS development builds;
// the real binary is darwin-only in production.
func InitializeEngine(cfg *config.Config) (ports.VMEngine, error) {
	if _, err := vmEngineConfig(cfg); err != nil {
		return nil, err
	}
	return vmengine.NewMockEngine(), nil
}

// InitializeServer wires an afero.OsFs-backed Control Server around
// engine.
func InitializeServer(ctx context.Context, cfg *config.Config, engine ports.VMEngine) (*controlserver.Server, error) {
	return controlserver.New(ctx, afero.NewOsFs(), rootFromConfig(cfg), engine)
}
