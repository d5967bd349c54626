//go:build !wireinject && darwin

package inject

import (
	"context"

	"github.com/spf13/afero"

	"akari/internal/config"
	"akari/pkg/controlserver"
	"akari/pkg/ports"
	"akari/pkg/vmengine"
)

// InitializeEngine constructs a VZEngine from cfg.VM.
func InitializeEngine(cfg *config.Config) (ports.VMEngine, error) {
	vmCfg, err := vmEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	return vmengine.New(vmCfg)
}

// InitializeServer wires an afero.OsFs-backed Control Server around
// engine.
func InitializeServer(ctx context.Context, cfg *config.Config, engine ports.VMEngine) (*controlserver.Server, error) {
	return controlserver.New(ctx, afero.NewOsFs(), rootFromConfig(cfg), engine)
}
