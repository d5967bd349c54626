//go:build wireinject

// Package inject wires the Control Server's dependencies with
// google/wire: a wireinject-tagged source of truth (this file) plus a
// hand-verified wire_gen_darwin.go/wire_gen_other.go pair, since `wire`
// itself is not run as part of the build.
package inject

import (
	"context"

	"github.com/google/wire"
	"github.com/spf13/afero"

	"akari/internal/config"
	"akari/pkg/controlserver"
	"akari/pkg/ports"
	"akari/pkg/vmengine"
)

// InitializeEngine builds the platform VM Engine (VZEngine on darwin,
// MockEngine elsewhere) from the daemon configuration.
func InitializeEngine(cfg *config.Config) (ports.VMEngine, error) {
	wire.Build(vmEngineConfig, newEngine)
	return nil, nil
}

// InitializeServer builds the Control Server around an already-started
// VM Engine.
func InitializeServer(ctx context.Context, cfg *config.Config, engine ports.VMEngine) (*controlserver.Server, error) {
	wire.Build(afero.NewOsFs, controlserver.New, rootFromConfig)
	return nil, nil
}

// vmEngineConfig and rootFromConfig live in providers.go, shared with
// the per-platform wire_gen files.

// newEngine stands in for the per-platform engine constructor;
// wire_gen_darwin.go and wire_gen_other.go call vmengine.New and
// vmengine.NewMockEngine directly instead.
func newEngine(cfg *vmengine.Config) (ports.VMEngine, error) {
	return nil, nil
}
