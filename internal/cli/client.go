package cli

import (
	"akari/internal/config"
	"akari/pkg/auxproto"
)

func dial(cfg *config.Config) (*auxproto.Client, error) {
	return auxproto.Dial(cfg.ResolvedAuxSock())
}
