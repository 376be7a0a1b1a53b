package runner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/integration"
	"github.com/monahq/mona/pkg/encryption"
	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/tlmt"
)

// Services bundles the integration core shared by the web and worker modes.
type Services struct {
	Vault    *encryption.Vault
	Registry *provider.Registry
	Tokens   *integration.TokenManager
	Syncer   *integration.Syncer
	Service  *integration.Service
}

// BuildServices wires the token vault, the provider registry and the sync
// engine over the given stores.
func BuildServices(cfg *config.Config, stores *Stores, telemetry tlmt.Telemetry, logger *zap.Logger) (*Services, error) {
	vault, err := encryption.NewVault(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token vault: %w", err)
	}

	registry := provider.NewDefaultRegistry(cfg)

	tokens := integration.NewTokenManager(stores.Integrations, registry, vault, logger)

	syncer := integration.NewSyncer(
		stores.Integrations,
		stores.Events,
		stores.Emails,
		stores.Runs,
		tokens,
		registry,
		telemetry,
		logger,
	)

	svc := integration.NewService(
		stores.Integrations,
		registry,
		vault,
		tokens,
		syncer,
		telemetry,
		logger,
	)

	return &Services{
		Vault:    vault,
		Registry: registry,
		Tokens:   tokens,
		Syncer:   syncer,
		Service:  svc,
	}, nil
}
