package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/pkg/encryption"
	"github.com/monahq/mona/provider"
)

// TokenState is the lifecycle state of an integration's access token.
type TokenState int

const (
	// TokenValid: expiry is unset or in the future and a token decrypts.
	TokenValid TokenState = iota
	// TokenExpired: expiry has passed; a refresh is due.
	TokenExpired
	// TokenRefreshing: a refresh call is in flight.
	TokenRefreshing
	// TokenInvalid: refresh failed; only re-authorization recovers.
	TokenInvalid
)

func (s TokenState) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	case TokenRefreshing:
		return "refreshing"
	case TokenInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// TokenManager owns token expiry detection, refresh-on-demand and the
// single forced retry after an authorization failure. Every refresh
// persists the integration atomically under a per-integration lock, so a
// rotated refresh token is never lost to a concurrent writer.
type TokenManager struct {
	repo     models.IntegrationRepository
	registry *provider.Registry
	vault    *encryption.Vault
	logger   *zap.Logger
	locks    *keyedMutex
	now      func() time.Time
}

func NewTokenManager(repo models.IntegrationRepository, registry *provider.Registry, vault *encryption.Vault, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		repo:     repo,
		registry: registry,
		vault:    vault,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// State reports the current token state of an integration.
func (m *TokenManager) State(integ *models.Integration) TokenState {
	if integ.Status == models.StatusExpired {
		return TokenInvalid
	}

	if integ.TokenExpired(m.now()) {
		return TokenExpired
	}

	return TokenValid
}

// GetValidToken returns a decrypted access token, refreshing first when
// the stored one is expired or no longer decrypts. A refresh failure
// marks the integration expired and returns a *TokenRefreshError.
func (m *TokenManager) GetValidToken(ctx context.Context, integ *models.Integration) (string, error) {
	if m.State(integ) == TokenValid {
		if token := m.vault.Decrypt(integ.AccessToken); token != "" {
			return token, nil
		}

		// Stored blob no longer decrypts; treat as no token available.
		m.logger.Warn("stored access token does not decrypt, forcing refresh",
			zap.String("integration_id", integ.ID))
	}

	return m.refresh(ctx, integ, "")
}

// CallWithRetry runs fn with a valid token. When the provider answers
// with an authorization failure it forces one refresh, bypassing the
// expiry check, and retries exactly once. A second failure propagates
// unmodified. This guards against clock-skew false negatives on expiry.
func (m *TokenManager) CallWithRetry(ctx context.Context, integ *models.Integration, fn func(token string) error) error {
	token, err := m.GetValidToken(ctx, integ)
	if err != nil {
		return err
	}

	err = fn(token)
	if err == nil || !provider.IsUnauthorized(err) {
		return err
	}

	m.logger.Info("provider rejected token, forcing one refresh",
		zap.String("integration_id", integ.ID),
		zap.String("provider", string(integ.Provider)))

	token, refreshErr := m.refresh(ctx, integ, token)
	if refreshErr != nil {
		return refreshErr
	}

	return fn(token)
}

// refresh exchanges the stored refresh token for new tokens and persists
// them. Refresh tokens may rotate on every call, so the returned refresh
// token is persisted before anything else can fail. staleToken, when
// non-empty, is a token the provider already rejected; it must never be
// handed back even if it is what storage still holds.
func (m *TokenManager) refresh(ctx context.Context, integ *models.Integration, staleToken string) (string, error) {
	unlock := m.locks.Lock(integ.ID)
	defer unlock()

	// Re-read under the lock: a concurrent caller may have refreshed
	// already, in which case the fresh token is simply reused.
	current, err := m.repo.Get(ctx, integ.ID)
	if err == nil {
		*integ = current

		if !integ.TokenExpired(m.now()) && integ.Status == models.StatusConnected {
			if token := m.vault.Decrypt(integ.AccessToken); token != "" && token != staleToken {
				return token, nil
			}
		}
	}

	adapter, err := m.registry.Resolve(integ.Provider)
	if err != nil {
		return "", err
	}

	m.logger.Debug("refreshing access token",
		zap.String("integration_id", integ.ID),
		zap.String("provider", string(integ.Provider)),
		zap.String("state", TokenRefreshing.String()))

	refreshToken := m.vault.Decrypt(integ.RefreshToken)

	tok, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		integ.Status = models.StatusExpired
		integ.UpdatedAt = m.now()

		if updateErr := m.repo.Update(ctx, integ); updateErr != nil {
			m.logger.Error("failed to persist expired status", zap.Error(updateErr),
				zap.String("integration_id", integ.ID))
		}

		return "", &TokenRefreshError{IntegrationID: integ.ID, Err: err}
	}

	encryptedAccess, err := m.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return "", err
	}

	integ.AccessToken = encryptedAccess
	integ.TokenExpiresAt = tok.Expiry
	integ.Status = models.StatusConnected
	integ.UpdatedAt = m.now()

	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		encryptedRefresh, err := m.vault.Encrypt(tok.RefreshToken)
		if err != nil {
			return "", err
		}

		integ.RefreshToken = encryptedRefresh
	}

	if err := m.repo.Update(ctx, integ); err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}
