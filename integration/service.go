package integration

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/pkg/encryption"
	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/tlmt"
)

// Service is the application-facing surface for connecting, listing and
// disconnecting provider integrations. Token blobs never leave the
// service decrypted except through CallProvider.
type Service struct {
	integrations models.IntegrationRepository
	registry     *provider.Registry
	vault        *encryption.Vault
	tokens       *TokenManager
	syncer       *Syncer
	telemetry    tlmt.Telemetry
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(
	integrations models.IntegrationRepository,
	registry *provider.Registry,
	vault *encryption.Vault,
	tokens *TokenManager,
	syncer *Syncer,
	telemetry tlmt.Telemetry,
	logger *zap.Logger,
) *Service {
	return &Service{
		integrations: integrations,
		registry:     registry,
		vault:        vault,
		tokens:       tokens,
		syncer:       syncer,
		telemetry:    telemetry,
		logger:       logger,
		now:          time.Now,
	}
}

// Providers lists the providers with configured OAuth credentials.
func (s *Service) Providers() []models.Provider {
	return s.registry.Providers()
}

// InitiateOAuth builds the provider consent URL. The returned state binds
// the flow to the requesting user and provider; the caller must echo it
// back verbatim to CompleteOAuth.
func (s *Service) InitiateOAuth(ctx context.Context, userID string, p models.Provider) (authURL, state string, err error) {
	adapter, err := s.registry.Resolve(p)
	if err != nil {
		return "", "", err
	}

	state = fmt.Sprintf("%s:%s:%s", userID, p, uuid.New().String())

	return adapter.AuthorizationURL(state), state, nil
}

// CompleteOAuth finishes the authorization code flow: it validates the
// echoed state against the one issued at initiation, exchanges the code,
// encrypts the tokens and upserts the integration as connected. A first
// sync is kicked off best-effort; its failure does not fail the connect.
func (s *Service) CompleteOAuth(ctx context.Context, userID string, p models.Provider, code, state, expectedState string) (models.Integration, error) {
	adapter, err := s.registry.Resolve(p)
	if err != nil {
		return models.Integration{}, err
	}

	if err := validateState(userID, p, state, expectedState); err != nil {
		return models.Integration{}, err
	}

	tok, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return models.Integration{}, err
	}

	encryptedAccess, err := s.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return models.Integration{}, err
	}

	var encryptedRefresh string
	if tok.RefreshToken != "" {
		encryptedRefresh, err = s.vault.Encrypt(tok.RefreshToken)
		if err != nil {
			return models.Integration{}, err
		}
	}

	integ := models.Integration{
		ID:             uuid.New().String(),
		UserID:         userID,
		Provider:       p,
		Status:         models.StatusConnected,
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		TokenExpiresAt: tok.Expiry,
		SyncEnabled:    true,
		CreatedAt:      s.now(),
		UpdatedAt:      s.now(),
	}

	identity, err := adapter.UserIdentity(ctx, tok.AccessToken)
	if err != nil {
		s.logger.Warn("could not fetch provider identity at connect",
			zap.String("provider", string(p)), zap.Error(err))
	} else {
		integ.ProviderUserID = identity.ExternalID
		integ.ProviderEmail = identity.Email
	}

	if err := s.integrations.Save(ctx, &integ); err != nil {
		return models.Integration{}, err
	}

	s.logger.Info("integration connected",
		zap.String("integration_id", integ.ID),
		zap.String("user_id", userID),
		zap.String("provider", string(p)))

	_ = s.telemetry.Send(ctx, tlmt.NewEvent(userID, "integration_connected", map[string]any{
		"provider": string(p),
	}))

	if _, ok := p.SyncResource(); ok {
		if _, err := s.syncer.Run(ctx, integ.ID); err != nil {
			s.logger.Warn("initial sync after connect failed",
				zap.String("integration_id", integ.ID), zap.Error(err))
		}
	}

	return integ, nil
}

// validateState requires a byte-for-byte match with the issued state and
// that the embedded user and provider agree with the completing request.
func validateState(userID string, p models.Provider, state, expectedState string) error {
	if state == "" || expectedState == "" {
		return ErrInvalidState
	}

	if subtle.ConstantTimeCompare([]byte(state), []byte(expectedState)) != 1 {
		return ErrInvalidState
	}

	parts := strings.SplitN(state, ":", 3)
	if len(parts) != 3 || parts[0] != userID || parts[1] != string(p) {
		return ErrInvalidState
	}

	return nil
}

// List returns the user's integrations.
func (s *Service) List(ctx context.Context, userID string) ([]models.Integration, error) {
	return s.integrations.ListByUser(ctx, userID)
}

// GetOwned fetches an integration and enforces ownership.
func (s *Service) GetOwned(ctx context.Context, userID, integrationID string) (models.Integration, error) {
	integ, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return models.Integration{}, err
	}

	if integ.UserID != userID {
		return models.Integration{}, ErrNotOwner
	}

	return integ, nil
}

// Disconnect marks the integration disconnected and stops periodic sync.
// Stored tokens and synced data are kept; Delete removes them.
func (s *Service) Disconnect(ctx context.Context, userID, integrationID string) (models.Integration, error) {
	integ, err := s.GetOwned(ctx, userID, integrationID)
	if err != nil {
		return models.Integration{}, err
	}

	integ.Status = models.StatusDisconnected
	integ.SyncEnabled = false
	integ.UpdatedAt = s.now()

	if err := s.integrations.Update(ctx, &integ); err != nil {
		return models.Integration{}, err
	}

	s.logger.Info("integration disconnected",
		zap.String("integration_id", integ.ID),
		zap.String("user_id", userID))

	return integ, nil
}

// Delete removes the integration together with its synced resources and
// sync runs.
func (s *Service) Delete(ctx context.Context, userID, integrationID string) error {
	integ, err := s.GetOwned(ctx, userID, integrationID)
	if err != nil {
		return err
	}

	if err := s.integrations.Delete(ctx, integ.ID); err != nil {
		return err
	}

	s.logger.Info("integration deleted",
		zap.String("integration_id", integ.ID),
		zap.String("user_id", userID))

	return nil
}

// SetSyncEnabled toggles periodic sync for a connected integration.
func (s *Service) SetSyncEnabled(ctx context.Context, userID, integrationID string, enabled bool) (models.Integration, error) {
	integ, err := s.GetOwned(ctx, userID, integrationID)
	if err != nil {
		return models.Integration{}, err
	}

	integ.SyncEnabled = enabled
	integ.UpdatedAt = s.now()

	if err := s.integrations.Update(ctx, &integ); err != nil {
		return models.Integration{}, err
	}

	return integ, nil
}

// SyncNow runs a sync for the user's integration and returns the audit
// record of the attempt.
func (s *Service) SyncNow(ctx context.Context, userID, integrationID string) (models.SyncRun, error) {
	integ, err := s.GetOwned(ctx, userID, integrationID)
	if err != nil {
		return models.SyncRun{}, err
	}

	return s.syncer.Run(ctx, integ.ID)
}

// CallProvider runs fn against the provider with a valid decrypted token,
// refreshing and retrying once on an authorization failure. It is the
// only path that hands plaintext tokens outside the service.
func (s *Service) CallProvider(ctx context.Context, userID, integrationID string, fn func(adapter provider.Adapter, token string) error) error {
	integ, err := s.GetOwned(ctx, userID, integrationID)
	if err != nil {
		return err
	}

	if integ.Status != models.StatusConnected {
		return fmt.Errorf("integration %s: %w", integ.ID, ErrNotConnected)
	}

	adapter, err := s.registry.Resolve(integ.Provider)
	if err != nil {
		return err
	}

	return s.tokens.CallWithRetry(ctx, &integ, func(token string) error {
		return fn(adapter, token)
	})
}
