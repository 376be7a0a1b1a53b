package integration

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress means another sync for the same integration holds
	// the per-integration lock. Callers fail fast rather than queue.
	ErrSyncInProgress = errors.New("sync already in progress for this integration")

	// ErrNotConnected means the integration is not in connected status.
	ErrNotConnected = errors.New("integration is not connected")

	// ErrSyncDisabled means the user turned periodic sync off.
	ErrSyncDisabled = errors.New("sync is disabled for this integration")

	// ErrInvalidState means the OAuth state parameter was missing,
	// tampered with, or bound to a different user or provider.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrNotOwner means the integration belongs to a different user.
	ErrNotOwner = errors.New("integration does not belong to user")
)

// TokenRefreshError means the provider rejected the refresh token. The
// integration stays expired until the user re-authorizes; there is no
// automatic recovery.
type TokenRefreshError struct {
	IntegrationID string
	Err           error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for integration %s: %v", e.IntegrationID, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }
