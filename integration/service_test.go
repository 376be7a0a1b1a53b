package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/provider"
)

func TestInitiateOAuthBindsStateToUserAndProvider(t *testing.T) {
	h := newTestHarness(models.ProviderSlack)

	authURL, state, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)
	require.Contains(t, authURL, "state="+state)

	parts := strings.SplitN(state, ":", 3)
	require.Len(t, parts, 3)
	require.Equal(t, "user-1", parts[0])
	require.Equal(t, "slack", parts[1])
	require.NotEmpty(t, parts[2])
}

func TestInitiateOAuthUnknownProvider(t *testing.T) {
	h := newTestHarness(models.ProviderSlack)

	_, _, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderCalendly)
	require.ErrorIs(t, err, provider.ErrUnsupportedProvider)
}

func TestCompleteOAuthStoresEncryptedTokens(t *testing.T) {
	h := newTestHarness(models.ProviderSlack)
	h.adapter.identity = provider.UserIdentity{ExternalID: "U123", Email: "a@b.example"}

	_, state, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)

	integ, err := h.service.CompleteOAuth(context.Background(), "user-1", models.ProviderSlack, "the-code", state, state)
	require.NoError(t, err)
	require.Equal(t, models.StatusConnected, integ.Status)
	require.True(t, integ.SyncEnabled)
	require.Equal(t, "U123", integ.ProviderUserID)
	require.Equal(t, "a@b.example", integ.ProviderEmail)

	// Tokens are stored as ciphertext, never plaintext.
	require.NotEqual(t, "access-for-the-code", integ.AccessToken)
	require.Equal(t, "access-for-the-code", h.vault.Decrypt(integ.AccessToken))
	require.Equal(t, "refresh-for-the-code", h.vault.Decrypt(integ.RefreshToken))
}

func TestCompleteOAuthRejectsTamperedState(t *testing.T) {
	h := newTestHarness(models.ProviderSlack)

	_, state, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)

	cases := map[string]struct {
		state    string
		expected string
		userID   string
	}{
		"missing state":      {state: "", expected: state, userID: "user-1"},
		"missing expected":   {state: state, expected: "", userID: "user-1"},
		"mismatched echo":    {state: state + "x", expected: state, userID: "user-1"},
		"different user":     {state: state, expected: state, userID: "user-2"},
		"malformed state":    {state: "nonsense", expected: "nonsense", userID: "user-1"},
		"wrong provider bit": {state: "user-1:github:abc", expected: "user-1:github:abc", userID: "user-1"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.service.CompleteOAuth(context.Background(), tc.userID, models.ProviderSlack, "code", tc.state, tc.expected)
			require.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestCompleteOAuthReconnectUpsertsExisting(t *testing.T) {
	h := newTestHarness(models.ProviderSlack)

	_, state, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)

	first, err := h.service.CompleteOAuth(context.Background(), "user-1", models.ProviderSlack, "code-1", state, state)
	require.NoError(t, err)

	_, state, err = h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderSlack)
	require.NoError(t, err)

	second, err := h.service.CompleteOAuth(context.Background(), "user-1", models.ProviderSlack, "code-2", state, state)
	require.NoError(t, err)

	// Reconnecting replaces tokens on the same row instead of creating a
	// second integration for the pair.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "access-for-code-2", h.vault.Decrypt(second.AccessToken))

	list, err := h.service.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCompleteOAuthInitialSyncFailureIsNonFatal(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	h.adapter.fetchFn = func(string) ([]provider.Item, error) {
		return nil, &provider.RequestError{
			Provider:   models.ProviderGoogleCalendar,
			StatusCode: 503,
			Body:       "unavailable",
		}
	}

	_, state, err := h.service.InitiateOAuth(context.Background(), "user-1", models.ProviderGoogleCalendar)
	require.NoError(t, err)

	integ, err := h.service.CompleteOAuth(context.Background(), "user-1", models.ProviderGoogleCalendar, "code", state, state)
	require.NoError(t, err)
	require.Equal(t, models.StatusConnected, integ.Status)

	// The failed first sync still left an audit record.
	runs, err := h.runs.Select(context.Background(), models.SyncRunQuery{IntegrationID: integ.ID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, models.SyncFailed, runs[0].Status)
}

func TestDisconnectKeepsDataButStopsSync(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	integ := h.seedIntegration("user-1", time.Now().Add(time.Hour))

	out, err := h.service.Disconnect(context.Background(), "user-1", integ.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDisconnected, out.Status)
	require.False(t, out.SyncEnabled)

	enabled, err := h.integrations.ListSyncEnabled(context.Background())
	require.NoError(t, err)
	require.Empty(t, enabled)
}

func TestDisconnectEnforcesOwnership(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	integ := h.seedIntegration("user-1", time.Now().Add(time.Hour))

	_, err := h.service.Disconnect(context.Background(), "intruder", integ.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	stored, err := h.integrations.Get(context.Background(), integ.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusConnected, stored.Status)
}

func TestDeleteRemovesIntegration(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	integ := h.seedIntegration("user-1", time.Now().Add(time.Hour))

	require.NoError(t, h.service.Delete(context.Background(), "user-1", integ.ID))

	_, err := h.integrations.Get(context.Background(), integ.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetSyncEnabledToggles(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	integ := h.seedIntegration("user-1", time.Now().Add(time.Hour))

	out, err := h.service.SetSyncEnabled(context.Background(), "user-1", integ.ID, false)
	require.NoError(t, err)
	require.False(t, out.SyncEnabled)

	_, err = h.syncer.Run(context.Background(), integ.ID)
	require.ErrorIs(t, err, ErrSyncDisabled)

	out, err = h.service.SetSyncEnabled(context.Background(), "user-1", integ.ID, true)
	require.NoError(t, err)
	require.True(t, out.SyncEnabled)
}

func TestSyncNowEnforcesOwnership(t *testing.T) {
	h := newTestHarness(models.ProviderGoogleCalendar)
	integ := h.seedIntegration("user-1", time.Now().Add(time.Hour))

	_, err := h.service.SyncNow(context.Background(), "intruder", integ.ID)
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestCallProviderHandsDecryptedToken(t *testing.T) {
	h := newTestHarness(models.ProviderGitHub)
	integ := h.seedIntegration("user-1", time.Time{})

	var got string

	err := h.service.CallProvider(context.Background(), "user-1", integ.ID, func(adapter provider.Adapter, token string) error {
		require.Equal(t, models.ProviderGitHub, adapter.Provider())
		got = token

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "seed-access", got)
}

func TestCallProviderRejectsDisconnected(t *testing.T) {
	h := newTestHarness(models.ProviderGitHub)
	integ := h.seedIntegration("user-1", time.Time{})

	integ.Status = models.StatusDisconnected
	require.NoError(t, h.integrations.Update(context.Background(), &integ))

	err := h.service.CallProvider(context.Background(), "user-1", integ.ID, func(provider.Adapter, string) error {
		t.Fatal("fn must not run for a disconnected integration")

		return nil
	})
	require.ErrorIs(t, err, ErrNotConnected)
}
