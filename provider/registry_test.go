package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewGitHub(config.OAuthClient{ClientID: "id", ClientSecret: "secret"}, "http://localhost/cb"))

	adapter, err := registry.Resolve(models.ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGitHub, adapter.Provider())
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve(models.ProviderSlack)
	require.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = registry.Resolve(models.Provider("myspace"))
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewDefaultRegistry_OnlyConfiguredProviders(t *testing.T) {
	cfg := &config.Config{
		FrontendURL: "http://localhost:3000",
		Google:      config.OAuthClient{ClientID: "id", ClientSecret: "secret"},
		Slack:       config.OAuthClient{ClientID: "id", ClientSecret: "secret"},
	}

	registry := NewDefaultRegistry(cfg)

	assert.Equal(t, []models.Provider{
		models.ProviderGoogleCalendar,
		models.ProviderGoogleGmail,
		models.ProviderSlack,
	}, registry.Providers())

	_, err := registry.Resolve(models.ProviderGitHub)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewDefaultRegistry_SharedAdapterFamilies(t *testing.T) {
	cfg := &config.Config{
		FrontendURL: "http://localhost:3000",
		Microsoft:   config.OAuthClient{ClientID: "id", ClientSecret: "secret"},
	}

	registry := NewDefaultRegistry(cfg)

	calendar, err := registry.Resolve(models.ProviderMicrosoftCalendar)
	require.NoError(t, err)

	outlook, err := registry.Resolve(models.ProviderMicrosoftOutlook)
	require.NoError(t, err)

	assert.Equal(t, models.ProviderMicrosoftCalendar, calendar.Provider())
	assert.Equal(t, models.ProviderMicrosoftOutlook, outlook.Provider())
}
