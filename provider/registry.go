package provider

import (
	"fmt"
	"sort"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

// Registry maps provider identifiers to adapters. It is a closed lookup
// table and the single place new providers are wired in; no other
// component branches on provider identity.
type Registry struct {
	adapters map[models.Provider]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Provider]Adapter)}
}

// Register wires an adapter under its own provider identifier.
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Provider()] = adapter
}

// Resolve returns the adapter for a provider identifier.
func (r *Registry) Resolve(p models.Provider) (Adapter, error) {
	adapter, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
	}

	return adapter, nil
}

// Providers lists the registered provider identifiers, sorted.
func (r *Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r.adapters))

	for p := range r.adapters {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// NewDefaultRegistry wires every provider whose OAuth credentials are
// configured. Related providers share one adapter family distinguished by
// the provider kind (google_calendar and google_gmail, microsoft_calendar
// and microsoft_outlook).
func NewDefaultRegistry(cfg *config.Config) *Registry {
	registry := NewRegistry()
	redirectURL := cfg.RedirectURL()

	if cfg.Google.Configured() {
		registry.Register(NewGoogle(cfg.Google, redirectURL, models.ProviderGoogleCalendar))
		registry.Register(NewGoogle(cfg.Google, redirectURL, models.ProviderGoogleGmail))
	}

	if cfg.Microsoft.Configured() {
		registry.Register(NewMicrosoft(cfg.Microsoft, redirectURL, models.ProviderMicrosoftCalendar))
		registry.Register(NewMicrosoft(cfg.Microsoft, redirectURL, models.ProviderMicrosoftOutlook))
	}

	if cfg.GitHub.Configured() {
		registry.Register(NewGitHub(cfg.GitHub, redirectURL))
	}

	if cfg.Slack.Configured() {
		registry.Register(NewSlack(cfg.Slack, redirectURL))
	}

	if cfg.Calendly.Configured() {
		registry.Register(NewCalendly(cfg.Calendly, redirectURL))
	}

	return registry
}
