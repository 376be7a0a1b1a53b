package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/monahq/mona/models"
)

var (
	// ErrUnsupportedProvider is returned by the registry for identifiers
	// no adapter is registered for. This is a programmer or config error.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrUnsupportedResource is returned by adapters asked to fetch a
	// resource type the provider has no equivalent of.
	ErrUnsupportedResource = errors.New("unsupported resource type")

	// ErrNoRefreshToken is returned when a refresh is attempted for a
	// provider that never issued a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// TokenExchangeError means the provider rejected an authorization code or
// refresh token grant. Body carries the provider's error payload.
type TokenExchangeError struct {
	Provider models.Provider
	Body     string
	Err      error
}

func (e *TokenExchangeError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s token exchange failed: %s", e.Provider, e.Body)
	}

	return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// RequestError wraps any non-auth HTTP failure from a provider API.
// Status and body are kept for diagnostics.
type RequestError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unauthorized reports whether the failure is an authorization one,
// eligible for the single forced-refresh retry.
func (e *RequestError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err is a provider authorization failure.
func IsUnauthorized(err error) bool {
	var reqErr *RequestError

	return errors.As(err, &reqErr) && reqErr.Unauthorized()
}

// ItemParseError marks a single malformed provider item. It is recoverable
// within a sync run: the item is skipped and counted, the run continues.
type ItemParseError struct {
	ProviderID string
	Reason     string
}

func (e *ItemParseError) Error() string {
	return fmt.Sprintf("unparseable provider item %q: %s", e.ProviderID, e.Reason)
}
