package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/monahq/mona/models"
)

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// maxErrorBody caps how much of a provider error payload is retained.
const maxErrorBody = 4 << 10

// bearerDo performs a bearer-authenticated JSON request and decodes the
// response into out (when out is non-nil). Non-2xx responses become a
// *RequestError carrying status and body.
func bearerDo(ctx context.Context, client *http.Client, p models.Provider, method, rawURL, accessToken string, query url.Values, body, out any) error {
	if client == nil {
		client = defaultHTTPClient
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &RequestError{Provider: p, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}

	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", p, err)
	}

	return nil
}

// formPost posts a form-encoded body and decodes the JSON response into
// out. Used by the token endpoints that x/oauth2 cannot drive directly.
func formPost(ctx context.Context, client *http.Client, p models.Provider, rawURL string, form url.Values, headers map[string]string, out any) error {
	if client == nil {
		client = defaultHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TokenExchangeError{Provider: p, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s token response: %w", p, err)
	}

	return nil
}

// expiryFrom converts an expires_in hint into an absolute expiry.
// A zero or negative hint means the token never expires.
func expiryFrom(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}

	return now.Add(time.Duration(expiresIn) * time.Second)
}
