// Package azuread fetches managed-identity access tokens from the Azure
// instance metadata service. The token backs the rotating PostgreSQL
// credential on deployments where the database authenticates via Entra ID.
package azuread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gridmesh/csip-core/internal/cache"
	"github.com/gridmesh/csip-core/internal/config"
)

const (
	imdsTokenURL   = "http://169.254.169.254/metadata/identity/oauth2/token"
	imdsAPIVersion = "2018-02-01"

	requestTimeout = 60 * time.Second

	// expiryMargin forces a refresh before the token actually lapses so an
	// in-flight connection never presents a dead credential.
	expiryMargin = 5 * time.Minute
)

type imdsTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresOn   string `json:"expires_on"`
}

// TokenProvider caches managed-identity tokens per resource.
type TokenProvider struct {
	cfg      config.AzureADConfig
	endpoint string
	client   *http.Client
	cache    *cache.Expiring[struct{}, string, string]
}

// NewTokenProvider creates a provider for the given managed identity.
func NewTokenProvider(cfg config.AzureADConfig) *TokenProvider {
	p := &TokenProvider{
		cfg:      cfg,
		endpoint: imdsTokenURL,
		client:   &http.Client{Timeout: requestTimeout},
	}
	p.cache = cache.NewExpiring(p.refresh)
	return p
}

// DatabasePassword returns a live access token for the database resource.
// It satisfies database.PasswordProvider.
func (p *TokenProvider) DatabasePassword(ctx context.Context) (string, error) {
	token, ok, err := p.cache.Get(ctx, struct{}{}, p.cfg.DBResourceID)
	if err != nil {
		return "", fmt.Errorf("fetching managed identity token: %w", err)
	}
	if !ok {
		return "", errors.New("managed identity token missing after refresh")
	}
	return token, nil
}

func (p *TokenProvider) refresh(ctx context.Context, _ struct{}) (map[string]cache.Entry[string], error) {
	token, expiry, err := p.fetch(ctx, p.cfg.DBResourceID)
	if err != nil {
		return nil, err
	}
	return map[string]cache.Entry[string]{
		p.cfg.DBResourceID: {Value: token, Expiry: &expiry},
	}, nil
}

func (p *TokenProvider) fetch(ctx context.Context, resource string) (string, time.Time, error) {
	q := url.Values{}
	q.Set("api-version", imdsAPIVersion)
	q.Set("resource", resource)
	if p.cfg.ClientID != "" {
		q.Set("client_id", p.cfg.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Metadata", "true")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("requesting token from instance metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("instance metadata returned %d: %s", resp.StatusCode, body)
	}

	var tr imdsTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, errors.New("instance metadata returned an empty token")
	}

	expiresOn, err := strconv.ParseInt(tr.ExpiresOn, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing token expiry %q: %w", tr.ExpiresOn, err)
	}
	expiry := time.Unix(expiresOn, 0).UTC().Add(-expiryMargin)

	// Deployments can force earlier rotation than the token lifetime.
	if p.cfg.DBRefreshSecs > 0 {
		if cap := time.Now().UTC().Add(p.cfg.DBRefreshSecs); cap.Before(expiry) {
			expiry = cap
		}
	}
	return tr.AccessToken, expiry, nil
}
