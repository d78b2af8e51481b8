package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ExchangeSource exchanges a caller session key for an upstream credential
// by posting a refresh grant to the session provider's token endpoint.
type ExchangeSource struct {
	tokenURL   string
	apiKey     string
	httpClient *http.Client
}

// NewExchangeSource builds an ExchangeSource for the given token endpoint.
// apiKey is optional; when set it is sent as the provider's apikey header.
func NewExchangeSource(tokenURL, apiKey string) *ExchangeSource {
	return &ExchangeSource{
		tokenURL: tokenURL,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Session posts the session key as a refresh-token grant and parses the
// provider's token response.
func (s *ExchangeSource) Session(ctx context.Context, sessionKey string) (Credential, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {sessionKey},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("failed to create session refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("session refresh request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read session refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("session refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err = json.Unmarshal(body, &tokenResp); err != nil {
		return Credential{}, fmt.Errorf("failed to parse session refresh response: %w", err)
	}

	cred := Credential{Token: tokenResp.AccessToken}
	switch {
	case tokenResp.ExpiresAt > 0:
		cred.ExpiresAt = time.Unix(tokenResp.ExpiresAt, 0)
	case tokenResp.ExpiresIn > 0:
		cred.ExpiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return cred, nil
}

// StaticSource returns one fixed token for every session. Intended for
// development setups and tests where no session provider runs.
type StaticSource struct {
	Token string
}

// Session returns the fixed token. The provider applies its TTL fallback
// since a static token reports no expiry.
func (s StaticSource) Session(_ context.Context, _ string) (Credential, error) {
	if strings.TrimSpace(s.Token) == "" {
		return Credential{}, errors.New("static token is not configured")
	}
	return Credential{Token: s.Token}, nil
}
