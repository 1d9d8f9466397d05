package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/beam-cloud/salesmap/pkg/types"
)

// Scopes requested at consent time
var gmailScopes = []string{
	"openid",
	"email",
	"https://www.googleapis.com/auth/gmail.readonly",
}

// GoogleClient handles Google OAuth operations for mailbox access
type GoogleClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	endpoint     oauth2.Endpoint
	httpClient   *http.Client
}

// NewGoogleClient creates a new Google OAuth client from config
func NewGoogleClient(cfg types.GoogleOAuthConfig) *GoogleClient {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &GoogleClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns true if client credentials are present. The redirect
// URL is optional and falls back to one derived from the incoming request.
func (g *GoogleClient) IsConfigured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

// RedirectURL returns the configured redirect URL, or fallback if none is set
func (g *GoogleClient) RedirectURL(fallback string) string {
	if g.redirectURL != "" {
		return g.redirectURL
	}
	return fallback
}

// AuthorizeURL generates the consent screen URL
func (g *GoogleClient) AuthorizeURL(state, redirectURL string) (string, error) {
	if !g.IsConfigured() {
		return "", types.ErrNotConfigured
	}

	cfg := g.oauthConfig(redirectURL)

	// Offline access plus forced consent so a refresh token is always issued
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Exchange exchanges an authorization code for a credential
func (g *GoogleClient) Exchange(ctx context.Context, code, redirectURL string) (*types.Credential, error) {
	if !g.IsConfigured() {
		return nil, types.ErrNotConfigured
	}

	cfg := g.oauthConfig(redirectURL)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange failed: %w", err)
	}

	return &types.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IssuedAt:     time.Now(),
	}, nil
}

// Refresh exchanges a refresh token for a new access token
func (g *GoogleClient) Refresh(ctx context.Context, refreshToken string) (*types.Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}
	if !g.IsConfigured() {
		return nil, types.ErrNotConfigured
	}

	data := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &types.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}

	// Google only rotates the refresh token occasionally
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}

	return &types.Credential{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		IssuedAt:     time.Now(),
	}, nil
}

func (g *GoogleClient) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		RedirectURL:  g.RedirectURL(redirectURL),
		Scopes:       gmailScopes,
		Endpoint:     g.endpoint,
	}
}
