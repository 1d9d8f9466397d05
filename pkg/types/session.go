package types

import "time"

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultStateTTL   = 15 * time.Minute
)

// Credential is the opaque access/refresh token pair for the mail provider.
// An empty AccessToken means the token must be refreshed before use.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// HasAccessToken returns true if an access token is present
func (c Credential) HasAccessToken() bool {
	return c.AccessToken != ""
}

// Session is the server-side record behind the session cookie
type Session struct {
	ID         string     `json:"id"`
	Credential Credential `json:"credential"`
	CreatedAt  time.Time  `json:"createdAt"`
	Template   *Template  `json:"template,omitempty"`
}
