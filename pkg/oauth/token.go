package oauth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/types"
)

// Refresher exchanges a refresh token for a fresh credential
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*types.Credential, error)
}

// CredentialWriter persists a refreshed credential onto its session
type CredentialWriter interface {
	UpdateCredential(ctx context.Context, sessionID string, cred types.Credential) error
}

// TokenManager hands out access tokens for a session. Token presence is
// trusted: an expired but present token is returned as-is and surfaces as an
// upstream 401.
type TokenManager struct {
	refresher Refresher
	writer    CredentialWriter
}

// NewTokenManager creates a TokenManager. writer may be nil, in which case
// refreshed tokens only live for the current request.
func NewTokenManager(refresher Refresher, writer CredentialWriter) *TokenManager {
	return &TokenManager{refresher: refresher, writer: writer}
}

// EnsureAccessToken returns a usable access token for session, refreshing it
// when only a refresh token is held.
func (m *TokenManager) EnsureAccessToken(ctx context.Context, session *types.Session) (string, error) {
	if session == nil {
		return "", types.ErrUnauthenticated
	}

	if session.Credential.HasAccessToken() {
		return session.Credential.AccessToken, nil
	}

	if session.Credential.RefreshToken == "" || m.refresher == nil {
		return "", types.ErrUnauthenticated
	}

	cred, err := m.refresher.Refresh(ctx, session.Credential.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("access token refresh failed")
		return "", fmt.Errorf("%w: %v", types.ErrTokenUnavailable, err)
	}

	session.Credential = *cred

	if m.writer != nil {
		if err := m.writer.UpdateCredential(ctx, session.ID, *cred); err != nil {
			log.Warn().Err(err).Msg("failed to persist refreshed credential")
		}
	}

	return cred.AccessToken, nil
}
