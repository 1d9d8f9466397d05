package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/salesmap/pkg/types"
)

type fakeRefresher struct {
	calls int
	cred  *types.Credential
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*types.Credential, error) {
	f.calls++
	return f.cred, f.err
}

type fakeWriter struct {
	sessionID string
	cred      types.Credential
	err       error
}

func (f *fakeWriter) UpdateCredential(ctx context.Context, sessionID string, cred types.Credential) error {
	f.sessionID = sessionID
	f.cred = cred
	return f.err
}

func TestEnsureAccessToken_NoSession(t *testing.T) {
	m := NewTokenManager(&fakeRefresher{}, nil)
	token, err := m.EnsureAccessToken(context.Background(), nil)
	assert.Empty(t, token)
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestEnsureAccessToken_PresentTokenTrusted(t *testing.T) {
	refresher := &fakeRefresher{}
	m := NewTokenManager(refresher, nil)

	token, err := m.EnsureAccessToken(context.Background(), &types.Session{
		Credential: types.Credential{AccessToken: "at", RefreshToken: "rt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "at", token)
	assert.Equal(t, 0, refresher.calls)
}

func TestEnsureAccessToken_NoRefreshToken(t *testing.T) {
	m := NewTokenManager(&fakeRefresher{}, nil)
	_, err := m.EnsureAccessToken(context.Background(), &types.Session{})
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
}

func TestEnsureAccessToken_RefreshesAndPersists(t *testing.T) {
	refresher := &fakeRefresher{cred: &types.Credential{AccessToken: "fresh", RefreshToken: "rt"}}
	writer := &fakeWriter{}
	m := NewTokenManager(refresher, writer)

	session := &types.Session{ID: "sess-1", Credential: types.Credential{RefreshToken: "rt"}}
	token, err := m.EnsureAccessToken(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, "fresh", token)
	assert.Equal(t, "fresh", session.Credential.AccessToken)
	assert.Equal(t, "sess-1", writer.sessionID)
	assert.Equal(t, "fresh", writer.cred.AccessToken)
}

func TestEnsureAccessToken_PersistFailureStillReturnsToken(t *testing.T) {
	refresher := &fakeRefresher{cred: &types.Credential{AccessToken: "fresh"}}
	m := NewTokenManager(refresher, &fakeWriter{err: errors.New("down")})

	token, err := m.EnsureAccessToken(context.Background(), &types.Session{ID: "s", Credential: types.Credential{RefreshToken: "rt"}})
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestEnsureAccessToken_RefreshFailure(t *testing.T) {
	m := NewTokenManager(&fakeRefresher{err: &types.UpstreamError{Status: 400}}, nil)

	token, err := m.EnsureAccessToken(context.Background(), &types.Session{Credential: types.Credential{RefreshToken: "rt"}})
	assert.Empty(t, token)
	assert.ErrorIs(t, err, types.ErrTokenUnavailable)
}
