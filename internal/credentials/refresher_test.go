package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeStore struct {
	calls   int
	access  string
	refresh string
	err     error
}

func (f *fakeStore) UpdateTokens(ctx context.Context, id, access, refresh string, exp time.Time) error {
	f.calls++
	f.access, f.refresh = access, refresh
	return f.err
}

func newTokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRefresher(srv *httptest.Server) *OAuthRefresher {
	r := NewOAuthRefresher(ClientCredentials{ClientID: "gid", ClientSecret: "gs"}, ClientCredentials{}, "", logging.Nop())
	r.SetConfig(models.ProviderGoogle, &oauth2.Config{
		ClientID: "gid", ClientSecret: "gs",
		Endpoint: oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	})
	return r.WithHTTPClient(srv.Client())
}

func TestAccessToken_ValidTokenIsReused(t *testing.T) {
	r := NewOAuthRefresher(ClientCredentials{}, ClientCredentials{}, "", logging.Nop())
	store := &fakeStore{}
	conn := &models.Connection{ID: "c1", Provider: models.ProviderGoogle, Active: true, AccessToken: "at", TokenExpiresAt: time.Now().Add(time.Hour)}

	tok, err := r.AccessToken(context.Background(), conn, store)
	require.NoError(t, err)
	assert.Equal(t, "at", tok)
	assert.Zero(t, store.calls)
}

func TestAccessToken_RefreshesExpiredToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"new-at","token_type":"Bearer","expires_in":3600}`)
	r := newRefresher(srv)
	store := &fakeStore{}
	conn := &models.Connection{ID: "c1", Provider: models.ProviderGoogle, Active: true, AccessToken: "old", RefreshToken: "rt", TokenExpiresAt: time.Now().Add(-time.Minute)}

	tok, err := r.AccessToken(context.Background(), conn, store)
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok)
	assert.Equal(t, "new-at", conn.AccessToken)
	assert.Equal(t, "rt", conn.RefreshToken)
	assert.True(t, conn.TokenExpiresAt.After(time.Now()))
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, "", store.refresh, "unchanged refresh token is not rewritten")
}

func TestAccessToken_RotatedRefreshTokenIsStored(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"a2","refresh_token":"rt2","token_type":"Bearer","expires_in":60}`)
	r := newRefresher(srv)
	store := &fakeStore{}
	conn := &models.Connection{ID: "c1", Provider: models.ProviderGoogle, Active: true, RefreshToken: "rt"}

	_, err := r.AccessToken(context.Background(), conn, store)
	require.NoError(t, err)
	assert.Equal(t, "rt2", store.refresh)
	assert.Equal(t, "rt2", conn.RefreshToken)
}

func TestAccessToken_Failures(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	r := newRefresher(srv)
	ctx := context.Background()

	_, err := r.AccessToken(ctx, &models.Connection{Provider: models.ProviderGoogle, Active: true, RefreshToken: "revoked"}, &fakeStore{})
	assert.ErrorIs(t, err, common.ErrCredentials)

	_, err = r.AccessToken(ctx, &models.Connection{Provider: models.ProviderGoogle, Active: true}, &fakeStore{})
	assert.ErrorIs(t, err, common.ErrCredentials)
	assert.ErrorIs(t, err, common.ErrNoRefreshToken)

	_, err = r.AccessToken(ctx, &models.Connection{Provider: models.ProviderGoogle, AccessToken: "at"}, &fakeStore{})
	assert.ErrorIs(t, err, common.ErrConnectionInactive)

	_, err = r.AccessToken(ctx, &models.Connection{Provider: "yahoo", Active: true, RefreshToken: "rt"}, &fakeStore{})
	assert.ErrorIs(t, err, common.ErrUnsupportedProvider)
}

func TestAccessToken_StoreErrorIsReturned(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"a","token_type":"Bearer","expires_in":60}`)
	r := newRefresher(srv)
	_, err := r.AccessToken(context.Background(),
		&models.Connection{ID: "c1", Provider: models.ProviderGoogle, Active: true, RefreshToken: "rt"},
		&fakeStore{err: errors.New("db down")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrCredentials)
}
