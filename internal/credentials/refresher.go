package credentials

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultMargin is how long before expiry an access token is refreshed.
const DefaultMargin = 2 * time.Minute

// TokenStore persists refreshed tokens.
type TokenStore interface {
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
}

// ClientCredentials are the OAuth client settings of one provider.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// OAuthRefresher hands out valid access tokens, refreshing them through the
// provider token endpoint when they are about to expire.
type OAuthRefresher struct {
	configs    map[models.Provider]*oauth2.Config
	margin     time.Duration
	httpClient *http.Client
	log        logging.Logger
	now        func() time.Time
}

// NewOAuthRefresher builds a refresher for Google and Microsoft. tenant
// selects the Azure AD tenant ("common" when empty).
func NewOAuthRefresher(google, microsoft ClientCredentials, tenant string, log logging.Logger) *OAuthRefresher {
	if tenant == "" {
		tenant = "common"
	}
	r := &OAuthRefresher{
		configs: map[models.Provider]*oauth2.Config{},
		margin:  DefaultMargin,
		log:     log,
		now:     time.Now,
	}
	r.SetConfig(models.ProviderGoogle, &oauth2.Config{
		ClientID:     google.ClientID,
		ClientSecret: google.ClientSecret,
		Endpoint:     endpoints.Google,
	})
	r.SetConfig(models.ProviderMicrosoft, &oauth2.Config{
		ClientID:     microsoft.ClientID,
		ClientSecret: microsoft.ClientSecret,
		Endpoint:     endpoints.AzureAD(tenant),
	})
	return r
}

// SetConfig replaces the OAuth config used for provider.
func (r *OAuthRefresher) SetConfig(provider models.Provider, cfg *oauth2.Config) {
	r.configs[provider] = cfg
}

// WithHTTPClient sets the client used to reach token endpoints.
func (r *OAuthRefresher) WithHTTPClient(c *http.Client) *OAuthRefresher {
	r.httpClient = c
	return r
}

// AccessToken returns a usable access token for conn. When the stored token
// is expired or about to expire it is refreshed and written through store;
// conn is updated in place. Failures wrap common.ErrCredentials.
func (r *OAuthRefresher) AccessToken(ctx context.Context, conn *models.Connection, store TokenStore) (string, error) {
	if !conn.Active {
		return "", fmt.Errorf("%w: %w", common.ErrCredentials, common.ErrConnectionInactive)
	}
	now := r.now()
	if conn.TokenValid(now, r.margin) {
		return conn.AccessToken, nil
	}
	if conn.RefreshToken == "" {
		return "", fmt.Errorf("%w: %w", common.ErrCredentials, common.ErrNoRefreshToken)
	}
	cfg, ok := r.configs[conn.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %w %q", common.ErrCredentials, common.ErrUnsupportedProvider, conn.Provider)
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}
	// an already-expired token forces the source to hit the token endpoint
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken, Expiry: now.Add(-time.Minute)})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh %s token: %v", common.ErrCredentials, conn.Provider, err)
	}

	refresh := tok.RefreshToken
	if refresh == conn.RefreshToken {
		refresh = ""
	}
	if err := store.UpdateTokens(ctx, conn.ID, tok.AccessToken, refresh, tok.Expiry); err != nil {
		return "", fmt.Errorf("store refreshed token: %w", err)
	}

	conn.AccessToken = tok.AccessToken
	if refresh != "" {
		conn.RefreshToken = refresh
	}
	conn.TokenExpiresAt = tok.Expiry
	r.log.Info(ctx, "access token refreshed", "connection_id", conn.ID, "provider", string(conn.Provider), "expires_at", tok.Expiry)
	return tok.AccessToken, nil
}
