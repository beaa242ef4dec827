package models

import "time"

// Provider names a supported external service. The set is closed; adapters
// are selected by this value.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// Connection is a stored credential/session for one (user, provider) pair.
type Connection struct {
	ID       string
	UserID   string
	Provider Provider

	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time

	LastSyncedAt *time.Time
	LastError    string
	Active       bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenValid reports whether the access token can be used at now, keeping
// a safety margin before expiry. A zero expiry is treated as non-expiring.
func (c *Connection) TokenValid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.TokenExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(c.TokenExpiresAt)
}
