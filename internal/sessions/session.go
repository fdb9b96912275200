package sessions

import "time"

// TokenBundle is the brokerage access/refresh token pair plus expiry
// bookkeeping. Bundles are replaced wholesale on every refresh, never
// mutated field by field.
type TokenBundle struct {
	AccessToken      string    `bson:"accessToken" json:"accessToken"`
	RefreshToken     string    `bson:"refreshToken" json:"refreshToken"`
	ExpiresIn        int64     `bson:"expiresIn" json:"expiresIn"` // seconds
	RefreshExpiresIn int64     `bson:"refreshExpiresIn" json:"refreshExpiresIn"`
	TokenType        string    `bson:"tokenType" json:"tokenType"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
}

// ExpiresAt returns the instant the access token stops being valid.
func (t *TokenBundle) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// WillExpireSoon reports whether the access token is within margin of
// expiry. A bundle without issuance bookkeeping is always considered
// expiring so callers refresh instead of sending a known-bad token.
func (t *TokenBundle) WillExpireSoon(margin time.Duration) bool {
	return t.willExpireSoonAt(time.Now(), margin)
}

func (t *TokenBundle) willExpireSoonAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.CreatedAt.IsZero() || t.ExpiresIn == 0 {
		return true
	}
	return !now.Add(margin).Before(t.ExpiresAt())
}

// AccountNumber is one entry of the brokerage account-numbers listing.
type AccountNumber struct {
	AccountNumber string `bson:"accountNumber" json:"accountNumber"`
	HashValue     string `bson:"hashValue" json:"hashValue"`
}

// Session is the server-side record correlated to a browser via the signed
// session cookie. It holds the Schwab OAuth connection state.
type Session struct {
	ID                   string          `bson:"_id" json:"id"`
	CreatedAt            time.Time       `bson:"createdAt" json:"createdAt"`
	LastSeenAt           time.Time       `bson:"lastSeenAt" json:"lastSeenAt"`
	OAuthState           string          `bson:"oauthState,omitempty" json:"oauthState,omitempty"`
	OAuthStartedAt       time.Time       `bson:"oauthStartedAt,omitempty" json:"oauthStartedAt,omitempty"`
	SchwabTokens         *TokenBundle    `bson:"schwabTokens,omitempty" json:"schwabTokens,omitempty"`
	SchwabConnected      bool            `bson:"schwabConnected" json:"schwabConnected"`
	SchwabConnectedAt    time.Time       `bson:"schwabConnectedAt,omitempty" json:"schwabConnectedAt,omitempty"`
	PrimaryAccountNumber string          `bson:"primaryAccountNumber,omitempty" json:"primaryAccountNumber,omitempty"`
	PrimaryAccountHash   string          `bson:"primaryAccountHash,omitempty" json:"primaryAccountHash,omitempty"`
	AccountNumbers       []AccountNumber `bson:"accountNumbers,omitempty" json:"accountNumbers,omitempty"`
}

// Connected reports whether the session holds a usable Schwab connection.
func (s *Session) Connected() bool {
	return s != nil && s.SchwabConnected && s.SchwabTokens != nil
}
