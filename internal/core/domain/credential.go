package domain

import "time"

// Credential is a bearer token issued by the identity endpoint.
// A Credential is replaced on refresh, never mutated.
type Credential struct {
	// Token is the bearer access token.
	Token string

	// ExpiresAt is the instant the identity endpoint stops honouring Token.
	ExpiresAt time.Time
}

// IsZero returns true if no token has been issued.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// ValidAt returns true if the credential can still be used at now,
// keeping skew in reserve so a token does not expire mid-request.
func (c Credential) ValidAt(now time.Time, skew time.Duration) bool {
	if c.IsZero() {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-skew))
}
