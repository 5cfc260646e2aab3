package core

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ResolveTokenIssuedAt derives a trustworthy issuance time for an externally
// issued token. The embedded iat claim (seconds since epoch) is trusted only
// when it is present, strictly greater than zero, and strictly before now;
// otherwise now is substituted. Callers may legitimately reuse a
// previously-issued token, so a real past issuance time is honored, while a
// missing, zero, negative, or future timestamp never is.
func ResolveTokenIssuedAt(now time.Time, tokenValue string) time.Time {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(tokenValue), claims); err != nil {
		return now
	}
	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return now
	}
	if issuedAt.Unix() <= 0 || !issuedAt.Before(now) {
		return now
	}
	return issuedAt.UTC()
}

// NormalizeToken builds a Token from a caller-issued token string, applying
// the issuance freshness rule above.
func NormalizeToken(now time.Time, tokenValue string) Token {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	return Token{
		Value:      tokenValue,
		IssuedAt:   ResolveTokenIssuedAt(now, tokenValue),
		ReceivedAt: now,
	}
}
