package core

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestResolveTokenIssuedAt_HonorsPastIssuedAt(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	issuedAt := now.Add(-15 * time.Minute)
	value := signedToken(t, jwt.MapClaims{"iat": issuedAt.Unix()})

	resolved := ResolveTokenIssuedAt(now, value)
	if resolved.Unix() != issuedAt.Unix() {
		t.Fatalf("expected embedded issued-at %d, got %d", issuedAt.Unix(), resolved.Unix())
	}
	if resolved.UnixMilli() != issuedAt.Unix()*1000 {
		t.Fatalf("expected millisecond issuance %d, got %d", issuedAt.Unix()*1000, resolved.UnixMilli())
	}
}

func TestResolveTokenIssuedAt_RejectsUntrustworthyTimestamps(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		value string
	}{
		{name: "zero", value: signedToken(t, jwt.MapClaims{"iat": 0})},
		{name: "negative", value: signedToken(t, jwt.MapClaims{"iat": -100})},
		{name: "future", value: signedToken(t, jwt.MapClaims{"iat": now.Add(time.Hour).Unix()})},
		{name: "exactly now", value: signedToken(t, jwt.MapClaims{"iat": now.Unix()})},
		{name: "absent", value: signedToken(t, jwt.MapClaims{"sub": "demo-app"})},
		{name: "opaque", value: "not-a-jwt"},
		{name: "empty", value: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved := ResolveTokenIssuedAt(now, tc.value)
			if !resolved.Equal(now) {
				t.Fatalf("expected fallback to now, got %s", resolved)
			}
		})
	}
}

func TestNormalizeToken_SetsValueAndReceivedAt(t *testing.T) {
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	token := NormalizeToken(now, "opaque_token_1")

	if token.Value != "opaque_token_1" {
		t.Fatalf("unexpected value %q", token.Value)
	}
	if !token.IssuedAt.Equal(now) {
		t.Fatalf("expected issued-at %s, got %s", now, token.IssuedAt)
	}
	if !token.ReceivedAt.Equal(now) {
		t.Fatalf("expected received-at %s, got %s", now, token.ReceivedAt)
	}
	if token.ExpiresAt != nil {
		t.Fatalf("normalized tokens carry no expiry")
	}
}

func TestTokenIssuedAtMillis(t *testing.T) {
	if got := (Token{}).IssuedAtMillis(); got != 0 {
		t.Fatalf("zero token must report 0, got %d", got)
	}
	issuedAt := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	token := Token{IssuedAt: issuedAt}
	if got := token.IssuedAtMillis(); got != issuedAt.UnixMilli() {
		t.Fatalf("expected %d, got %d", issuedAt.UnixMilli(), got)
	}
}
