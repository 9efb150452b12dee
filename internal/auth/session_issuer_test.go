package auth

import (
	"testing"
	"time"
)

func TestSessionIssuerMintsValidatableTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewSessionIssuer(SessionIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        testSessionIssuer,
		TTL:           time.Hour,
		Clock:         func() time.Time { return clockNow },
	})

	token, expiresAt, err := issuer.Issue(SessionIdentity{
		UserID:              testSessionUserID,
		Username:            testSessionUsername,
		ProviderAccessToken: "discord-access",
	})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := newTestValidator(t, clockNow.Add(30*time.Minute)).ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if claims.Subject != testSessionUserID || claims.ProviderAccessToken != "discord-access" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := newTestValidator(t, clockNow.Add(2*time.Hour)).ValidateToken(token); err == nil {
		t.Fatalf("expected token to expire after ttl")
	}
}

func TestSessionIssuerRequiresSecretAndUser(t *testing.T) {
	if _, _, err := NewSessionIssuer(SessionIssuerConfig{Issuer: testSessionIssuer}).Issue(SessionIdentity{UserID: "u"}); err == nil {
		t.Fatalf("expected missing secret error")
	}
	issuer := NewSessionIssuer(SessionIssuerConfig{SigningSecret: []byte(testSessionSigningSecret), Issuer: testSessionIssuer})
	if _, _, err := issuer.Issue(SessionIdentity{UserID: "  "}); err == nil {
		t.Fatalf("expected missing user error")
	}
	if issuer.ttl != defaultSessionTTL {
		t.Fatalf("expected default ttl, got %s", issuer.ttl)
	}
}
