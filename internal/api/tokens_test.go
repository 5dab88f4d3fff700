package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	ti := NewTokenIssuer([]byte("secret"), time.Hour)
	tok, exp, err := ti.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if d := time.Until(exp); d <= 59*time.Minute || d > time.Hour {
		t.Errorf("expiry in %v, want about 1h", d)
	}
	sub, err := ti.Verify(tok)
	if err != nil || sub != "user-1" {
		t.Errorf("Verify() = %q, %v, want user-1", sub, err)
	}
}

func TestTokenIssuerRejects(t *testing.T) {
	ti := NewTokenIssuer([]byte("secret"), time.Hour)
	good, _, err := ti.Issue("user-1")
	if err != nil {
		t.Fatal(err)
	}

	otherKey, _, _ := NewTokenIssuer([]byte("other"), time.Hour).Issue("user-1")

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"wrong key":     otherKey,
		"alg none":      noneAlg,
		"no expiry":     noExp,
		"tampered":      good[:len(good)-2] + strings.Repeat("A", 2),
		"not a token":   "abc",
		"empty subject": mustIssue(t, ti, ""),
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if sub, err := ti.Verify(tok); err == nil {
				t.Errorf("Verify() = %q, want error", sub)
			}
		})
	}
}

func mustIssue(t *testing.T, ti *TokenIssuer, sub string) string {
	t.Helper()
	tok, _, err := ti.Issue(sub)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
