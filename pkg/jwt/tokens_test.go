package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestIssuer(t *testing.T, clock *fakeClock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(Config{Secret: []byte("super-secret"), Issuer: "board", Now: clock.Now})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func TestIssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(Claims{Subject: "alice@example.com", Custom: map[string]any{"scope": "messages"}}, 30*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected compact JWS, got %q", token)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Issuer != "board" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if want := clock.now.Add(30 * time.Minute); !claims.ExpiresAt.Equal(want) {
		t.Fatalf("unexpected expiry %s, want %s", claims.ExpiresAt, want)
	}
	if claims.Custom["scope"] != "messages" {
		t.Fatalf("custom claim lost: %v", claims.Custom)
	}
}

func TestVerifyRejectsAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(Claims{Subject: "bob@example.com"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(59 * time.Second)
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestIssueDefaultTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)
	if issuer.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl %s, got %s", DefaultTTL, issuer.TTL())
	}

	token, err := issuer.Issue(Claims{Subject: "carol@example.com"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if want := clock.now.Add(15 * time.Minute); !claims.ExpiresAt.Equal(want) {
		t.Fatalf("unexpected expiry %s, want %s", claims.ExpiresAt, want)
	}
}

func TestIssueCustomClaimsCannotOverrideRegistered(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(Claims{
		Subject: "dave@example.com",
		Custom:  map[string]any{"sub": "mallory@example.com", "exp": 9999999999},
	}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "dave@example.com" {
		t.Fatalf("subject overridden: %q", claims.Subject)
	}
	if _, ok := claims.Custom["sub"]; ok {
		t.Fatalf("reserved claim leaked into custom claims")
	}
}

func TestVerifyFailuresCollapse(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock)
	other, err := NewIssuer(Config{Secret: []byte("other-secret"), Issuer: "board", Now: clock.Now})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	forged, err := other.Issue(Claims{Subject: "eve@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	valid, err := issuer.Issue(Claims{Subject: "eve@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other2, err := issuer.Issue(Claims{Subject: "mallory@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	validParts := strings.Split(valid, ".")
	otherParts := strings.Split(other2, ".")
	tampered := otherParts[0] + "." + otherParts[1] + "." + validParts[2]

	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{
		"sub": "eve@example.com",
		"exp": clock.now.Add(time.Hour).Unix(),
		"iss": "board",
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	hs512, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, jwtlib.MapClaims{
		"sub": "eve@example.com",
		"exp": clock.now.Add(time.Hour).Unix(),
		"iss": "board",
	}).SignedString([]byte("super-secret"))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	noExpiry, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "eve@example.com",
		"iss": "board",
	}).SignedString([]byte("super-secret"))
	if err != nil {
		t.Fatalf("sign no expiry: %v", err)
	}
	noSubject, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp": clock.now.Add(time.Hour).Unix(),
		"iss": "board",
	}).SignedString([]byte("super-secret"))
	if err != nil {
		t.Fatalf("sign no subject: %v", err)
	}

	cases := map[string]string{
		"empty":      "",
		"malformed":  "not.a.jwt",
		"forged":     forged,
		"tampered":   tampered,
		"none":       none,
		"hs512":      hs512,
		"no expiry":  noExpiry,
		"no subject": noSubject,
	}
	for name, token := range cases {
		claims, err := issuer.Verify(token)
		if err != ErrInvalidToken {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
		if claims.Subject != "" {
			t.Fatalf("%s: expected empty claims, got %+v", name, claims)
		}
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(Config{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now()})
	if _, err := issuer.Issue(Claims{Subject: "  "}, time.Minute); err == nil {
		t.Fatalf("expected error for blank subject")
	}
}
