package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DefaultTTL applies when neither the caller nor Config names a lifetime.
const DefaultTTL = 15 * time.Minute

// ErrInvalidToken is returned for every verification failure: bad signature,
// wrong algorithm, malformed input, missing subject or expiry in the past.
var ErrInvalidToken = errors.New("jwt: invalid token")

var reservedClaims = map[string]struct{}{
	"sub": {},
	"exp": {},
	"iat": {},
	"nbf": {},
	"iss": {},
}

// Config configures an Issuer.
type Config struct {
	Secret     []byte
	Issuer     string
	DefaultTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the verified payload of an access token.
type Claims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Custom    map[string]any
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt: empty signing secret")
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &Issuer{secret: secret, issuer: cfg.Issuer, defaultTTL: ttl, now: now}, nil
}

// Issue signs claims with an expiry of now+ttl. A non-positive ttl uses the
// configured default. Custom claims never replace the registered ones.
func (i *Issuer) Issue(claims Claims, ttl time.Duration) (string, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errors.New("jwt: subject required")
	}
	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	now := i.now()
	payload := jwtlib.MapClaims{}
	for key, value := range claims.Custom {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		payload[key] = value
	}
	payload["sub"] = subject
	payload["iat"] = jwtlib.NewNumericDate(now)
	payload["exp"] = jwtlib.NewNumericDate(now.Add(ttl))
	if i.issuer != "" {
		payload["iss"] = i.issuer
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, payload)
	return token.SignedString(i.secret)
}

// Verify checks signature and expiry and returns the token claims.
func (i *Issuer) Verify(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, ErrInvalidToken
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(i.issuer))
	}
	payload := jwtlib.MapClaims{}
	parsed, err := jwtlib.ParseWithClaims(trimmed, payload, func(t *jwtlib.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	subject, err := payload.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{Subject: subject, Custom: map[string]any{}}
	if exp, err := payload.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := payload.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if iss, err := payload.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	for key, value := range payload {
		if _, reserved := reservedClaims[key]; reserved {
			continue
		}
		claims.Custom[key] = value
	}
	return claims, nil
}

// TTL reports the default lifetime used when Issue receives a non-positive ttl.
func (i *Issuer) TTL() time.Duration {
	return i.defaultTTL
}
