package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the lifetime of a session token.
	DefaultTokenTTL = 60 * time.Minute
	// DefaultIssuer is written to and required in the iss claim.
	DefaultIssuer = "devvault"

	minSecretLen = 32
)

// Claims is the typed view of a validated session token.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// IdentityID returns the authenticated identity, carried in the sub claim.
func (c Claims) IdentityID() string { return c.Subject }

// Validate is invoked by the jwt parser after the registered claims passed.
func (c Claims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("subject missing")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("unexpected role %q", c.Role)
	}
	if c.ID == "" {
		return errors.New("token id missing")
	}
	return nil
}

// Token is a signed session token and its expiry.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenConfig holds the server-side signing parameters shared by issuer and validator.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func (c TokenConfig) normalize() (TokenConfig, error) {
	if len(c.Secret) < minSecretLen {
		return TokenConfig{}, fmt.Errorf("auth: signing secret must be at least %d bytes", minSecretLen)
	}
	if c.TTL == 0 {
		c.TTL = DefaultTokenTTL
	}
	if c.TTL < 0 {
		return TokenConfig{}, errors.New("auth: token ttl must be greater than zero")
	}
	c.Issuer = strings.TrimSpace(c.Issuer)
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c, nil
}

// TokenIssuer mints HS256 session tokens. It keeps no state besides the secret.
type TokenIssuer struct {
	cfg TokenConfig
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &TokenIssuer{cfg: cfg}, nil
}

// Issue signs a token for identity expiring TTL from now.
func (i *TokenIssuer) Issue(identity Identity) (Token, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return Token{}, errors.New("auth: identity id is required")
	}
	if !identity.Role.Valid() {
		return Token{}, fmt.Errorf("auth: cannot issue token for role %q", identity.Role)
	}

	now := i.cfg.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.cfg.TTL)
	claims := Claims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// TokenValidator verifies session tokens presented on protected requests.
type TokenValidator struct {
	cfg     TokenConfig
	parser  *jwt.Parser
	revoked Revocations
}

// ValidatorOption configures a TokenValidator.
type ValidatorOption func(*TokenValidator)

// WithRevocations makes the validator reject tokens whose id was revoked.
func WithRevocations(r Revocations) ValidatorOption {
	return func(v *TokenValidator) {
		v.revoked = r
	}
}

// NewTokenValidator validates cfg and returns a validator.
func NewTokenValidator(cfg TokenConfig, opts ...ValidatorOption) (*TokenValidator, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	v := &TokenValidator{cfg: cfg}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(cfg.Now),
	)
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate parses raw and returns its claims. Every failure, whatever the
// cause, is reported as ErrUnauthenticated.
func (v *TokenValidator) Validate(ctx context.Context, raw string) (Claims, error) {
	if err := ctx.Err(); err != nil {
		return Claims{}, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrUnauthenticated
	}

	var claims Claims
	parsed, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrUnauthenticated
	}
	if v.revoked != nil && v.revoked.Revoked(claims.ID) {
		return Claims{}, ErrUnauthenticated
	}
	return claims, nil
}
