package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTokenPair(t *testing.T, c *clock, opts ...ValidatorOption) (*TokenIssuer, *TokenValidator) {
	t.Helper()
	cfg := TokenConfig{Secret: testSecret, TTL: time.Hour, Now: c.Now}
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)
	validator, err := NewTokenValidator(cfg, opts...)
	require.NoError(t, err)
	return issuer, validator
}

var alice = Identity{ID: "01HZALICE", Email: "alice@example.com", Role: RoleUser}

func TestIssueAndValidate(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)}
	issuer, validator := newTokenPair(t, c)

	tok, err := issuer.Issue(alice)
	require.NoError(t, err)
	assert.True(t, c.t.Truncate(time.Second).Add(time.Hour).Equal(tok.ExpiresAt), "expires_at %v", tok.ExpiresAt)

	claims, err := validator.Validate(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.IdentityID())
	assert.Equal(t, alice.Email, claims.Email)
	assert.Equal(t, RoleUser, claims.Role)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueAssignsUniqueTokenIDs(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer, validator := newTokenPair(t, c)
	a, err := issuer.Issue(alice)
	require.NoError(t, err)
	b, err := issuer.Issue(alice)
	require.NoError(t, err)

	ca, err := validator.Validate(context.Background(), a.Value)
	require.NoError(t, err)
	cb, err := validator.Validate(context.Background(), b.Value)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestIssueRequiresIdentity(t *testing.T) {
	issuer, _ := newTokenPair(t, &clock{t: time.Now()})
	_, err := issuer.Issue(Identity{Role: RoleUser})
	assert.Error(t, err)
	_, err = issuer.Issue(Identity{ID: "x", Role: "root"})
	assert.Error(t, err)
}

func TestValidateExpired(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer, validator := newTokenPair(t, c)
	tok, err := issuer.Issue(alice)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour + time.Minute)
	_, err = validator.Validate(context.Background(), tok.Value)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestValidateRejectsTampering(t *testing.T) {
	c := &clock{t: time.Now()}
	issuer, validator := newTokenPair(t, c)
	tok, err := issuer.Issue(alice)
	require.NoError(t, err)

	other, err := NewTokenIssuer(TokenConfig{Secret: []byte("another-secret-another-secret-xx"), Now: c.Now})
	require.NoError(t, err)
	foreign, err := other.Issue(alice)
	require.NoError(t, err)

	otherIssuer, err := NewTokenIssuer(TokenConfig{Secret: testSecret, Issuer: "someone-else", Now: c.Now})
	require.NoError(t, err)
	wrongIss, err := otherIssuer.Issue(alice)
	require.NoError(t, err)

	parts := strings.Split(tok.Value, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	elevated := strings.Replace(string(payload), `"role":"user"`, `"role":"admin"`, 1)
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(elevated)) + "." + parts[2]

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.ID,
			Issuer:    DefaultIssuer,
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":         "",
		"garbage":       "not.a.token",
		"wrong secret":  foreign.Value,
		"wrong issuer":  wrongIss.Value,
		"payload edit":  tampered,
		"alg none":      none,
		"truncated sig": tok.Value[:len(tok.Value)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), raw)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestValidateRejectsMissingClaims(t *testing.T) {
	c := &clock{t: time.Now()}
	_, validator := newTokenPair(t, c)

	sign := func(claims Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)
		return s
	}
	base := jwt.RegisteredClaims{
		Issuer:    DefaultIssuer,
		Subject:   alice.ID,
		ID:        "jti",
		IssuedAt:  jwt.NewNumericDate(c.t),
		ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
	}

	noSub := base
	noSub.Subject = ""
	noExp := base
	noExp.ExpiresAt = nil
	noJTI := base
	noJTI.ID = ""

	for name, claims := range map[string]Claims{
		"no subject": {Role: RoleUser, RegisteredClaims: noSub},
		"no expiry":  {Role: RoleUser, RegisteredClaims: noExp},
		"no jti":     {Role: RoleUser, RegisteredClaims: noJTI},
		"bad role":   {Role: "root", RegisteredClaims: base},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), sign(claims))
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestValidateRevoked(t *testing.T) {
	c := &clock{t: time.Now()}
	revoked := NewRevocationList(c.Now)
	issuer, validator := newTokenPair(t, c, WithRevocations(revoked))

	tok, err := issuer.Issue(alice)
	require.NoError(t, err)
	claims, err := validator.Validate(context.Background(), tok.Value)
	require.NoError(t, err)

	revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	_, err = validator.Validate(context.Background(), tok.Value)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestValidateHonorsContext(t *testing.T) {
	_, validator := newTokenPair(t, &clock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := validator.Validate(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenConfigRejectsShortSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{Secret: []byte("short")})
	assert.Error(t, err)
	_, err = NewTokenValidator(TokenConfig{Secret: testSecret, TTL: -time.Second})
	assert.Error(t, err)
}
