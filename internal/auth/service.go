package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxUsernameLen = 100
	maxEmailLen    = 254
	maxPasswordLen = 1024
)

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Service implements registration, login and logout on top of a credential
// store, a password hasher and a token issuer.
type Service struct {
	store   CredentialStore
	hasher  Hasher
	issuer  *TokenIssuer
	revoked Revocations
	now     func() time.Time

	// dummyVerifier is checked when the email is unknown so that both
	// failure paths cost one verification.
	dummyVerifier string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithLogoutRevocations makes Logout record the token id in r.
func WithLogoutRevocations(r Revocations) ServiceOption {
	return func(s *Service) {
		s.revoked = r
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service. All collaborators are required.
func NewService(store CredentialStore, hasher Hasher, issuer *TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || hasher == nil || issuer == nil {
		return nil, errors.New("auth: store, hasher and issuer are required")
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	random := make([]byte, 24)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("auth: dummy verifier: %w", err)
	}
	dummy, err := hasher.Hash(base64.RawStdEncoding.EncodeToString(random))
	if err != nil {
		return nil, fmt.Errorf("auth: dummy verifier: %w", err)
	}
	s.dummyVerifier = dummy
	return s, nil
}

// Register creates an identity with the default role and returns a token for it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Identity, Token, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLen {
		return Identity{}, Token{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email := NormalizeEmail(req.Email)
	if !validEmail(email) {
		return Identity{}, Token{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if err := validPassword(req.Password); err != nil {
		return Identity{}, Token{}, err
	}

	// Fast path; the store's uniqueness constraint is what actually decides.
	_, err := s.store.FindIdentityByEmail(ctx, email)
	switch {
	case err == nil:
		return Identity{}, Token{}, ErrConflict
	case !errors.Is(err, ErrNotFound):
		return Identity{}, Token{}, StoreError("find identity", err)
	}

	if err := ctx.Err(); err != nil {
		return Identity{}, Token{}, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Identity{}, Token{}, fmt.Errorf("hash password: %w", err)
	}

	identity, err := s.store.InsertIdentity(ctx, Identity{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         DefaultRole,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Identity{}, Token{}, StoreError("insert identity", err)
	}

	token, err := s.issuer.Issue(identity)
	if err != nil {
		return Identity{}, Token{}, err
	}
	return identity, token, nil
}

// Login verifies credentials and returns a token. An unknown email and a
// wrong password produce the same ErrUnauthenticated after the same work.
func (s *Service) Login(ctx context.Context, email, password string) (Identity, Token, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, Token{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if len(password) > maxPasswordLen {
		return Identity{}, Token{}, ErrUnauthenticated
	}

	identity, lookupErr := s.store.FindIdentityByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return Identity{}, Token{}, StoreError("find identity", lookupErr)
	}
	exists := lookupErr == nil

	target := s.dummyVerifier
	if exists {
		target = identity.PasswordHash
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, Token{}, err
	}
	ok, verifyErr := s.hasher.Verify(password, target)
	if !exists || verifyErr != nil || !ok {
		return Identity{}, Token{}, ErrUnauthenticated
	}

	if s.hasher.NeedsUpgrade(identity.PasswordHash) {
		if upgraded, err := s.hasher.Hash(password); err == nil {
			// Best effort: the login succeeds even if the rotation fails.
			if err := s.store.UpdateCredentials(ctx, identity.ID, upgraded, identity.Role); err == nil {
				identity.PasswordHash = upgraded
			}
		}
	}

	token, err := s.issuer.Issue(identity)
	if err != nil {
		return Identity{}, Token{}, err
	}
	return identity, token, nil
}

// Logout revokes the token described by claims until its natural expiry.
// Without a revocation list it is a no-op.
func (s *Service) Logout(_ context.Context, claims Claims) error {
	if claims.Subject == "" {
		return ErrUnauthenticated
	}
	if s.revoked == nil || claims.ExpiresAt == nil {
		return nil
	}
	s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	return nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLen {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func validPassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password is too long", ErrInvalidInput)
	}
	return nil
}
