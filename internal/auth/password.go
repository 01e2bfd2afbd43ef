package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher derives and checks password verifiers.
type Hasher interface {
	// Hash produces a salted verifier for password.
	Hash(password string) (string, error)
	// Verify returns (true, nil) on match and (false, nil) on mismatch.
	// An error means the verifier itself could not be parsed.
	Verify(password, verifier string) (bool, error)
	// NeedsUpgrade reports whether verifier should be re-derived with the
	// current scheme after a successful login.
	NeedsUpgrade(verifier string) bool
}

// Argon2Params tunes argon2id. Memory is in KiB.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP recommendation for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

const argon2Prefix = "$argon2id$"

var errInvalidVerifier = errors.New("auth: invalid password verifier")

// Argon2idHasher implements Hasher with argon2id and PHC-encoded verifiers.
// Legacy bcrypt verifiers are still accepted by Verify.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher returns a hasher using p; zero fields fall back to defaults.
func NewArgon2idHasher(p Argon2Params) *Argon2idHasher {
	if p.Time == 0 {
		p.Time = DefaultArgon2Params.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultArgon2Params.Threads
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultArgon2Params.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultArgon2Params.KeyLen
	}
	return &Argon2idHasher{params: p}
}

// Hash produces an argon2id verifier:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the verifier with its stored parameters and compares in
// constant time.
func (h *Argon2idHasher) Verify(password, verifier string) (bool, error) {
	if isBcrypt(verifier) {
		err := bcrypt.CompareHashAndPassword([]byte(verifier), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", errInvalidVerifier, err)
		}
	}

	p, salt, expected, err := decodeArgon2(verifier)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade is true for bcrypt verifiers and for argon2id verifiers
// derived with weaker parameters than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(verifier string) bool {
	if !strings.HasPrefix(verifier, argon2Prefix) {
		return true
	}
	p, _, _, err := decodeArgon2(verifier)
	if err != nil {
		return true
	}
	return p.Time < h.params.Time || p.Memory < h.params.Memory || p.Threads < h.params.Threads
}

func decodeArgon2(verifier string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(verifier, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	if threads == 0 || threads > 255 || time == 0 || memory == 0 {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return Argon2Params{}, nil, nil, errInvalidVerifier
	}
	p := Argon2Params{Time: time, Memory: memory, Threads: uint8(threads), SaltLen: uint32(len(salt)), KeyLen: uint32(len(key))}
	return p, salt, key, nil
}

func isBcrypt(verifier string) bool {
	return strings.HasPrefix(verifier, "$2a$") || strings.HasPrefix(verifier, "$2b$") || strings.HasPrefix(verifier, "$2y$")
}
