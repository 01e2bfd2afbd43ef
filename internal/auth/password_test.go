package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var cheapParams = Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func TestArgon2RoundTrip(t *testing.T) {
	h := NewArgon2idHasher(cheapParams)

	verifier, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(verifier, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := h.Verify("correct horse battery staple", verifier)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Correct horse battery staple", verifier)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2SaltIsRandom(t *testing.T) {
	h := NewArgon2idHasher(cheapParams)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := NewArgon2idHasher(cheapParams).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyRejectsMalformedVerifier(t *testing.T) {
	h := NewArgon2idHasher(cheapParams)
	for _, v := range []string{
		"",
		"plain",
		"$argon2id$v=19$m=1024,t=1,p=1$bad salt$bad",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
	} {
		ok, err := h.Verify("pw", v)
		assert.False(t, ok, v)
		assert.Error(t, err, v)
	}
}

func TestVerifyAcceptsLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)
	h := NewArgon2idHasher(cheapParams)

	ok, err := h.Verify("old-password", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("other", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, h.NeedsUpgrade(string(legacy)))
}

func TestNeedsUpgrade(t *testing.T) {
	weak := NewArgon2idHasher(cheapParams)
	strong := NewArgon2idHasher(Argon2Params{Time: 2, Memory: 2048, Threads: 1})

	v, err := weak.Hash("pw")
	require.NoError(t, err)
	assert.False(t, weak.NeedsUpgrade(v))
	assert.True(t, strong.NeedsUpgrade(v))

	// A stronger verifier is still accepted by the weaker configuration.
	sv, err := strong.Hash("pw")
	require.NoError(t, err)
	assert.False(t, weak.NeedsUpgrade(sv))
	ok, err := weak.Verify("pw", sv)
	require.NoError(t, err)
	assert.True(t, ok)
}
