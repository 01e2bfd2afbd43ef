package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRevocationListExpiresEntries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewRevocationList(func() time.Time { return now })

	l.Revoke("a", now.Add(time.Minute))
	l.Revoke("", now.Add(time.Minute))
	l.Revoke("past", now.Add(-time.Second))
	assert.True(t, l.Revoked("a"))
	assert.False(t, l.Revoked("past"))
	assert.Equal(t, 1, l.Len())

	now = now.Add(2 * time.Minute)
	assert.False(t, l.Revoked("a"))

	l.Revoke("b", now.Add(time.Minute))
	assert.Equal(t, 1, l.Len(), "expired entries are pruned on write")
}
