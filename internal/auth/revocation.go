package auth

import (
	"sync"
	"time"
)

// Revocations records token ids that must no longer be accepted.
type Revocations interface {
	Revoke(tokenID string, until time.Time)
	Revoked(tokenID string) bool
}

// RevocationList is an in-process Revocations. Entries are kept until the
// revoked token would have expired anyway.
type RevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewRevocationList returns an empty list; now may be nil.
func NewRevocationList(now func() time.Time) *RevocationList {
	if now == nil {
		now = time.Now
	}
	return &RevocationList{entries: make(map[string]time.Time), now: now}
}

// Revoke marks tokenID as revoked until the given time.
func (l *RevocationList) Revoke(tokenID string, until time.Time) {
	if tokenID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, exp := range l.entries {
		if !exp.After(now) {
			delete(l.entries, id)
		}
	}
	if until.After(now) {
		l.entries[tokenID] = until
	}
}

// Revoked reports whether tokenID is currently revoked.
func (l *RevocationList) Revoked(tokenID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.entries[tokenID]
	return ok && exp.After(l.now())
}

// Len returns the number of live entries.
func (l *RevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
