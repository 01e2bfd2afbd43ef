package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResourceKind names a type of owned resource.
type ResourceKind string

const (
	KindProject ResourceKind = "project"
	KindTask    ResourceKind = "task"
)

// parent returns the kind that owns k, for resources owned indirectly.
func (k ResourceKind) parent() (ResourceKind, bool) {
	switch k {
	case KindTask:
		return KindProject, true
	default:
		return "", false
	}
}

// Resource is the ownership-relevant view of a stored record. Direct
// resources carry OwnerID; indirect ones carry ParentID.
type Resource struct {
	Kind     ResourceKind
	ID       string
	OwnerID  string
	ParentID string
}

// ResourceFinder looks resources up for the guard.
type ResourceFinder interface {
	// FindResource returns ErrNotFound when the resource does not exist.
	FindResource(ctx context.Context, kind ResourceKind, id string) (Resource, error)
}

// Guard decides whether an identity may operate on a resource.
type Guard struct {
	finder ResourceFinder
}

// NewGuard returns a guard backed by finder.
func NewGuard(finder ResourceFinder) *Guard {
	return &Guard{finder: finder}
}

// Authorize checks existence first and ownership second, so a missing
// resource is ErrNotFound for every caller and a foreign one is ErrForbidden.
// Indirect resources are resolved through exactly one parent hop. On success
// the returned resource has OwnerID set.
func (g *Guard) Authorize(ctx context.Context, identityID string, kind ResourceKind, id string) (Resource, error) {
	if strings.TrimSpace(identityID) == "" {
		return Resource{}, ErrUnauthenticated
	}
	res, err := g.find(ctx, kind, id)
	if err != nil {
		return Resource{}, err
	}

	if parentKind, ok := kind.parent(); ok {
		if res.ParentID == "" {
			return Resource{}, ErrNotFound
		}
		parent, err := g.find(ctx, parentKind, res.ParentID)
		if err != nil {
			return Resource{}, err
		}
		res.OwnerID = parent.OwnerID
	}

	if res.OwnerID == "" {
		return Resource{}, ErrNotFound
	}
	if res.OwnerID != identityID {
		return Resource{}, ErrForbidden
	}
	return res, nil
}

func (g *Guard) find(ctx context.Context, kind ResourceKind, id string) (Resource, error) {
	if strings.TrimSpace(id) == "" {
		return Resource{}, ErrNotFound
	}
	res, err := g.finder.FindResource(ctx, kind, id)
	if err != nil {
		return Resource{}, StoreError(fmt.Sprintf("find %s", kind), err)
	}
	return res, nil
}

// Conceal reports a foreign resource as missing. It is used where the caller
// only browses (listing a project's tasks) so ids cannot be enumerated.
func Conceal(err error) error {
	if errors.Is(err, ErrForbidden) {
		return ErrNotFound
	}
	return err
}

// StoreError passes taxonomy errors through and marks anything else as a
// transient persistence failure.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
