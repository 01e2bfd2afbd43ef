// Package memory is an in-process store used when no database is configured
// and in tests. Email uniqueness is enforced under the write lock, so the
// check and the insert cannot interleave.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/ids"
	"devvault.dev/internal/tracker"
)

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.ResourceFinder  = (*Store)(nil)
	_ tracker.Store        = (*Store)(nil)
)

// Store keeps identities, projects and tasks in maps.
type Store struct {
	mu         sync.RWMutex
	identities map[string]auth.Identity // id -> identity
	byEmail    map[string]string        // email -> id
	projects   map[string]tracker.Project
	tasks      map[string]tracker.Task
}

// New creates an empty store.
func New() *Store {
	return &Store{
		identities: make(map[string]auth.Identity),
		byEmail:    make(map[string]string),
		projects:   make(map[string]tracker.Project),
		tasks:      make(map[string]tracker.Task),
	}
}

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return auth.Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return s.identities[id], nil
}

func (s *Store) InsertIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return auth.Identity{}, err
	}
	identity.Email = auth.NormalizeEmail(identity.Email)
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[identity.Email]; exists {
		return auth.Identity{}, auth.ErrConflict
	}
	if _, exists := s.identities[identity.ID]; exists {
		return auth.Identity{}, auth.ErrConflict
	}
	s.identities[identity.ID] = identity
	s.byEmail[identity.Email] = identity.ID
	return identity, nil
}

func (s *Store) UpdateCredentials(ctx context.Context, id, passwordHash string, role auth.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	identity.Role = role
	s.identities[id] = identity
	return nil
}

// CountIdentitiesByEmail is used by tests asserting uniqueness.
func (s *Store) CountIdentitiesByEmail(email string) int {
	email = auth.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, identity := range s.identities {
		if identity.Email == email {
			n++
		}
	}
	return n
}

func (s *Store) FindResource(ctx context.Context, kind auth.ResourceKind, id string) (auth.Resource, error) {
	if err := ctx.Err(); err != nil {
		return auth.Resource{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case auth.KindProject:
		p, ok := s.projects[id]
		if !ok {
			return auth.Resource{}, auth.ErrNotFound
		}
		return auth.Resource{Kind: kind, ID: p.ID, OwnerID: p.OwnerID}, nil
	case auth.KindTask:
		t, ok := s.tasks[id]
		if !ok {
			return auth.Resource{}, auth.ErrNotFound
		}
		return auth.Resource{Kind: kind, ID: t.ID, ParentID: t.ProjectID}, nil
	default:
		return auth.Resource{}, auth.ErrNotFound
	}
}

func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]tracker.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateProject(ctx context.Context, p tracker.Project) (tracker.Project, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Project{}, err
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return tracker.Project{}, auth.ErrConflict
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (tracker.Project, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Project{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return tracker.Project{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p tracker.Project) (tracker.Project, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.projects[p.ID]
	if !ok {
		return tracker.Project{}, auth.ErrNotFound
	}
	current.Name = p.Name
	current.Description = p.Description
	s.projects[p.ID] = current
	return current, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]tracker.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tracker.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTask(ctx context.Context, t tracker.Task) (tracker.Task, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Task{}, err
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	if _, ok := s.tasks[t.ID]; ok {
		return tracker.Task{}, auth.ErrConflict
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (tracker.Task, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t tracker.Task) (tracker.Task, error) {
	if err := ctx.Err(); err != nil {
		return tracker.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[t.ID]
	if !ok {
		return tracker.Task{}, auth.ErrNotFound
	}
	current.Title = t.Title
	current.Description = t.Description
	current.IsCompleted = t.IsCompleted
	s.tasks[t.ID] = current
	return current, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Ping satisfies the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
