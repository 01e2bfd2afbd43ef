package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/ids"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 4000
)

// Service applies ownership checks around Store.
type Service struct {
	store Store
	guard *auth.Guard
	now   func() time.Time
}

// NewService returns a Service. guard must be backed by the same data as store.
func NewService(store Store, guard *auth.Guard) (*Service, error) {
	if store == nil || guard == nil {
		return nil, errors.New("tracker: store and guard are required")
	}
	return &Service{store: store, guard: guard, now: time.Now}, nil
}

// ListProjects returns only the caller's projects.
func (s *Service) ListProjects(ctx context.Context, callerID string) ([]Project, error) {
	if callerID == "" {
		return nil, auth.ErrUnauthenticated
	}
	projects, err := s.store.ListProjectsByOwner(ctx, callerID)
	if err != nil {
		return nil, auth.StoreError("list projects", err)
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

// CreateProject stamps the owner from the authenticated caller.
func (s *Service) CreateProject(ctx context.Context, callerID string, in ProjectInput) (Project, error) {
	if callerID == "" {
		return Project{}, auth.ErrUnauthenticated
	}
	in, err := normalizeProject(in)
	if err != nil {
		return Project{}, err
	}
	p, err := s.store.CreateProject(ctx, Project{
		ID:          ids.New(),
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     callerID,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Project{}, auth.StoreError("create project", err)
	}
	return p, nil
}

// GetProject returns a project owned by the caller.
func (s *Service) GetProject(ctx context.Context, callerID, id string) (Project, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindProject, id); err != nil {
		return Project{}, err
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return Project{}, auth.StoreError("get project", err)
	}
	return p, nil
}

// UpdateProject replaces name and description.
func (s *Service) UpdateProject(ctx context.Context, callerID, id string, in ProjectInput) (Project, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindProject, id); err != nil {
		return Project{}, err
	}
	in, err := normalizeProject(in)
	if err != nil {
		return Project{}, err
	}
	current, err := s.store.GetProject(ctx, id)
	if err != nil {
		return Project{}, auth.StoreError("get project", err)
	}
	current.Name = in.Name
	current.Description = in.Description
	p, err := s.store.UpdateProject(ctx, current)
	if err != nil {
		return Project{}, auth.StoreError("update project", err)
	}
	return p, nil
}

// DeleteProject removes the project and its tasks.
func (s *Service) DeleteProject(ctx context.Context, callerID, id string) error {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindProject, id); err != nil {
		return err
	}
	return auth.StoreError("delete project", s.store.DeleteProject(ctx, id))
}

// ListTasks lists the tasks of one of the caller's projects. A foreign
// project is reported as missing.
func (s *Service) ListTasks(ctx context.Context, callerID, projectID string) ([]Task, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindProject, projectID); err != nil {
		return nil, auth.Conceal(err)
	}
	tasks, err := s.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, auth.StoreError("list tasks", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// CreateTask adds a task to one of the caller's projects.
func (s *Service) CreateTask(ctx context.Context, callerID, projectID string, in TaskInput) (Task, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindProject, projectID); err != nil {
		return Task{}, auth.Conceal(err)
	}
	title := strings.TrimSpace(in.Title)
	if err := checkText("title", title, maxNameLen, true); err != nil {
		return Task{}, err
	}
	desc := strings.TrimSpace(in.Description)
	if err := checkText("description", desc, maxDescriptionLen, false); err != nil {
		return Task{}, err
	}
	t, err := s.store.CreateTask(ctx, Task{
		ID:          ids.New(),
		ProjectID:   projectID,
		Title:       title,
		Description: desc,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Task{}, auth.StoreError("create task", err)
	}
	return t, nil
}

// GetTask returns a task whose project the caller owns.
func (s *Service) GetTask(ctx context.Context, callerID, id string) (Task, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindTask, id); err != nil {
		return Task{}, err
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return Task{}, auth.StoreError("get task", err)
	}
	return t, nil
}

// UpdateTask applies upd; nil fields keep their current value.
func (s *Service) UpdateTask(ctx context.Context, callerID, id string, upd TaskUpdate) (Task, error) {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindTask, id); err != nil {
		return Task{}, err
	}
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return Task{}, auth.StoreError("get task", err)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if err := checkText("title", title, maxNameLen, true); err != nil {
			return Task{}, err
		}
		current.Title = title
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		if err := checkText("description", desc, maxDescriptionLen, false); err != nil {
			return Task{}, err
		}
		current.Description = desc
	}
	current.IsCompleted = upd.IsCompleted
	t, err := s.store.UpdateTask(ctx, current)
	if err != nil {
		return Task{}, auth.StoreError("update task", err)
	}
	return t, nil
}

// DeleteTask removes a task whose project the caller owns.
func (s *Service) DeleteTask(ctx context.Context, callerID, id string) error {
	if _, err := s.guard.Authorize(ctx, callerID, auth.KindTask, id); err != nil {
		return err
	}
	return auth.StoreError("delete task", s.store.DeleteTask(ctx, id))
}

func normalizeProject(in ProjectInput) (ProjectInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := checkText("name", in.Name, maxNameLen, true); err != nil {
		return ProjectInput{}, err
	}
	if err := checkText("description", in.Description, maxDescriptionLen, false); err != nil {
		return ProjectInput{}, err
	}
	return in, nil
}

func checkText(field, value string, max int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%w: %s is required", auth.ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%w: %s is too long", auth.ErrInvalidInput, field)
	}
	return nil
}
