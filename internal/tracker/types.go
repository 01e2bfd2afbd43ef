// Package tracker holds the project and task operations. Every read or
// mutation of an existing record goes through the ownership guard first.
package tracker

import (
	"context"
	"time"
)

// Project is owned directly by one identity.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task is owned through its project.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectInput is the client-editable part of a project.
type ProjectInput struct {
	Name        string
	Description string
}

// TaskInput is used for creation.
type TaskInput struct {
	Title       string
	Description string
}

// TaskUpdate leaves Title and Description untouched when nil.
type TaskUpdate struct {
	Title       *string
	Description *string
	IsCompleted bool
}

// Store persists projects and tasks. Missing records are reported as
// auth.ErrNotFound.
type Store interface {
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error)
	CreateProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	UpdateProject(ctx context.Context, p Project) (Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListTasksByProject(ctx context.Context, projectID string) ([]Task, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	UpdateTask(ctx context.Context, t Task) (Task, error)
	DeleteTask(ctx context.Context, id string) error
}
