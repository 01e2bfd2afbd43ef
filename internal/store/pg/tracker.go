package pg

import (
	"context"
	"database/sql"
	"errors"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/ids"
	"devvault.dev/internal/tracker"
)

var (
	_ tracker.Store       = (*Store)(nil)
	_ auth.ResourceFinder = (*Store)(nil)
)

func (s *Store) FindResource(ctx context.Context, kind auth.ResourceKind, id string) (auth.Resource, error) {
	var (
		query string
		res   = auth.Resource{Kind: kind, ID: id}
		ref   *string
	)
	switch kind {
	case auth.KindProject:
		query = `select owner_id from projects where id = $1`
		ref = &res.OwnerID
	case auth.KindTask:
		query = `select project_id from tasks where id = $1`
		ref = &res.ParentID
	default:
		return auth.Resource{}, auth.ErrNotFound
	}
	err := s.db.QueryRowContext(ctx, query, id).Scan(ref)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Resource{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Resource{}, err
	}
	return res, nil
}

func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]tracker.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, owner_id, created_at
		from projects
		where owner_id = $1
		order by id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tracker.Project
	for rows.Next() {
		var p tracker.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProject(ctx context.Context, p tracker.Project) (tracker.Project, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into projects (id, name, description, owner_id, created_at)
		values ($1, $2, $3, $4, coalesce($5, now()))
		returning created_at
	`, p.ID, p.Name, p.Description, p.OwnerID, nullTime(p.CreatedAt)).Scan(&p.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return tracker.Project{}, auth.ErrConflict
		case isForeignKeyViolation(err):
			return tracker.Project{}, auth.ErrNotFound
		}
		return tracker.Project{}, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (tracker.Project, error) {
	var p tracker.Project
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, owner_id, created_at
		from projects
		where id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Project{}, auth.ErrNotFound
	}
	if err != nil {
		return tracker.Project{}, err
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p tracker.Project) (tracker.Project, error) {
	err := s.db.QueryRowContext(ctx, `
		update projects set name = $2, description = $3
		where id = $1
		returning id, name, description, owner_id, created_at
	`, p.ID, p.Name, p.Description).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Project{}, auth.ErrNotFound
	}
	if err != nil {
		return tracker.Project{}, err
	}
	return p, nil
}

// DeleteProject removes the project; tasks go with it via on delete cascade.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `delete from projects where id = $1`, id)
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]tracker.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, title, description, is_completed, created_at
		from tasks
		where project_id = $1
		order by id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tracker.Task
	for rows.Next() {
		var t tracker.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateTask(ctx context.Context, t tracker.Task) (tracker.Task, error) {
	if t.ID == "" {
		t.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into tasks (id, project_id, title, description, is_completed, created_at)
		values ($1, $2, $3, $4, $5, coalesce($6, now()))
		returning created_at
	`, t.ID, t.ProjectID, t.Title, t.Description, t.IsCompleted, nullTime(t.CreatedAt)).Scan(&t.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return tracker.Task{}, auth.ErrConflict
		case isForeignKeyViolation(err):
			return tracker.Task{}, auth.ErrNotFound
		}
		return tracker.Task{}, err
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (tracker.Task, error) {
	var t tracker.Task
	err := s.db.QueryRowContext(ctx, `
		select id, project_id, title, description, is_completed, created_at
		from tasks
		where id = $1
	`, id).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Task{}, auth.ErrNotFound
	}
	if err != nil {
		return tracker.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t tracker.Task) (tracker.Task, error) {
	err := s.db.QueryRowContext(ctx, `
		update tasks set title = $2, description = $3, is_completed = $4
		where id = $1
		returning id, project_id, title, description, is_completed, created_at
	`, t.ID, t.Title, t.Description, t.IsCompleted).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.IsCompleted, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Task{}, auth.ErrNotFound
	}
	if err != nil {
		return tracker.Task{}, err
	}
	return t, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `delete from tasks where id = $1`, id)
}

func (s *Store) deleteByID(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
