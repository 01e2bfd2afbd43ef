package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/ids"
)

var _ auth.CredentialStore = (*Store)(nil)

func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	var (
		identity auth.Identity
		role     string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, role, created_at
		from users
		where email = $1
	`, auth.NormalizeEmail(email)).Scan(&identity.ID, &identity.Username, &identity.Email, &identity.PasswordHash, &role, &identity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, err
	}
	identity.Role = auth.Role(role)
	return identity, nil
}

// InsertIdentity relies on the users_email_key unique index; a concurrent
// duplicate surfaces as auth.ErrConflict.
func (s *Store) InsertIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	identity.Email = auth.NormalizeEmail(identity.Email)

	_, err := s.db.ExecContext(ctx, `
		insert into users (id, username, email, password_hash, role, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, identity.ID, identity.Username, identity.Email, identity.PasswordHash, string(identity.Role), identity.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Identity{}, auth.ErrConflict
		}
		return auth.Identity{}, err
	}
	return identity, nil
}

func (s *Store) UpdateCredentials(ctx context.Context, id, passwordHash string, role auth.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, role = $3
		where id = $1
	`, id, passwordHash, string(role))
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
