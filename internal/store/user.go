package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jonocairns/tskr/internal/model"
)

var ErrEmailRequired = errors.New("email is required")

// UserStore holds member identities. Users have no credentials here; they
// reach the API through sessions issued by the CLI.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, name, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// normalizeUser lowercases the email and defaults the display name to the
// email's local part.
func normalizeUser(email, name string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", "", ErrEmailRequired
	}
	if name = strings.TrimSpace(name); name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return email, name, nil
}

// Create adds a user. A second user with the same email is an error.
func (s *UserStore) Create(ctx context.Context, email, name string) (*model.User, error) {
	email, name, err := normalizeUser(email, name)
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (email, name) VALUES (?, ?)`, email, name)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// FindOrCreate returns the user with email, creating it when missing. The
// bool reports whether a new user was created; an existing user's name is
// left as is.
func (s *UserStore) FindOrCreate(ctx context.Context, email, name string) (*model.User, bool, error) {
	email, name, err := normalizeUser(email, name)
	if err != nil {
		return nil, false, err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name) VALUES (?, ?) ON CONFLICT(email) DO NOTHING`,
		email, name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, fmt.Errorf("find user %s: missing after insert", email)
	}
	return u, n == 1, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail looks the user up by email, ignoring case and surrounding space.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}
