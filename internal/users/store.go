package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"libris/internal/services"
	"libris/internal/storage"
)

// RoleAdmin marks users allowed to review requests.
const RoleAdmin = "admin"

// RoleUser marks regular requesters.
const RoleUser = "user"

// User is a persisted identity row.
type User struct {
	ID        int64
	Username  string
	Role      string
	CreatedAt time.Time
}

// IsAdmin reports whether the user may review requests.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Store manages user persistence.
type Store struct {
	db *storage.DB
	mu sync.Mutex
}

// NewStore wraps the shared database handle.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Create inserts a user row.
func (s *Store) Create(ctx context.Context, username, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, services.Wrap(services.ErrInvalidPayload, "users", "create", "username must not be empty", nil)
	}
	switch role {
	case RoleAdmin, RoleUser:
	case "":
		role = RoleUser
	default:
		return nil, services.Wrap(services.ErrInvalidPayload, "users", "create", fmt.Sprintf("unknown role %q", role), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecWithRetry(
		ctx,
		`INSERT INTO users (username, role, created_at) VALUES (?, ?, ?)`,
		username,
		role,
		storage.FormatTime(time.Now()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, services.Wrap(services.ErrInvalidPayload, "users", "create", fmt.Sprintf("username %q already exists", username), nil)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a user by identifier. Missing users return nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByUsername fetches a user by name. Missing users return nil.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE username = ?`, strings.TrimSpace(username))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return user, nil
}

// List returns all users ordered by identifier.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.Handle().QueryContext(ctx,
		`SELECT id, username, role, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// Delete removes a user; requests, ledger rows, and dismissals cascade.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecWithRetry(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		id         int64
		username   string
		role       string
		createdRaw string
	)
	if err := scanner.Scan(&id, &username, &role, &createdRaw); err != nil {
		return nil, err
	}
	user := &User{ID: id, Username: username, Role: role}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		user.CreatedAt = created
	}
	return user, nil
}
