package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Repository interface
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository defines the persistence operations of the buddy directory.
// There is no Delete: records are never removed.
type UserRepository interface {
	Insert(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
	Count(ctx context.Context) (int64, error)
	CountAdmins(ctx context.Context) (int64, error)
}

// userRepo is the production implementation backed by a db.Querier.
type userRepo struct {
	q db.Querier
}

// NewUserRepo returns a UserRepository backed by q.
// q can be a *db.DB or *db.Tx.
func NewUserRepo(q db.Querier) UserRepository {
	return &userRepo{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL constants. Written with "?" placeholders and rebound per dialect.
// ─────────────────────────────────────────────────────────────────────────────

const userColumns = `id, name, email, address, phone, pin_code, password_hash, status, role, created_at`

const (
	sqlInsertUser = `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlGetUserByID = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  id = ?`

	sqlGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM   users
		WHERE  email = ?`

	sqlListUsers = `
		SELECT ` + userColumns + `
		FROM   users
		ORDER  BY created_at DESC`

	sqlUpdateStatus = `
		UPDATE users SET status = ? WHERE id = ?`

	sqlUserExists = `
		SELECT COUNT(*) FROM users WHERE id = ?`

	sqlCountUsers = `
		SELECT COUNT(*) FROM users`

	sqlCountAdmins = `
		SELECT COUNT(*) FROM users WHERE role = 'admin'`
)

func (r *userRepo) rebind(query string) string { return r.q.Dialect().Rebind(query) }

// ─────────────────────────────────────────────────────────────────────────────
// Insert
// ─────────────────────────────────────────────────────────────────────────────

// Insert writes a new user. Email uniqueness is left to the store: a second
// insert with the same email fails with db.ErrDuplicateKey.
func (r *userRepo) Insert(ctx context.Context, p models.CreateUserParams) (*models.User, error) {
	createdAt := p.CreatedAt.UTC()
	_, err := r.q.Exec(ctx, r.rebind(sqlInsertUser),
		p.ID, p.Name, p.Email, p.Address, NullString(p.Phone), p.PinCode,
		p.PasswordHash, string(p.Status), string(p.Role), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repo/user: insert: %w", err)
	}
	return &models.User{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		Address:      p.Address,
		Phone:        p.Phone,
		PinCode:      p.PinCode,
		PasswordHash: p.PasswordHash,
		Status:       p.Status,
		Role:         p.Role,
		CreatedAt:    createdAt,
	}, nil
}

// GetByID returns a single user by primary key.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.q.QueryRow(ctx, r.rebind(sqlGetUserByID), id))
}

// GetByEmail looks up a user by their unique email address.
// Returns db.ErrNotFound when no record matches.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.q.QueryRow(ctx, r.rebind(sqlGetUserByEmail), email))
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns every user, newest first. The directory is neighbourhood
// sized, so there is no pagination.
func (r *userRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.q.Query(ctx, r.rebind(sqlListUsers))
	if err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo/user: list: %w", err)
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

// UpdateStatus overwrites the status of one user, last write wins.
// Returns db.ErrNotFound if no row has that id.
func (r *userRepo) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	res, err := r.q.Exec(ctx, r.rebind(sqlUpdateStatus), string(status), id)
	if err != nil {
		return fmt.Errorf("repo/user: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo/user: update status: %w", err)
	}
	if n > 0 {
		return nil
	}

	// MySQL reports 0 affected rows when the value is unchanged; tell that
	// apart from a missing id.
	var found int64
	if err := r.q.QueryRow(ctx, r.rebind(sqlUserExists), id).Scan(&found); err != nil {
		return fmt.Errorf("repo/user: update status: %w", err)
	}
	if found == 0 {
		return fmt.Errorf("repo/user: update status %q: %w", id, db.ErrNotFound)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Counts
// ─────────────────────────────────────────────────────────────────────────────

// Count returns the total number of users.
func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountUsers).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/user: count: %w", err)
	}
	return n, nil
}

// CountAdmins returns the number of persisted administrator rows.
func (r *userRepo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountAdmins).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/user: count admins: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanUser is the single column mapping.
// ─────────────────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

// scanUser maps one row of userColumns. *db.Row and *db.Rows both satisfy
// scanner, so adding a column only touches this function and userColumns.
func scanUser(s scanner) (*models.User, error) {
	var (
		u      models.User
		phone  sql.NullString
		status string
		role   string
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.Address, &phone, &u.PinCode,
		&u.PasswordHash, &status, &role, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repo/user: %w", err)
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	u.Status = models.Status(status)
	u.Role = models.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

var _ UserRepository = (*userRepo)(nil)

// NullString converts *string to sql.NullString for optional columns.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
