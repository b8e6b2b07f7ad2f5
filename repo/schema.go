package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skryldev/findmybuddy/db"
)

// Table DDL per dialect. These mirror migrations/<driver>/000001_create_users.up.sql
// so a deployment that never ran the migrate tool still gets the same table.
const (
	ddlUsersMySQL = `
		CREATE TABLE IF NOT EXISTS users (
			id            VARCHAR(64)  NOT NULL PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			email         VARCHAR(255) NOT NULL UNIQUE,
			address       TEXT         NOT NULL,
			phone         VARCHAR(50)  NULL,
			pin_code      CHAR(6)      NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			status        ENUM('pending', 'approved', 'rejected') NOT NULL DEFAULT 'pending',
			role          ENUM('admin', 'user') NOT NULL DEFAULT 'user',
			created_at    DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_users_created_at (created_at)
		)`

	ddlUsersPostgres = `
		CREATE TABLE IF NOT EXISTS users (
			id            VARCHAR(64)  PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			email         VARCHAR(255) NOT NULL UNIQUE,
			address       TEXT         NOT NULL,
			phone         VARCHAR(50),
			pin_code      CHAR(6)      NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			status        VARCHAR(16)  NOT NULL DEFAULT 'pending'
			              CHECK (status IN ('pending', 'approved', 'rejected')),
			role          VARCHAR(16)  NOT NULL DEFAULT 'user'
			              CHECK (role IN ('admin', 'user')),
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`

	ddlUsersSQLite = `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT     PRIMARY KEY,
			name          TEXT     NOT NULL,
			email         TEXT     NOT NULL UNIQUE,
			address       TEXT     NOT NULL,
			phone         TEXT,
			pin_code      TEXT     NOT NULL,
			password_hash TEXT     NOT NULL,
			status        TEXT     NOT NULL DEFAULT 'pending'
			              CHECK (status IN ('pending', 'approved', 'rejected')),
			role          TEXT     NOT NULL DEFAULT 'user'
			              CHECK (role IN ('admin', 'user')),
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
)

// ErrSchema marks a failure to create the users table.
var ErrSchema = errors.New("repo/user: schema")

// SchemaDDL returns the users table definition for dialect d.
func SchemaDDL(d db.Dialect) string {
	switch d {
	case db.DialectPostgres:
		return ddlUsersPostgres
	case db.DialectSQLite:
		return ddlUsersSQLite
	default:
		return ddlUsersMySQL
	}
}

// EnsureSchema creates the users table when it does not exist yet. Errors
// wrap both ErrSchema and the mapped store error.
func EnsureSchema(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, SchemaDDL(q.Dialect())); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
