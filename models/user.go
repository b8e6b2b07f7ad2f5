package models

import "time"

// Status is the approval state of a directory member.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Decision reports whether s is a status an administrator may assign.
func (s Status) Decision() bool {
	return s == StatusApproved || s == StatusRejected
}

// Role separates administrators from residents.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents a row in the "users" table.
// Fields map 1-to-1 with columns. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	Phone        *string   `json:"phone,omitempty"`
	PinCode      string    `json:"pinCode"`
	PasswordHash string    `json:"-"`
	Status       Status    `json:"status"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether u has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// CanSignIn reports whether u may hold a session: approved residents and
// every administrator.
func (u *User) CanSignIn() bool {
	return u.Status == StatusApproved || u.IsAdmin()
}

// CreateUserParams holds the columns written on registration. Status, role
// and timestamp are forced by the repository caller, not by the client.
type CreateUserParams struct {
	ID           string
	Name         string
	Email        string
	Address      string
	Phone        *string
	PinCode      string
	PasswordHash string
	Status       Status
	Role         Role
	CreatedAt    time.Time
}

// Seed admin constants. A fresh deployment exposes this record from List
// while the table is empty so there is always one usable login.
const (
	SeedAdminID      = "admin-001"
	SeedAdminName    = "System Admin"
	SeedAdminEmail   = "admin@gmail.com"
	SeedAdminAddress = "Global HQ"
	SeedAdminPinCode = "000000"
)

// SeedAdmin returns a fresh synthetic administrator record stamped with now.
// It is never written to the store.
func SeedAdmin(email string, now time.Time) User {
	if email == "" {
		email = SeedAdminEmail
	}
	return User{
		ID:        SeedAdminID,
		Name:      SeedAdminName,
		Email:     email,
		Address:   SeedAdminAddress,
		PinCode:   SeedAdminPinCode,
		Status:    StatusApproved,
		Role:      RoleAdmin,
		CreatedAt: now.UTC(),
	}
}
