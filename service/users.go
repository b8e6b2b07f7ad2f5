// Package service implements the Record API operations on top of the store:
// listing with the synthetic seed, registration, status decisions, login and
// the optional admin bootstrap. Every error it returns is an *apperrors.AppError.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/repo"
	"github.com/Skryldev/findmybuddy/validation"
)

// DefaultSeedPassword is the password of the synthetic administrator when
// none is configured.
const DefaultSeedPassword = "admin123"

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Email    string  `json:"email" validate:"required,email,gmail,max=255"`
	Address  string  `json:"address" validate:"required"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	PinCode  string  `json:"pinCode" validate:"required,pincode"`
	Password string  `json:"password" validate:"required,min=6"`
}

// Options tunes a Users service. Zero values pick production defaults.
type Options struct {
	SeedAdminEmail    string
	SeedAdminPassword string

	// BcryptCost defaults to bcrypt.DefaultCost. Tests use bcrypt.MinCost.
	BcryptCost int

	Clock  func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Users is the Record API. It is safe for concurrent use.
type Users struct {
	db       *db.DB
	repo     repo.UserRepository
	validate *validation.Validator
	log      *slog.Logger

	now   func() time.Time
	newID func() string
	cost  int

	seedEmail string
	seedHash  []byte

	schemaMu    sync.Mutex
	schemaReady atomic.Bool
}

// NewUsers builds the service over an open pool.
func NewUsers(database *db.DB, opts Options) (*Users, error) {
	opts.SeedAdminEmail = normalizeEmail(opts.SeedAdminEmail)
	if opts.SeedAdminEmail == "" {
		opts.SeedAdminEmail = models.SeedAdminEmail
	}
	if opts.SeedAdminPassword == "" {
		opts.SeedAdminPassword = DefaultSeedPassword
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.SeedAdminPassword), opts.BcryptCost)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfiguration, "Seed admin password cannot be hashed")
	}

	return &Users{
		db:        database,
		repo:      repo.NewUserRepo(database),
		validate:  validation.New(),
		log:       opts.Logger,
		now:       opts.Clock,
		newID:     opts.NewID,
		cost:      opts.BcryptCost,
		seedEmail: opts.SeedAdminEmail,
		seedHash:  hash,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Schema
// ─────────────────────────────────────────────────────────────────────────────

// ensureSchema creates the users table on first access. Success is remembered
// for the lifetime of the service; a failure is retried on the next call.
func (s *Users) ensureSchema(ctx context.Context) error {
	if s.schemaReady.Load() {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady.Load() {
		return nil
	}
	if err := repo.EnsureSchema(ctx, s.db); err != nil {
		s.log.ErrorContext(ctx, "users table initialisation failed", "err", err)
		if db.IsTransient(err) {
			return apperrors.FromStore(err, "Database unreachable")
		}
		return apperrors.Wrap(err, apperrors.KindSchema, "Schema Initialization Failed").
			WithDetails(err.Error())
	}
	s.schemaReady.Store(true)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns every user, newest first. An empty directory yields a single
// synthetic administrator that is never persisted.
func (s *Users) List(ctx context.Context) ([]*models.User, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.FromStore(err, "Failed to list users")
	}
	if len(users) == 0 {
		seed := models.SeedAdmin(s.seedEmail, s.now())
		return []*models.User{&seed}, nil
	}
	return users, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Register
// ─────────────────────────────────────────────────────────────────────────────

// Register validates in and stores a new pending resident. Email uniqueness is
// decided by the store, so of two racing registrations exactly one wins and
// the other gets a ConstraintViolation.
func (s *Users) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	if in.Phone != nil {
		p := strings.TrimSpace(*in.Phone)
		in.Phone = &p
		if p == "" {
			in.Phone = nil
		}
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.New(apperrors.KindValidation, "password: Must be at most 72 bytes long")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "Password cannot be hashed")
	}

	u, err := s.repo.Insert(ctx, models.CreateUserParams{
		ID:           s.newID(),
		Name:         in.Name,
		Email:        in.Email,
		Address:      in.Address,
		Phone:        in.Phone,
		PinCode:      in.PinCode,
		PasswordHash: string(hash),
		Status:       models.StatusPending,
		Role:         models.RoleUser,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, apperrors.FromStore(err, "Failed to register user")
	}
	s.log.InfoContext(ctx, "user registered", "id", u.ID, "pin_code", u.PinCode)
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStatus
// ─────────────────────────────────────────────────────────────────────────────

// UpdateStatus records an administrator decision. Concurrent decisions on the
// same user resolve as last write wins.
func (s *Users) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.New(apperrors.KindValidation, "Missing user id").
			WithDetails(map[string]string{"id": "This field is required"})
	}
	if !status.Decision() {
		return apperrors.Newf(apperrors.KindValidation, "Invalid status %q", status).
			WithDetails(map[string]string{"status": "Status must be approved or rejected"})
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if db.IsNotFound(err) {
			return apperrors.Wrap(err, apperrors.KindNotFound, "User not found")
		}
		return apperrors.FromStore(err, "Failed to update status")
	}
	s.log.InfoContext(ctx, "user status updated", "id", id, "status", status)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Login
// ─────────────────────────────────────────────────────────────────────────────

// Login checks credentials and the approval state. While the directory is
// empty the synthetic administrator's credentials are accepted.
func (s *Users) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByEmail(ctx, email)
	switch {
	case db.IsNotFound(err):
		return s.loginSeed(ctx, email, password)
	case err != nil:
		return nil, apperrors.FromStore(err, "Failed to look up user")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, invalidCredentials()
	}
	if u.Status == models.StatusPending && !u.IsAdmin() {
		return nil, apperrors.New(apperrors.KindPendingApproval, "Account verification in progress")
	}
	if u.Status == models.StatusRejected {
		return nil, apperrors.New(apperrors.KindRejected, "Application declined by security")
	}
	return u, nil
}

func (s *Users) loginSeed(ctx context.Context, email, password string) (*models.User, error) {
	// Compare even when the email cannot match so unknown addresses cost the
	// same as wrong passwords.
	pwOK := bcrypt.CompareHashAndPassword(s.seedHash, []byte(password)) == nil
	if email != s.seedEmail || !pwOK {
		return nil, invalidCredentials()
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperrors.FromStore(err, "Failed to look up user")
	}
	if n > 0 {
		return nil, invalidCredentials()
	}
	seed := models.SeedAdmin(s.seedEmail, s.now())
	return &seed, nil
}

// normalizeEmail is applied to every address before it reaches the store, so
// uniqueness and lookups are case-insensitive on every dialect.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func invalidCredentials() *apperrors.AppError {
	return apperrors.New(apperrors.KindInvalidCredentials, "Invalid access credentials")
}

// ─────────────────────────────────────────────────────────────────────────────
// Bootstrap
// ─────────────────────────────────────────────────────────────────────────────

// Bootstrap persists a real administrator, with the seed identity and the
// hashed seed password, when no admin row exists yet. It reports whether a
// row was written. The check and the insert share one transaction.
func (s *Users) Bootstrap(ctx context.Context) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}

	created := false
	err := s.db.ExecTx(ctx, func(tx *db.Tx) error {
		r := repo.NewUserRepo(tx)
		n, err := r.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		seed := models.SeedAdmin(s.seedEmail, s.now())
		_, err = r.Insert(ctx, models.CreateUserParams{
			ID:           seed.ID,
			Name:         seed.Name,
			Email:        seed.Email,
			Address:      seed.Address,
			PinCode:      seed.PinCode,
			PasswordHash: string(s.seedHash),
			Status:       seed.Status,
			Role:         seed.Role,
			CreatedAt:    seed.CreatedAt,
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, apperrors.FromStore(err, "Admin bootstrap failed")
	}
	if created {
		s.log.InfoContext(ctx, "administrator bootstrapped", "email", s.seedEmail)
	}
	return created, nil
}

// Ping reports whether the store is reachable.
func (s *Users) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return apperrors.FromStore(err, "Database unreachable")
	}
	return nil
}
