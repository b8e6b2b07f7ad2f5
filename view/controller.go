// Package view holds the client-side session and screen state machine. It
// decides which screen is shown, owns the signed-in user, and revalidates the
// remembered session against a fresh directory listing at startup and before
// every privileged action.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/client"
	"github.com/Skryldev/findmybuddy/match"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/validation"
)

// Screen names one rendered view.
type Screen string

const (
	ScreenLanding  Screen = "landing"
	ScreenLogin    Screen = "login"
	ScreenRegister Screen = "register"
	ScreenPending  Screen = "pending-success"
	ScreenHome     Screen = "home"
	ScreenAdmin    Screen = "admin"
)

var (
	// ErrTransition is returned for a navigation the current screen does not allow.
	ErrTransition = errors.New("view: transition not allowed")
	// ErrSessionRevoked is returned when revalidation signed the user out.
	ErrSessionRevoked = errors.New("view: session no longer valid")
	// ErrInvalidForm is returned when client-side form checks fail; see FieldErrors.
	ErrInvalidForm = errors.New("view: form has errors")
	// ErrForbidden is returned for an admin action without an admin session.
	ErrForbidden = errors.New("view: administrator session required")
)

// transitions lists the navigations the user can trigger directly. Sign-in,
// sign-out and revalidation move between screens on their own.
var transitions = map[Screen][]Screen{
	ScreenLanding:  {ScreenLogin, ScreenRegister},
	ScreenLogin:    {ScreenRegister, ScreenLanding},
	ScreenRegister: {ScreenLogin, ScreenLanding},
	ScreenPending:  {ScreenLogin},
}

// Gateway is the part of client.Gateway the controller uses.
type Gateway interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.Created, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
	Login(ctx context.Context, email, password string) (*models.User, error)
	CurrentSession() (*models.User, error)
	SetSession(u *models.User) error
	ClearSession() error
}

// RegisterForm is the registration form as typed by the user.
type RegisterForm struct {
	Name            string
	Email           string
	Address         string
	Phone           string
	PinCode         string
	Password        string
	ConfirmPassword string
}

// Controller is the session/view state machine. Actions are serialized;
// accessors may be called at any time.
type Controller struct {
	gw  Gateway
	log *slog.Logger

	act  sync.Mutex
	busy atomic.Bool

	mu          sync.RWMutex
	screen      Screen
	user        *models.User
	directory   []*models.User
	buddies     []*models.User
	filter      match.Filter
	errMsg      string
	fieldErrors map[string]string
}

// New returns a controller on the landing screen. Call Start before use.
func New(gw Gateway, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{gw: gw, log: log, screen: ScreenLanding, filter: match.FilterAll}
}

// ─────────────────────────────────────────────────────────────────────────────
// Accessors
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) Screen() Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screen
}

// User returns the signed-in user, or nil.
func (c *Controller) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Busy reports whether an action is waiting on the network.
func (c *Controller) Busy() bool { return c.busy.Load() }

// Err is the human-readable message of the last failed action, or "".
func (c *Controller) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

// FieldErrors returns the per-field messages of the last registration attempt.
func (c *Controller) FieldErrors() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.fieldErrors))
	for k, v := range c.fieldErrors {
		out[k] = v
	}
	return out
}

// Buddies is the buddy set computed on the last home refresh.
func (c *Controller) Buddies() []*models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buddies
}

// Residents is the admin table under the current filter.
func (c *Controller) Residents() []*models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return match.FilterStatus(c.directory, c.filter)
}

// Summary is the admin dashboard counters.
func (c *Controller) Summary() match.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return match.Summarize(c.directory)
}

// Filter is the current admin table filter.
func (c *Controller) Filter() match.Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// SetFilter changes the admin table filter.
func (c *Controller) SetFilter(f match.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

// ─────────────────────────────────────────────────────────────────────────────
// Navigation
// ─────────────────────────────────────────────────────────────────────────────

// Navigate moves to screen to when the current screen allows it.
func (c *Controller) Navigate(to Screen) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range transitions[c.screen] {
		if s == to {
			c.screen = to
			c.errMsg = ""
			c.fieldErrors = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransition, c.screen, to)
}

// ─────────────────────────────────────────────────────────────────────────────
// Actions
// ─────────────────────────────────────────────────────────────────────────────

// run serializes actions, raises Busy for their duration and records the
// human-readable error. Busy is always lowered, whatever fn does.
func (c *Controller) run(fn func() error) error {
	c.act.Lock()
	defer c.act.Unlock()
	c.busy.Store(true)
	defer c.busy.Store(false)

	c.setErr("")
	err := fn()
	if err != nil {
		c.setErr(Message(err))
	}
	return err
}

func (c *Controller) setErr(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// Start restores a remembered session. The session survives only if a fresh
// listing still holds the same id with status approved or role admin;
// otherwise, and on any failure, it is cleared and the landing screen shows.
func (c *Controller) Start(ctx context.Context) error {
	return c.run(func() error {
		saved, err := c.gw.CurrentSession()
		if err != nil || saved == nil {
			c.signOut()
			return nil
		}
		all, err := c.gw.ListUsers(ctx)
		if err != nil {
			c.log.WarnContext(ctx, "session revalidation failed", "err", err)
			c.signOut()
			return err
		}
		fresh := find(all, saved.ID)
		if fresh == nil || !fresh.CanSignIn() {
			c.log.InfoContext(ctx, "remembered session dropped", "user_id", saved.ID)
			c.signOut()
			return nil
		}
		return c.signIn(fresh, all)
	})
}

// Login signs in with email and password.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	return c.run(func() error {
		u, err := c.gw.Login(ctx, strings.TrimSpace(email), password)
		if err != nil {
			return err
		}
		all, err := c.gw.ListUsers(ctx)
		if err != nil {
			return err
		}
		return c.signIn(u, all)
	})
}

// Register checks the form, refuses an email already in the directory and
// submits. Success moves to the pending-success screen.
func (c *Controller) Register(ctx context.Context, f RegisterForm) error {
	return c.run(func() error {
		if errs := checkForm(&f); len(errs) > 0 {
			c.setFieldErrors(errs)
			return ErrInvalidForm
		}
		c.setFieldErrors(nil)

		all, err := c.gw.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range all {
			if strings.EqualFold(u.Email, f.Email) {
				c.setFieldErrors(map[string]string{"email": "Identity already registered"})
				return ErrInvalidForm
			}
		}

		req := client.RegisterRequest{
			Name:     f.Name,
			Email:    f.Email,
			Address:  f.Address,
			PinCode:  f.PinCode,
			Password: f.Password,
		}
		if f.Phone != "" {
			req.Phone = &f.Phone
		}
		if _, err := c.gw.Register(ctx, req); err != nil {
			if apperrors.IsKind(err, apperrors.KindConstraint) {
				c.setFieldErrors(map[string]string{"email": "Identity already registered"})
			}
			return err
		}

		c.mu.Lock()
		c.screen = ScreenPending
		c.mu.Unlock()
		return nil
	})
}

// Logout clears the session and returns to landing.
func (c *Controller) Logout() error {
	return c.run(func() error {
		c.signOut()
		return nil
	})
}

// RefreshHome revalidates the session and recomputes the buddy set.
func (c *Controller) RefreshHome(ctx context.Context) error {
	return c.run(func() error {
		_, all, err := c.revalidate(ctx)
		if err != nil {
			return err
		}
		c.store(all)
		return nil
	})
}

// RefreshDirectory revalidates an admin session and reloads the directory.
func (c *Controller) RefreshDirectory(ctx context.Context) error {
	return c.run(func() error {
		u, all, err := c.revalidate(ctx)
		if err != nil {
			return err
		}
		if !u.IsAdmin() {
			return ErrForbidden
		}
		c.store(all)
		return nil
	})
}

// Decide approves or rejects an applicant. The admin session is revalidated
// first and the directory reloaded afterwards.
func (c *Controller) Decide(ctx context.Context, id string, status models.Status) error {
	return c.run(func() error {
		u, _, err := c.revalidate(ctx)
		if err != nil {
			return err
		}
		if !u.IsAdmin() {
			return ErrForbidden
		}
		if err := c.gw.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		all, err := c.gw.ListUsers(ctx)
		if err != nil {
			return err
		}
		c.store(all)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// revalidate re-reads the directory and signs the user out when their record
// vanished or lost approval.
func (c *Controller) revalidate(ctx context.Context) (*models.User, []*models.User, error) {
	current := c.User()
	if current == nil {
		return nil, nil, ErrSessionRevoked
	}
	all, err := c.gw.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	fresh := find(all, current.ID)
	if fresh == nil || !fresh.CanSignIn() {
		c.log.InfoContext(ctx, "session revoked on revalidation", "user_id", current.ID)
		c.signOut()
		return nil, nil, ErrSessionRevoked
	}

	c.mu.Lock()
	c.user = fresh
	c.mu.Unlock()
	if err := c.gw.SetSession(fresh); err != nil {
		c.log.WarnContext(ctx, "session snapshot not refreshed", "err", err)
	}
	return fresh, all, nil
}

func (c *Controller) signIn(u *models.User, all []*models.User) error {
	if err := c.gw.SetSession(u); err != nil {
		return err
	}
	c.mu.Lock()
	c.user = u
	c.fieldErrors = nil
	if u.IsAdmin() {
		c.screen = ScreenAdmin
	} else {
		c.screen = ScreenHome
	}
	c.mu.Unlock()
	c.store(all)
	return nil
}

func (c *Controller) signOut() {
	if err := c.gw.ClearSession(); err != nil {
		c.log.Warn("session snapshot not cleared", "err", err)
	}
	c.mu.Lock()
	c.user = nil
	c.directory = nil
	c.buddies = nil
	c.screen = ScreenLanding
	c.mu.Unlock()
}

// store keeps the listing for the current screen.
func (c *Controller) store(all []*models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return
	}
	if c.user.IsAdmin() {
		c.directory = all
		c.buddies = nil
		return
	}
	c.directory = nil
	c.buddies = match.Buddies(c.user, all)
}

func (c *Controller) setFieldErrors(errs map[string]string) {
	c.mu.Lock()
	c.fieldErrors = errs
	c.mu.Unlock()
}

func find(all []*models.User, id string) *models.User {
	for _, u := range all {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// checkForm trims f in place and returns per-field messages.
func checkForm(f *RegisterForm) map[string]string {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Address = strings.TrimSpace(f.Address)
	f.Phone = strings.TrimSpace(f.Phone)
	f.PinCode = strings.TrimSpace(f.PinCode)

	errs := map[string]string{}
	if f.Name == "" {
		errs["name"] = "Required"
	}
	switch {
	case f.Email == "":
		errs["email"] = "Required"
	case !validation.Gmail(f.Email):
		errs["email"] = "Use Gmail"
	}
	if f.Address == "" {
		errs["address"] = "Required"
	}
	switch {
	case f.PinCode == "":
		errs["pinCode"] = "Required"
	case !validation.PinCode(f.PinCode):
		errs["pinCode"] = "Must be 6 digits"
	}
	if len(f.Password) < 6 {
		errs["password"] = "Too short (min 6)"
	}
	if f.Password != f.ConfirmPassword {
		errs["confirmPassword"] = "Mismatch"
	}
	return errs
}

// Message turns err into the line shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidForm):
		return "Please fix the highlighted fields"
	case errors.Is(err, ErrSessionRevoked):
		return "Your session has ended, please sign in again"
	case errors.Is(err, ErrForbidden):
		return "Administrator access required"
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return "An unexpected error occurred"
	}
	switch appErr.Kind {
	case apperrors.KindProtocol:
		return "Unexpected response from server. Please retry."
	case apperrors.KindConnectivity:
		return "Connection timeout. Please retry."
	}
	return appErr.Message
}
