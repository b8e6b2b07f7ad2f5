package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Skryldev/findmybuddy/match"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/view"
)

// shell renders the controller's current screen as text and turns typed
// commands into controller actions.
type shell struct {
	c       *view.Controller
	in      *bufio.Scanner
	out     io.Writer
	timeout time.Duration
}

func newShell(c *view.Controller, in io.Reader, out io.Writer, timeout time.Duration) *shell {
	return &shell{c: c, in: bufio.NewScanner(in), out: out, timeout: timeout}
}

// Run restores the session and loops until quit or end of input.
func (s *shell) Run(ctx context.Context) error {
	s.act(ctx, s.c.Start)
	for {
		s.render()
		line, ok := s.prompt("> ")
		if !ok {
			return nil
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		cmd = strings.ToLower(cmd)
		if cmd == "" {
			continue
		}
		if cmd == "quit" || cmd == "q" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.dispatch(ctx, cmd, strings.TrimSpace(arg)) {
			s.printf("Unknown command %q\n", cmd)
		}
	}
}

func (s *shell) dispatch(ctx context.Context, cmd, arg string) bool {
	screen := s.c.Screen()

	switch {
	case cmd == "login" && screen != view.ScreenLogin:
		s.navigate(view.ScreenLogin)
	case cmd == "register" && screen != view.ScreenRegister:
		s.navigate(view.ScreenRegister)
	case cmd == "back":
		s.navigate(view.ScreenLanding)

	case cmd == "submit" && screen == view.ScreenLogin:
		email, _ := s.prompt("Email: ")
		password, _ := s.prompt("Password: ")
		s.act(ctx, func(ctx context.Context) error { return s.c.Login(ctx, email, password) })
	case cmd == "submit" && screen == view.ScreenRegister:
		f := s.readForm()
		s.act(ctx, func(ctx context.Context) error { return s.c.Register(ctx, f) })

	case cmd == "refresh" && screen == view.ScreenHome:
		s.act(ctx, s.c.RefreshHome)
	case cmd == "refresh" && screen == view.ScreenAdmin:
		s.act(ctx, s.c.RefreshDirectory)
	case cmd == "filter" && screen == view.ScreenAdmin:
		s.c.SetFilter(match.ParseFilter(arg))
	case (cmd == "approve" || cmd == "reject") && screen == view.ScreenAdmin:
		id, ok := s.resolve(arg)
		if !ok {
			s.printf("No resident %q\n", arg)
			return true
		}
		status := models.StatusApproved
		if cmd == "reject" {
			status = models.StatusRejected
		}
		s.act(ctx, func(ctx context.Context) error { return s.c.Decide(ctx, id, status) })
	case cmd == "logout" && (screen == view.ScreenHome || screen == view.ScreenAdmin):
		s.act(ctx, func(context.Context) error { return s.c.Logout() })

	default:
		return false
	}
	return true
}

// act runs one controller action under the per-action timeout.
func (s *shell) act(ctx context.Context, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, view.ErrInvalidForm) {
		s.printf("! %s\n", view.Message(err))
	}
}

func (s *shell) navigate(to view.Screen) {
	if err := s.c.Navigate(to); err != nil {
		s.printf("! Not available here\n")
	}
}

// resolve accepts a 1-based row number of the current table or an id.
func (s *shell) resolve(arg string) (string, bool) {
	rows := s.c.Residents()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(rows) {
			return "", false
		}
		return rows[n-1].ID, true
	}
	for _, r := range rows {
		if r.ID == arg {
			return r.ID, true
		}
	}
	return "", false
}

func (s *shell) readForm() view.RegisterForm {
	var f view.RegisterForm
	f.Name, _ = s.prompt("Full name: ")
	f.Email, _ = s.prompt("Gmail address: ")
	f.Address, _ = s.prompt("Address: ")
	f.Phone, _ = s.prompt("Phone (optional): ")
	f.PinCode, _ = s.prompt("PIN code: ")
	f.Password, _ = s.prompt("Password: ")
	f.ConfirmPassword, _ = s.prompt("Confirm password: ")
	return f
}

func (s *shell) prompt(label string) (string, bool) {
	s.printf("%s", label)
	if !s.in.Scan() {
		return "", false
	}
	return s.in.Text(), true
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Screens
// ─────────────────────────────────────────────────────────────────────────────

func (s *shell) render() {
	s.printf("\n")
	switch s.c.Screen() {
	case view.ScreenLanding:
		s.printf("FIND MY BUDDY\nMeet verified neighbours who share your PIN code.\n\n")
		s.printf("Commands: login, register, quit\n")

	case view.ScreenLogin:
		s.printf("SIGN IN\n")
		s.printf("Commands: submit, register, back, quit\n")

	case view.ScreenRegister:
		s.printf("REGISTER\n")
		for _, field := range []string{"name", "email", "address", "pinCode", "password", "confirmPassword"} {
			if msg, ok := s.c.FieldErrors()[field]; ok {
				s.printf("  %s: %s\n", field, msg)
			}
		}
		s.printf("Commands: submit, login, back, quit\n")

	case view.ScreenPending:
		s.printf("APPLICATION RECEIVED\nAn administrator will review your registration.\n\n")
		s.printf("Commands: login, quit\n")

	case view.ScreenHome:
		s.renderHome()

	case view.ScreenAdmin:
		s.renderAdmin()
	}
}

func (s *shell) renderHome() {
	u := s.c.User()
	if u == nil {
		return
	}
	s.printf("WELCOME, %s\nPIN code %s\n\n", strings.ToUpper(u.Name), u.PinCode)

	buddies := s.c.Buddies()
	if len(buddies) == 0 {
		s.printf("No buddies in your area yet.\n")
	} else {
		s.printf("Buddies in %s (%d):\n", u.PinCode, len(buddies))
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tEMAIL\tPHONE\tADDRESS")
		for _, b := range buddies {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Name, b.Email, phone(b), b.Address)
		}
		_ = tw.Flush()
	}
	s.printf("\nCommands: refresh, logout, quit\n")
}

func (s *shell) renderAdmin() {
	sum := s.c.Summary()
	s.printf("ADMIN DASHBOARD\n")
	s.printf("Total %d  Pending %d  Approved %d  Rejected %d\n\n",
		sum.Total, sum.Pending, sum.Approved, sum.Rejected)

	rows := s.c.Residents()
	s.printf("Filter: %s\n", s.c.Filter())
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tEMAIL\tPIN\tSTATUS\tJOINED")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Name, r.Email, r.PinCode, r.Status, r.CreatedAt.Format("2006-01-02"))
	}
	_ = tw.Flush()
	s.printf("\nCommands: approve <#|id>, reject <#|id>, filter <all|pending|approved|rejected>, refresh, logout, quit\n")
}

func phone(u *models.User) string {
	if u.Phone == nil || *u.Phone == "" {
		return "-"
	}
	return *u.Phone
}
