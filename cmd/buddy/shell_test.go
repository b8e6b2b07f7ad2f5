package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/findmybuddy/api"
	"github.com/Skryldev/findmybuddy/client"
	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/service"
	"github.com/Skryldev/findmybuddy/view"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newBackend(t *testing.T) (*service.Users, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	database, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	users, err := service.NewUsers(database, service.Options{BcryptCost: bcrypt.MinCost, Logger: quiet})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(users, quiet), quiet))
	t.Cleanup(srv.Close)
	return users, srv.URL
}

func runScript(t *testing.T, url string, lines ...string) string {
	t.Helper()
	gw, err := client.New(url, client.WithLogger(quiet))
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	sh := newShell(view.New(gw, quiet), in, &out, 5*time.Second)
	require.NoError(t, sh.Run(context.Background()))
	return out.String()
}

func TestShell_RegisterApproveSignIn(t *testing.T) {
	users, url := newBackend(t)
	_, err := users.Bootstrap(context.Background())
	require.NoError(t, err)

	out := runScript(t, url,
		"register", "submit",
		"Ann", "ann@gmail.com", "4 Lake View", "", "500001", "secret1", "secret1",
		"login", "submit", "admin@gmail.com", "admin123",
		"approve 1",
		"logout",
		"login", "submit", "ann@gmail.com", "secret1",
		"quit",
	)

	assert.Contains(t, out, "FIND MY BUDDY")
	assert.Contains(t, out, "APPLICATION RECEIVED")
	assert.Contains(t, out, "ADMIN DASHBOARD")
	assert.Contains(t, out, "Total 1  Pending 1  Approved 0  Rejected 0")
	assert.Contains(t, out, "Total 1  Pending 0  Approved 1  Rejected 0")
	assert.Contains(t, out, "WELCOME, ANN")
	assert.Contains(t, out, "No buddies in your area yet.")
}

func TestShell_PendingLoginRefused(t *testing.T) {
	_, url := newBackend(t)

	out := runScript(t, url,
		"register", "submit",
		"Bob", "bob@gmail.com", "5 Lake View", "", "500001", "secret1", "secret1",
		"login", "submit", "bob@gmail.com", "secret1",
	)
	assert.Contains(t, out, "! Account verification in progress")
	assert.NotContains(t, out, "WELCOME")
}

func TestShell_FormErrorsAndUnknownCommands(t *testing.T) {
	_, url := newBackend(t)

	out := runScript(t, url,
		"approve 1",
		"register", "submit",
		"Eve", "eve@yahoo.com", "x", "", "12ab", "abc", "abd",
		"dance",
	)
	assert.Contains(t, out, `Unknown command "approve"`)
	assert.Contains(t, out, "email: Use Gmail")
	assert.Contains(t, out, "pinCode: Must be 6 digits")
	assert.Contains(t, out, "password: Too short (min 6)")
	assert.Contains(t, out, "confirmPassword: Mismatch")
	assert.Contains(t, out, `Unknown command "dance"`)
}

func TestShell_Unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	out := runScript(t, url, "login", "submit", "ann@gmail.com", "secret1")
	assert.Contains(t, out, "! Connection timeout. Please retry.")
}
