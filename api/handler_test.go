package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skryldev/findmybuddy/api"
	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/service"
)

func init() { gin.SetMode(gin.TestMode) }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRouter(t *testing.T) (*gin.Engine, *db.DB) {
	t.Helper()
	database, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	users, err := service.NewUsers(database, service.Options{BcryptCost: bcrypt.MinCost, Logger: quiet})
	require.NoError(t, err)
	return api.NewRouter(api.NewHandler(users, quiet), quiet), database
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.AppError {
	t.Helper()
	var e apperrors.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
	return e
}

func annBody(pin string) map[string]any {
	return map[string]any{
		"name":     "Ann",
		"email":    "ann@gmail.com",
		"address":  "4 Lake View",
		"pinCode":  pin,
		"password": "secret1",
	}
}

func TestListUsers_Seed(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var users []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0]["role"])
	assert.Equal(t, "approved", users[0]["status"])
	assert.Equal(t, "000000", users[0]["pinCode"])
	assert.NotContains(t, users[0], "passwordHash")
	assert.NotContains(t, users[0], "PasswordHash")
	assert.NotEmpty(t, w.Header().Get(api.HeaderRequestID))
}

func TestCreateUser(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/users", annBody("500001"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created api.CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ann", created.Name)
	assert.Equal(t, "ann@gmail.com", created.Email)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.NotContains(t, w.Body.String(), "secret1")
}

func TestCreateUser_Conflict(t *testing.T) {
	r, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/users", annBody("500001")).Code)

	w := do(t, r, http.MethodPost, "/users", annBody("500001"))
	require.Equal(t, http.StatusConflict, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, apperrors.KindConstraint, e.Kind)
	assert.Equal(t, "Email already registered", e.Message)

	var users []models.User
	require.NoError(t, json.Unmarshal(do(t, r, http.MethodGet, "/users", nil).Body.Bytes(), &users))
	assert.Len(t, users, 1)
}

func TestCreateUser_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/users", annBody("5000"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, apperrors.KindValidation, e.Kind)
	assert.NotNil(t, e.Details)

	w = do(t, r, http.MethodPost, "/users", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.KindValidation, decodeError(t, w).Kind)
}

func TestUpdateStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	var created api.CreatedResponse
	w := do(t, r, http.MethodPost, "/users", annBody("500001"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(t, r, http.MethodPatch, "/users?id="+created.ID, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Updated"}`, w.Body.String())

	var users []models.User
	require.NoError(t, json.Unmarshal(do(t, r, http.MethodGet, "/users", nil).Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, models.StatusApproved, users[0].Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPatch, "/users?id=ghost", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.KindNotFound, decodeError(t, w).Kind)

	w = do(t, r, http.MethodPatch, "/users?id=ghost", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/users", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, m := range []string{http.MethodDelete, http.MethodPut} {
		w := do(t, r, m, "/users", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, m)
		assert.JSONEq(t, `{"message":"Method Not Allowed"}`, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r, database := newTestRouter(t)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", nil).Code)

	require.NoError(t, database.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/healthz", nil).Code)
}

func TestSchemaFailure_Is500WithKind(t *testing.T) {
	r, database := newTestRouter(t)
	require.NoError(t, database.Close())

	w := do(t, r, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, apperrors.KindSchema, e.Kind)
	assert.NotEmpty(t, e.Message)
}

func TestRecovery(t *testing.T) {
	r := api.NewRouter(api.NewHandler(panicService{}, quiet), quiet)
	w := do(t, r, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.KindInternal, decodeError(t, w).Kind)
}

func TestRequestID_Propagated(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(api.HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(api.HeaderRequestID))
}

// Register, try to log in while pending, approve, log in again.
func TestAnnScenario(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/users", annBody("500001"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.CreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.StatusPending, created.Status)

	creds := api.LoginRequest{Email: "ann@gmail.com", Password: "secret1"}
	w = do(t, r, http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusForbidden, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, apperrors.KindPendingApproval, e.Kind)
	assert.Equal(t, "Account verification in progress", e.Message)

	w = do(t, r, http.MethodPatch, "/users?id="+created.ID, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var u models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, created.ID, u.ID)
	assert.Equal(t, models.StatusApproved, u.Status)

	w = do(t, r, http.MethodPost, "/login", api.LoginRequest{Email: "ann@gmail.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type panicService struct{}

func (panicService) List(context.Context) ([]*models.User, error) { panic("boom") }
func (panicService) Register(context.Context, service.RegisterInput) (*models.User, error) {
	return nil, nil
}
func (panicService) UpdateStatus(context.Context, string, models.Status) error { return nil }
func (panicService) Login(context.Context, string, string) (*models.User, error) {
	return nil, nil
}
func (panicService) Ping(context.Context) error { return nil }
