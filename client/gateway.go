// Package client is the data gateway used by the terminal screens. It talks
// to the Record API over HTTP, checks every response shape before use and
// keeps the current session snapshot in a SessionStore. Every error it
// returns is an *apperrors.AppError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/match"
	"github.com/Skryldev/findmybuddy/models"
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// RegisterRequest is the registration payload sent to POST /users.
type RegisterRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Address  string  `json:"address"`
	Phone    *string `json:"phone,omitempty"`
	PinCode  string  `json:"pinCode"`
	Password string  `json:"password"`
}

// Created is the acknowledgement of a registration.
type Created struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Email  string        `json:"email"`
	Status models.Status `json:"status"`
}

// Gateway wraps the Record API.
type Gateway struct {
	base     *url.URL
	http     *http.Client
	sessions SessionStore
	log      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.http = c } }

// WithSessionStore sets where the session snapshot lives. The default keeps
// it in memory only.
func WithSessionStore(s SessionStore) Option { return func(g *Gateway) { g.sessions = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

// New builds a Gateway for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Newf(apperrors.KindConfiguration, "Invalid API address %q", baseURL)
	}
	g := &Gateway{
		base:     u,
		http:     &http.Client{Timeout: 10 * time.Second},
		sessions: NewMemorySessionStore(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Record API
// ─────────────────────────────────────────────────────────────────────────────

// ListUsers fetches the directory. A body that is not a JSON array is a
// ProtocolError.
func (g *Gateway) ListUsers(ctx context.Context) ([]*models.User, error) {
	var raw json.RawMessage
	if err := g.do(ctx, http.MethodGet, "/users", nil, nil, &raw); err != nil {
		return nil, err
	}
	if !isArray(raw) {
		return nil, apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
			WithDetails("user list is not an array")
	}
	var users []*models.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindProtocol, "Unexpected response from server").
			WithDetails(err.Error())
	}
	for i, u := range users {
		if u == nil || u.ID == "" {
			return nil, apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
				WithDetails(fmt.Sprintf("user list entry %d is not a user record", i))
		}
	}
	return users, nil
}

// Register submits a registration.
func (g *Gateway) Register(ctx context.Context, req RegisterRequest) (*Created, error) {
	var out Created
	if err := g.do(ctx, http.MethodPost, "/users", nil, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
			WithDetails("registration acknowledgement has no id")
	}
	return &out, nil
}

// UpdateStatus records an administrator decision.
func (g *Gateway) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	q := url.Values{"id": {id}}
	var out struct {
		Message string `json:"message"`
	}
	return g.do(ctx, http.MethodPatch, "/users", q, map[string]models.Status{"status": status}, &out)
}

// Login checks credentials against the API.
func (g *Gateway) Login(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	body := map[string]string{"email": email, "password": password}
	if err := g.do(ctx, http.MethodPost, "/login", nil, body, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
			WithDetails("login response is not a user record")
	}
	return &u, nil
}

// Buddies fetches the directory and returns u's buddy set.
func (g *Gateway) Buddies(ctx context.Context, u *models.User) ([]*models.User, error) {
	all, err := g.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return match.Buddies(u, all), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// CurrentSession returns the remembered user, or nil when signed out.
func (g *Gateway) CurrentSession() (*models.User, error) {
	u, err := g.sessions.Load()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "Session cannot be read")
	}
	return u, nil
}

// SetSession remembers u.
func (g *Gateway) SetSession(u *models.User) error {
	if err := g.sessions.Save(u); err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "Session cannot be saved")
	}
	return nil
}

// ClearSession forgets the remembered user.
func (g *Gateway) ClearSession() error {
	if err := g.sessions.Clear(); err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "Session cannot be cleared")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transport
// ─────────────────────────────────────────────────────────────────────────────

// wireError is the error object the API renders.
type wireError struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
	Details any            `json:"details"`
	Code    string         `json:"code"`
}

func (g *Gateway) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := *g.base
	u.Path += path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindInternal, "Request cannot be encoded")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "Request cannot be built")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		g.log.WarnContext(ctx, "api unreachable", "method", method, "path", path, "err", err)
		return apperrors.Wrap(err, apperrors.KindConnectivity, "Network connection failed").
			WithDetails(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindConnectivity, "Network connection failed").
			WithDetails(err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if !json.Valid(raw) {
		return apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
			WithDetails(fmt.Sprintf("HTTP %d body is not JSON", resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(err, apperrors.KindProtocol, "Unexpected response from server").
			WithDetails(err.Error())
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var we wireError
	if !json.Valid(raw) || json.Unmarshal(raw, &we) != nil || we.Message == "" {
		return apperrors.New(apperrors.KindProtocol, "Unexpected response from server").
			WithDetails(fmt.Sprintf("HTTP %d with unstructured body", status))
	}
	kind := we.Kind
	if kind == "" {
		kind = kindForStatus(status)
	}
	return (&apperrors.AppError{Kind: kind, Message: we.Message, Details: we.Details}).WithCode(we.Code)
}

func kindForStatus(status int) apperrors.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusMethodNotAllowed:
		return apperrors.KindValidation
	case http.StatusUnauthorized:
		return apperrors.KindInvalidCredentials
	case http.StatusNotFound:
		return apperrors.KindNotFound
	case http.StatusConflict:
		return apperrors.KindConstraint
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperrors.KindConnectivity
	default:
		return apperrors.KindInternal
	}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// IsRetryable reports whether the failure may clear up on its own.
func IsRetryable(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Kind.Retryable()
}
