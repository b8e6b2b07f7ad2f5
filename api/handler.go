// Package api is the HTTP boundary of the Record API, built on gin.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/models"
	"github.com/Skryldev/findmybuddy/service"
)

// UserService is what the handlers need from the service layer.
type UserService interface {
	List(ctx context.Context) ([]*models.User, error)
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) error
	Login(ctx context.Context, email, password string) (*models.User, error)
	Ping(ctx context.Context) error
}

// Handler serves the /users, /login and /healthz routes.
type Handler struct {
	users UserService
	log   *slog.Logger
}

// NewHandler builds a Handler. A nil logger uses slog.Default().
func NewHandler(users UserService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{users: users, log: log}
}

// CreatedResponse is the body of a successful registration.
type CreatedResponse struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Email  string        `json:"email"`
	Status models.Status `json:"status"`
}

// StatusRequest is the body of PATCH /users.
type StatusRequest struct {
	Status models.Status `json:"status"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(c *gin.Context) {
	var in service.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, h.log, badBody(err))
		return
	}
	u, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Status: u.Status,
	})
}

// UpdateStatus handles PATCH /users?id=<id>.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badBody(err))
		return
	}
	if err := h.users.UpdateStatus(c.Request.Context(), c.Query("id"), req.Status); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Updated"})
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badBody(err))
		return
	}
	u, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	if err := h.users.Ping(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func badBody(err error) *apperrors.AppError {
	return apperrors.Wrap(err, apperrors.KindValidation, "Invalid request body").WithDetails(err.Error())
}
