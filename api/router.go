package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the middleware chain and routes. Any method other than
// GET, POST and PATCH on /users answers 405.
func NewRouter(h *Handler, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(RequestID(), Logging(log), Recovery(log), Tracing())

	r.GET("/users", h.ListUsers)
	r.POST("/users", h.CreateUser)
	r.PATCH("/users", h.UpdateStatus)
	r.POST("/login", h.Login)
	r.GET("/healthz", h.Health)

	r.NoMethod(methodNotAllowed)
	r.NoRoute(notFound)
	return r
}
