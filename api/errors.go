package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/obs"
)

// writeError renders err as the structured error object. Errors outside the
// taxonomy become an opaque InternalError so raw store text never leaks.
func writeError(c *gin.Context, base *slog.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.KindInternal, "Internal Server Error")
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		obs.FromContext(c.Request.Context(), base).Error("request failed",
			"kind", appErr.Kind, "err", appErr)
	}
	c.AbortWithStatusJSON(status, appErr)
}

func methodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"message": "Method Not Allowed"})
}

func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "Not Found"})
}
