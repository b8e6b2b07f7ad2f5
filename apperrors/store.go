package apperrors

import (
	"errors"

	"github.com/Skryldev/findmybuddy/db"
)

// FromStore converts a store error into an AppError. msg describes the
// operation that failed. Errors already in the taxonomy pass through.
func FromStore(err error, msg string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}

	var code string
	var dbe *db.DBError
	if errors.As(err, &dbe) {
		code = dbe.Code
	}

	var e *AppError
	switch {
	case db.IsNotFound(err):
		e = Wrap(err, KindNotFound, msg)
	case db.IsDuplicateKey(err):
		e = Wrap(err, KindConstraint, "Email already registered")
	case db.IsConstraint(err):
		e = Wrap(err, KindConstraint, msg)
	case db.IsTransient(err):
		e = Wrap(err, KindConnectivity, "Database Connection Exception").WithDetails(err.Error())
	default:
		e = Wrap(err, KindInternal, msg)
	}
	return e.WithCode(code)
}
