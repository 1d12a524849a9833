package app

import (
	"context"
	"errors"
	"net/http"

	"library_lending/apperr"
)

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrUnauthenticated:
		return http.StatusUnauthorized
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrInvalid:
		return http.StatusBadRequest
	case apperr.ErrDependency:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
