package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"library_lending/apperr"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("order", "o1"), http.StatusNotFound},
		{fmt.Errorf("token: %w", apperr.ErrUnauthenticated), http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{apperr.Conflict("already returned"), http.StatusConflict},
		{apperr.Invalid("no books"), http.StatusBadRequest},
		{apperr.Dependency("save order", errors.New("conn reset")), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}
