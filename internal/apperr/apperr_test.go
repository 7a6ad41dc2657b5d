package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: password must be provided", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: client", ErrNotFound), http.StatusNotFound},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrCredentialMismatch, http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrInternalInconsistency, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "error %v", tc.err)
	}
}

func TestPublicMessageHidesInternalDetails(t *testing.T) {
	err := fmt.Errorf("%w: client already bound", ErrInternalInconsistency)
	assert.Equal(t, "internal error", PublicMessage(err))
	assert.Equal(t, "internal error", PublicMessage(errors.New("dial tcp: refused")))

	err = fmt.Errorf("%w: wrong mobile number or password", ErrUnauthorized)
	assert.Equal(t, err.Error(), PublicMessage(err))
}
