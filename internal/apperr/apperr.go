// Package apperr defines the error taxonomy shared by the client and
// verification services. Callers wrap these sentinels with fmt.Errorf("%w")
// and classify them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput signals a missing or empty required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound signals that the referenced client or identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCredentialMismatch signals that a mobile number is already bound under a different password.
	ErrCredentialMismatch = errors.New("credential mismatch")

	// ErrUnauthorized covers wrong credentials and wrong challenges alike.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState signals a verification attempt outside the expected lifecycle stage.
	ErrInvalidState = errors.New("invalid state")

	// ErrInternalInconsistency signals a broken data-integrity invariant in the credential store.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrConflict signals a lost creation race on a unique key.
	ErrConflict = errors.New("conflict")
)

// HTTPStatus maps an error onto the status code the transport layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCredentialMismatch),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to hand back to a caller.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInternalInconsistency) || HTTPStatus(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
