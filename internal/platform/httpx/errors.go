// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across the HTTP layer. Handlers classify their
// domain errors onto these before calling RespondError.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string { return e.err.Error() }

func (e *classified) Unwrap() []error { return []error{e.class, e.err} }

// Classify attaches a transport class to a domain error. The returned error
// keeps the domain message but also matches the class under errors.Is, which
// is what RespondError switches on.
func Classify(class, err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: err}
}

// RespondError maps classified errors to RFC7807 responses. Unclassified
// errors become opaque 500s.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
