// Package apperr provides the coordinator's error taxonomy.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeValidation marks a malformed or semantically invalid request.
	CodeValidation Code = "VALIDATION"
	// CodeState marks a request that is not allowed in the current session status.
	CodeState Code = "STATE"
	// CodeNotFound marks a missing scene, session or snapshot.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInternal marks storage or infrastructure failures.
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps the code to a transport status for the admin API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
