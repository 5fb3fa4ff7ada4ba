package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/crossroads/go/internal/apperr"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == apperr.CodeInternal {
		log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, code.HTTPStatus(), ErrorResponse{Code: code, Message: msg})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}
