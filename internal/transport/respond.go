package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, tag.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tag.ErrInvalidInput), errors.Is(err, contact.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, contact.ErrInvalidOrExpiredOTP):
		return http.StatusBadRequest, "invalid_or_expired_otp"
	case errors.Is(err, tag.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, tag.ErrAlreadyActivated):
		return http.StatusConflict, "already_activated"
	case errors.Is(err, tag.ErrAlreadyFound):
		return http.StatusConflict, "already_found"
	case errors.Is(err, tag.ErrNotActivated):
		return http.StatusConflict, "not_activated"
	case errors.Is(err, tag.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, tag.ErrStoreTimeout):
		return http.StatusGatewayTimeout, "store_timeout"
	case errors.Is(err, tag.ErrCodeExhausted):
		return http.StatusServiceUnavailable, "code_exhausted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", chimw.GetReqID(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	return nil
}

// decodeOptional is decodeJSON for endpoints whose body may be empty.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := decodeJSON(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func errInvalidParam(name string) error {
	return fmt.Errorf("invalid %s parameter", name)
}
