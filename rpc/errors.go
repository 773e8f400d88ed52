package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mmerrors "maplemarket/core/errors"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, RequestID: RequestID(r.Context())})
}

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mmerrors.ErrOfferNotFound),
		errors.Is(err, mmerrors.ErrNoContract):
		return http.StatusNotFound
	case errors.Is(err, mmerrors.ErrNotOwner),
		errors.Is(err, mmerrors.ErrNotCreator),
		errors.Is(err, mmerrors.ErrNotAdmin),
		errors.Is(err, mmerrors.ErrNotWhitelisted):
		return http.StatusForbidden
	case errors.Is(err, mmerrors.ErrAlreadyExists),
		errors.Is(err, mmerrors.ErrOfferNotActive),
		errors.Is(err, mmerrors.ErrInvalidNonce):
		return http.StatusConflict
	case errors.Is(err, mmerrors.ErrUnknownMethod),
		errors.Is(err, mmerrors.ErrInvalidSignature),
		errors.Is(err, mmerrors.ErrNotPayable):
		return http.StatusBadRequest
	case mmerrors.Code(err) != mmerrors.CodeUnknown:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		message = http.StatusText(status)
	}
	writeProblem(w, r, status, mmerrors.Code(err), message)
}
