package web

import (
	"encoding/json"
	"log"
	"net/http"

	"ledgercore/internal/apperr"
)

// errorResponse is the JSON body written for every non-2xx response.
type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Fields    map[string]any `json:"fields,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// writeError maps err to an HTTP status per §7's exit taxonomy and writes
// the error body. Auth-layer sentinel errors (errUnauthenticated,
// errForbidden) are checked first since they never carry an apperr.Kind.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := string(apperr.Internal)

	switch {
	case err == errUnauthenticated:
		status, code = http.StatusUnauthorized, "UNAUTHENTICATED"
	case err == errForbidden:
		status, code = http.StatusForbidden, "FORBIDDEN"
	default:
		status, code = statusForKind(apperr.KindOf(err))
	}

	if status == http.StatusInternalServerError {
		log.Printf("request_id=%s internal error: %v", requestID(r), err)
	}

	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      code,
		Fields:    apperr.FieldsOf(err),
		RequestID: requestID(r),
	})
}

func statusForKind(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.Validation, apperr.Unbalanced, apperr.Backdated, apperr.InsufficientStock, apperr.InvalidState:
		return http.StatusBadRequest, string(kind)
	case apperr.PeriodClosed:
		return http.StatusForbidden, string(kind)
	case apperr.NotFound:
		return http.StatusNotFound, string(kind)
	case apperr.IdempotencyConflict, apperr.Conflict:
		return http.StatusConflict, string(kind)
	default:
		return http.StatusInternalServerError, string(apperr.Internal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// writeRaw writes an already-marshaled JSON body (the idempotency store's
// response_body, or a command's json.RawMessage result) verbatim.
func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(body) == 0 {
		return
	}
	_, _ = w.Write(body)
}
