package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/auth"
)

// Error codes returned in the code field of error bodies.
const (
	codeRateLimited      = "rate_limited"
	codeMethodNotAllowed = "method_not_allowed"
)

const (
	msgNotFound = "Expense not found"
	msgConflict = "Expense already exists"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Message string             `json:"message"`
	Error   string             `json:"error"`
	Code    string             `json:"code"`
	Rows    []rowErrorResponse `json:"rows,omitempty"`
}

type rowErrorResponse struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err by kind. message describes the failed operation
// and is replaced by "Expense not found" for not-found errors. Only
// validation errors expose their text; conflicts and internal errors are
// logged and answered with a fixed message.
func writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)

	resp := errorResponse{
		Message: message,
		Error:   err.Error(),
		Code:    kind.String(),
	}

	ctx := r.Context()
	switch kind {
	case core.KindNotFound:
		resp.Message = msgNotFound
		resp.Error = msgNotFound
	case core.KindConflict:
		resp.Error = msgConflict
		log.FromContext(ctx).WithComponent(log.ComponentHTTP).WarnContext(ctx, message,
			log.FieldError, err,
			log.FieldUserID, auth.UserID(ctx))
	case core.KindInfrastructure:
		resp.Error = http.StatusText(status)
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, message, err,
			log.ComponentHTTP, r.Method+" "+r.URL.Path,
			log.NewFields().WithErrorKind(kind.String()).WithUser(auth.UserID(ctx)))
	}

	var rowErrs core.RowErrors
	if kind == core.KindValidation && errors.As(err, &rowErrs) {
		resp.Rows = make([]rowErrorResponse, len(rowErrs))
		for i, re := range rowErrs {
			resp.Rows[i] = rowErrorResponse{Row: re.Row, Message: re.Err.Error()}
		}
	}

	writeJSON(w, status, resp)
}

// badRequest wraps err as a validation error.
func badRequest(op string, err error) error {
	return core.E(core.KindValidation, op, err)
}
