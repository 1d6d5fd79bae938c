package httpApi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KotFed0t/dividend_tracker/internal/jobQueue"
	"github.com/KotFed0t/dividend_tracker/internal/ledger"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
)

// HTTPError is an error with the status code it is sent with.
type HTTPError struct {
	Code    int                 `json:"-"`
	Message string              `json:"error"`
	Fields  []ledger.FieldError `json:"fields,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

func NewHTTPError(code int, message string) error {
	return &HTTPError{Code: code, Message: message}
}

func BadRequest(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

func Unauthorized(message string) error {
	return NewHTTPError(http.StatusUnauthorized, message)
}

func toHTTPError(err error) *HTTPError {
	var (
		httpErr       *HTTPError
		validationErr *ledger.ValidationError
		maxBytesErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &validationErr):
		return &HTTPError{Code: http.StatusBadRequest, Message: validationErr.Error(), Fields: validationErr.Fields}
	case errors.As(err, &maxBytesErr):
		return &HTTPError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, jobQueue.ErrUnknownJobType):
		return &HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return &HTTPError{Code: http.StatusNotFound, Message: "not found"}
	case errors.Is(err, service.ErrConflict), errors.Is(err, jobQueue.ErrJobAlreadyActive):
		return &HTTPError{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, service.ErrForbidden):
		return &HTTPError{Code: http.StatusForbidden, Message: "forbidden"}
	case errors.Is(err, service.ErrNotConfigured):
		return &HTTPError{Code: http.StatusServiceUnavailable, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Code: http.StatusGatewayTimeout, Message: "request timed out"}
	default:
		return &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httpErr := toHTTPError(err)
	if httpErr.Code >= http.StatusInternalServerError {
		slog.Error(
			"request failed",
			slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
	}
	h.respond(w, r, httpErr, httpErr.Code)
}

func (h *Handler) respond(w http.ResponseWriter, _ *http.Request, data interface{}, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}
