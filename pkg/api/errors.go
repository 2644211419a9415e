package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/astromechza/memoboard/pkg/memo"
	"github.com/astromechza/memoboard/pkg/store"
)

const unexpectedErrorMessage = "an unexpected error occurred"

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// classify maps a failure to the status code and message shown to the caller. Only validation,
// not-found and store failures carry their own message out; anything else is reported
// generically.
func classify(err error) (int, string) {
	var validationErr *memo.ValidationError
	var tooLarge *http.MaxBytesError
	var storeErr *store.Error
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("request body must be at most %d bytes", tooLarge.Limit)
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, memo.ErrNotFound):
		return http.StatusNotFound, memo.ErrNotFound.Error()
	case errors.As(err, &storeErr):
		return http.StatusBadRequest, storeErr.Error()
	default:
		return http.StatusInternalServerError, unexpectedErrorMessage
	}
}

// fail renders err through classify. Server side failures are logged with their stack.
func fail(writer http.ResponseWriter, request *http.Request, err error) {
	status, message := classify(err)
	switch {
	case status == http.StatusInternalServerError:
		slog.Error("unexpected failure", "method", request.Method, "url", request.URL, "err", fmt.Sprintf("%+v", err))
	case status != http.StatusNotFound && !errors.Is(err, memo.ErrValidation):
		slog.Error("request failed", "method", request.Method, "url", request.URL, "status", status, "err", fmt.Sprintf("%+v", err))
	}
	writeJSON(writer, status, response{Success: false, Message: message})
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

// recoverPanics turns a panic escaping a handler into the generic 500 response.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic in handler", "method", request.Method, "url", request.URL, "panic", rec, "stack", string(debug.Stack()))
				writeJSON(writer, http.StatusInternalServerError, response{Success: false, Message: unexpectedErrorMessage})
			}
		}()
		next.ServeHTTP(writer, request)
	})
}
