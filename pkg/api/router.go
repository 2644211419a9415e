package api

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// NewRouter builds the full HTTP surface: the gateway routes, the push channel at /ws when push
// is non-nil, and request logging, panic recovery and CORS around all of it.
func NewRouter(g *Gateway, push http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	r.Use(recoverPanics)
	r.Use(allowCrossOrigin)

	g.RegisterRoutes(r)
	if push != nil {
		r.Methods(http.MethodGet).Path("/ws").Handler(push)
	}
	r.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})

	r.NotFoundHandler = logRequests(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusNotFound, response{Success: false, Message: "no such route"})
	}))
	r.MethodNotAllowedHandler = logRequests(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusMethodNotAllowed, response{Success: false, Message: "method not allowed"})
	}))
	return r
}

func logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
	})
}

func allowCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Access-Control-Allow-Origin", "*")
		writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
		writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(writer, request)
	})
}
