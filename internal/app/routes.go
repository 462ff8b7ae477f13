package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/handlers"
	"traffic-duplicator/internal/middleware"
)

// HealthPath is reserved by the host and never duplicated
const HealthPath = "/_dup/health"

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers) {
	router.Use(middleware.AccessLog(logging.GetGlobalLogger().WithFields(logging.String("component", "http"))))

	router.HandleFunc(HealthPath, h.HealthCheck).Methods("GET")
	router.HandleFunc(HealthPath, healthMethodNotAllowed)

	// Everything else is answered and duplicated
	router.PathPrefix("/").HandlerFunc(h.Duplicate)
}

// healthMethodNotAllowed keeps the reserved path away from the catch-all
func healthMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
