package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Connection routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/connections", handler.GetConnections).Methods("GET")
	api.HandleFunc("/connections", handler.CreateConnection).Methods("POST")
	api.HandleFunc("/connections/{id}/sync", handler.TriggerSync).Methods("POST")

	// Trade routes
	api.HandleFunc("/trades", handler.GetTrades).Methods("GET")
	api.HandleFunc("/trades/{id}/exits", handler.GetTradeExitLevels).Methods("GET")

	// Account stats
	api.HandleFunc("/accounts/{id}/stats", handler.GetAccountStats).Methods("GET")

	return r
}
