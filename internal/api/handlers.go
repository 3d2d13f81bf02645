package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/trade-sync-service/internal/database"
	"github.com/trogers1052/trade-sync-service/internal/models"
	"github.com/trogers1052/trade-sync-service/internal/redis"
	"github.com/trogers1052/trade-sync-service/internal/syncer"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db     *database.DB
	syncer *syncer.Syncer
	redis  *redis.Client
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, s *syncer.Syncer, redisClient *redis.Client) *Handler {
	return &Handler{
		db:     db,
		syncer: s,
		redis:  redisClient,
	}
}

// GetConnections handles GET /connections
func (h *Handler) GetConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.db.GetAllConnections()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, connections)
}

// CreateConnection handles POST /connections
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID  string `json:"account_id"`
		Broker     string `json:"broker"`
		APIBaseURL string `json:"api_base_url"`
		APIKey     string `json:"api_key"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" || req.Broker == "" || req.APIBaseURL == "" {
		http.Error(w, "account_id, broker and api_base_url are required", http.StatusBadRequest)
		return
	}

	conn := &models.Connection{
		AccountID:  req.AccountID,
		Broker:     req.Broker,
		APIBaseURL: req.APIBaseURL,
		APIKey:     req.APIKey,
	}
	if err := h.db.CreateConnection(conn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, conn)
}

// TriggerSync handles POST /connections/{id}/sync. The run executes in the
// background; 409 is returned when one is already in flight.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "invalid connection id", http.StatusBadRequest)
		return
	}

	conn, err := h.db.GetConnectionByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := h.syncer.SyncConnection(ctx, conn); err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				return
			}
			log.Printf("Background sync for connection %d failed: %v", id, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"connection_id": id,
		"status":        "sync started",
	})
}

// GetTrades handles GET /trades?account_id=&limit=
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := h.db.GetTradesByAccount(accountID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, trades)
}

// GetTradeExitLevels handles GET /trades/{id}/exits
func (h *Handler) GetTradeExitLevels(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid trade id", http.StatusBadRequest)
		return
	}

	levels, err := h.db.GetExitLevels(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

// GetAccountStats handles GET /accounts/{id}/stats, serving from the Redis
// cache when possible.
func (h *Handler) GetAccountStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	accountID := vars["id"]

	if h.redis != nil {
		if stats, err := h.redis.GetAccountStats(r.Context(), accountID); err == nil {
			respondJSON(w, http.StatusOK, stats)
			return
		}
	}

	stats, err := h.db.GetAccountStats(accountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  map[string]string{},
	}
	services := health["services"].(map[string]string)
	allHealthy := true

	// Check database
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			services["postgres"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			services["postgres"] = "healthy"
		}
	} else {
		services["postgres"] = "not configured"
		allHealthy = false
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			services["redis"] = "unhealthy: " + err.Error()
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "not configured"
	}

	if !allHealthy {
		health["status"] = "degraded"
	}

	respondJSON(w, http.StatusOK, health)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
