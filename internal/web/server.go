package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openyield/yrv/internal/logger"
	"github.com/openyield/yrv/internal/router"
	"github.com/openyield/yrv/internal/state"
	"github.com/openyield/yrv/internal/token"
	"github.com/openyield/yrv/internal/utils"
	"github.com/openyield/yrv/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes a read-only HTTP view over the vault. All mutating
// operations go through the Go API; nothing here writes state.
type WebServer struct {
	muxRouter *mux.Router
	port      string
	vault     vault.VaultService
	strategy  *router.Router
	shares    *token.ShareToken
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, vaultSvc vault.VaultService, strategy *router.Router, shares *token.ShareToken) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		muxRouter: mux.NewRouter(),
		port:      port,
		vault:     vaultSvc,
		strategy:  strategy,
		shares:    shares,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.muxRouter.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.muxRouter.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/routing", ws.handleGetRouting).Methods("GET")
	api.HandleFunc("/analytics/{asset}", ws.handleGetAnalytics).Methods("GET")
	api.HandleFunc("/operations", ws.handleGetOperations).Methods("GET")

	// Add CORS middleware
	ws.muxRouter.Use(ws.corsMiddleware)
	ws.muxRouter.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.muxRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "yrv-yield-routing-vault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"paused":           ws.vault.Paused(),
			"supported_assets": len(ws.strategy.SupportedAssets()),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns live vault-wide figures: total USD value,
// share supply, share price and the current risk settings.
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUSD, err := ws.vault.TotalVaultUSD(ctx)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute total vault value")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute vault value")
		return
	}

	sharePrice, err := ws.vault.SharePriceUSD(ctx)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute share price")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute share price")
		return
	}

	totalSupply := ws.shares.TotalSupply()

	response := map[string]interface{}{
		"total_vault_usd":  totalUSD.String(),
		"total_shares":     totalSupply.String(),
		"share_price_usd":  sharePrice.String(),
		"paused":           ws.vault.Paused(),
		"max_slippage_bps": ws.vault.MaxSlippageBps(),
		"timestamp":        time.Now().UTC(),
	}

	// Human-readable floats alongside the exact integer strings. Display
	// only; clients doing math must use the string fields.
	if display, err := utils.SDKIntToFloat64(totalUSD, utils.UsdDecimals); err == nil {
		response["total_vault_usd_display"] = display
	}
	if display, err := utils.SDKIntToFloat64(totalSupply, token.Decimals); err == nil {
		response["total_shares_display"] = display
	}
	if display, err := utils.SDKIntToFloat64(sharePrice, token.Decimals); err == nil {
		response["share_price_usd_display"] = display
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRouting returns the full routing table.
func (ws *WebServer) handleGetRouting(w http.ResponseWriter, r *http.Request) {
	entries := ws.strategy.RoutingTable()

	response := map[string]interface{}{
		"routing": entries,
		"count":   len(entries),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetAnalytics returns the computed analytics view for one asset.
func (ws *WebServer) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset := vars["asset"]

	analytics, err := ws.strategy.GetAnalytics(r.Context(), asset)
	if err != nil {
		webLogger.Error().Err(err).Str("asset", asset).Msg("Failed to get analytics")
		ws.writeErrorResponse(w, http.StatusNotFound, "No analytics available for asset")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, analytics)
}

// handleGetOperations returns recent operation receipts, newest first.
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	receipts, err := state.GetRecentReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent operations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
		return
	}

	response := map[string]interface{}{
		"operations": receipts,
		"count":      len(receipts),
		"limit":      limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
