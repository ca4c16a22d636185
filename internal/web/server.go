package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oasisdex/earn-engine/internal/datafetcher"
	"github.com/oasisdex/earn-engine/internal/logger"
	"github.com/oasisdex/earn-engine/internal/service"
	"github.com/oasisdex/earn-engine/internal/state"
	"github.com/oasisdex/earn-engine/internal/strategies"
	"github.com/oasisdex/earn-engine/internal/types"
	"github.com/oasisdex/earn-engine/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the simulation engine over HTTP
type WebServer struct {
	router  *mux.Router
	port    string
	service *service.Service
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, svc *service.Service) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		service: svc,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus metrics
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/simulate", ws.handleSimulate).Methods("POST")
	api.HandleFunc("/simulations", ws.handleGetSimulations).Methods("GET")
	api.HandleFunc("/simulations/{id}", ws.handleGetSimulation).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Router exposes the configured handler, mainly for tests.
func (ws *WebServer) Router() http.Handler {
	return ws.router
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
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

	status := "healthy"
	statusCode := http.StatusOK

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"database":  dbHealthy,
		"memory": map[string]interface{}{
			"alloc_mb":      memStats.Alloc / 1024 / 1024,
			"sys_mb":        memStats.Sys / 1024 / 1024,
			"num_gc":        memStats.NumGC,
			"num_goroutine": runtime.NumGoroutine(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleSimulate runs one simulation and returns the transition with its plan.
func (ws *WebServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req service.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := ws.service.Simulate(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		SimulationMetrics().RecordSimulation(req.Protocol, "error", time.Since(start), nil, 0)
		ws.writeErrorResponse(w, status, err.Error())
		return
	}

	codes := make([]string, 0, len(result.Transition.Warnings))
	for _, warning := range result.Transition.Warnings {
		codes = append(codes, string(warning.Code))
	}

	flashloanUnits := 0.0
	if result.Transition.Flags.RequiresFlashloan {
		loan := result.Transition.Delta.FlashloanAmount
		units, convErr := utils.SDKIntToFloat64(loan.Amount, loan.Token.Decimals)
		if convErr != nil {
			webLogger.Warn().Err(convErr).Msg("Failed to convert flashloan amount for metrics")
		} else {
			flashloanUnits = units
		}
	}
	SimulationMetrics().RecordSimulation(req.Protocol, "success", time.Since(start), codes, flashloanUnits)

	ws.writeJSONResponse(w, http.StatusOK, result)
}

// handleGetSimulations returns recent simulation audit records
func (ws *WebServer) handleGetSimulations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := state.GetRecentSimulations(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to fetch recent simulations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "failed to fetch simulations")
		return
	}

	response := map[string]interface{}{
		"count":       len(records),
		"simulations": records,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSimulation returns a single simulation audit record by ID
func (ws *WebServer) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid simulation ID")
		return
	}

	record, err := state.GetSimulation(id)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "simulation not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetParameters returns the engine parameters currently in use
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.service.Parameters())
}

// statusForError maps domain errors to HTTP status codes. Validation errors
// are the caller's fault; upstream data failures are not.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidRiskRatio),
		errors.Is(err, types.ErrInvalidPrice),
		errors.Is(err, types.ErrInvalidSlippage),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrUnknownProtocol):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnreachableRiskRatio),
		errors.Is(err, types.ErrPrecisionOverflow),
		errors.Is(err, strategies.ErrEmptyTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrInsufficientLiquidity),
		errors.Is(err, datafetcher.ErrMarketNotFound):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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

func (rww *responseWriterWrapper) WriteHeader(statusCode int) {
	rww.statusCode = statusCode
	rww.ResponseWriter.WriteHeader(statusCode)
}
