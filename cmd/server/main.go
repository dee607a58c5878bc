// Package main provides the derivation service: an HTTP API that runs
// confidential derivation sessions against the compute cluster, persists
// verified receipts, and serves receipt lookups.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"evalys-gmpc/internal/api"
	"evalys-gmpc/internal/cipher"
	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/mxe"
	"evalys-gmpc/internal/mxe/stub"
	"evalys-gmpc/internal/observability"
	"evalys-gmpc/internal/orchestrator"
	"evalys-gmpc/internal/storage"
	chstore "evalys-gmpc/internal/storage/clickhouse"
	"evalys-gmpc/internal/storage/memory"
	"evalys-gmpc/internal/storage/migrations"
	pgstore "evalys-gmpc/internal/storage/postgres"
	"evalys-gmpc/internal/verification"
)

// Server holds the service components.
type Server struct {
	orch         *orchestrator.Orchestrator
	receiptStore storage.ReceiptStore
	auditStore   storage.SessionAuditStore
	logger       *log.Logger

	mu       sync.Mutex
	started  time.Time
	sessions int
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	gatewayEndpoint := flag.String("gateway-endpoint", os.Getenv("EVALYS_GATEWAY_ENDPOINT"), "Cluster gateway JSON-RPC endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("EVALYS_WS_ENDPOINT"), "Cluster gateway WebSocket endpoint (optional)")
	sharedKeyHex := flag.String("shared-key", os.Getenv("EVALYS_SHARED_KEY"), "Hex-encoded 32-byte shared secret with the cluster")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	useStub := flag.Bool("use-stub", false, "Run against an in-process cluster instead of a gateway")
	listenAddr := flag.String("listen-addr", ":8080", "API HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	deadline := flag.Duration("session-deadline", 2*time.Minute, "Per-session completion deadline")
	pollInterval := flag.Duration("poll-interval", 500*time.Millisecond, "Initial status poll interval")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useStub && *gatewayEndpoint == "" {
		logger.Fatal("--gateway-endpoint is required (use --use-stub for an in-process cluster)")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sharedKey, err := resolveSharedKey(*sharedKeyHex, *useStub)
	if err != nil {
		logger.Fatalf("Shared key: %v", err)
	}

	receiptStore, auditStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	client, watcher, clientCleanup, err := createClient(ctx, *useStub, *gatewayEndpoint, *wsEndpoint, sharedKey, logger)
	if err != nil {
		logger.Fatalf("Failed to create compute client: %v", err)
	}
	defer clientCleanup()

	orchOpts := orchestrator.Options{
		Client:       client,
		SharedKey:    sharedKey,
		ReceiptStore: receiptStore,
		AuditStore:   auditStore,
		Config: orchestrator.Config{
			PollInterval:      *pollInterval,
			MaxPollInterval:   5 * time.Second,
			BackoffMultiplier: 2.0,
			Deadline:          *deadline,
		},
		Logger:  logger,
		Verbose: true,
	}
	if watcher != nil {
		// A typed nil inside the interface would defeat the watcher check.
		orchOpts.Watcher = watcher
	}
	orch, err := orchestrator.New(ctx, orchOpts)
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v", err)
	}

	server := &Server{
		orch:         orch,
		receiptStore: receiptStore,
		auditStore:   auditStore,
		logger:       logger,
		started:      time.Now(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go server.startMetricsServer(*metricsAddr)

	apiServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}
	go func() {
		logger.Printf("API listening on %s", *listenAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("API server error: %v", err)
		}
	}()

	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API shutdown: %v", err)
	}

	logger.Println("Shutdown complete")
}

// resolveSharedKey parses the configured key, or generates one for stub runs.
func resolveSharedKey(keyHex string, useStub bool) (cipher.Key, error) {
	if keyHex == "" {
		if useStub {
			return cipher.NewKey()
		}
		return cipher.Key{}, errors.New("--shared-key is required")
	}

	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return cipher.Key{}, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != cipher.KeySize {
		return cipher.Key{}, fmt.Errorf("key is %d bytes, want %d", len(raw), cipher.KeySize)
	}
	var key cipher.Key
	copy(key[:], raw)
	return key, nil
}

// createStores creates the receipt and audit stores, running migrations for
// the durable backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.ReceiptStore, storage.SessionAuditStore, func(), error) {
	if useMemory {
		return memory.NewReceiptStore(), memory.NewSessionAuditStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewReceiptStore(pool), chstore.NewSessionAuditStore(chConn), cleanup, nil
}

// createClient builds the compute client: either the gateway HTTP client
// (optionally with a WebSocket watcher) or the in-process stub cluster.
func createClient(ctx context.Context, useStub bool, gatewayEndpoint, wsEndpoint string, key cipher.Key, logger *log.Logger) (mxe.ComputeClient, *mxe.WSWatcher, func(), error) {
	if useStub {
		cluster, err := stub.NewCluster(key, func() int64 { return time.Now().Unix() })
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Println("Running against in-process stub cluster")
		return cluster, nil, func() {}, nil
	}

	client := mxe.NewHTTPClient(gatewayEndpoint)

	var watcher *mxe.WSWatcher
	if wsEndpoint != "" {
		w, err := mxe.NewWSWatcher(ctx, wsEndpoint, nil)
		if err != nil {
			// Degrade to polling rather than refusing to start.
			logger.Printf("WebSocket watcher unavailable, polling only: %v", err)
		} else {
			watcher = w
		}
	}

	cleanup := func() {
		if watcher != nil {
			watcher.Close()
		}
	}
	return client, watcher, cleanup, nil
}

// routes builds the API mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleSession)
	mux.HandleFunc("GET /v1/receipts/{computationID}", s.handleReceipt)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// handleSession runs one derivation session end to end.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req api.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.orch.Run(r.Context(), in)
	if err != nil {
		s.logger.Printf("session failed: %v", err)
		writeError(w, sessionErrorStatus(err), err)
		return
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	resp := api.SessionResponse{
		SessionID:     result.SessionID,
		ComputationID: result.ComputationID,
		Plan:          api.PlanToJSON(result.Plan),
		Receipt:       api.ReceiptToJSON(&result.Receipt),
		Polls:         result.Polls,
		DurationMs:    result.FinishedAt.Sub(result.SubmittedAt).Milliseconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReceipt serves a stored receipt by computation id.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	computationID := r.PathValue("computationID")
	receipt, err := s.receiptStore.GetByComputationID(r.Context(), computationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("no receipt for computation %s", computationID))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ReceiptToJSON(receipt))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   "running",
		Uptime:   time.Since(s.started).String(),
		Sessions: s.sessions,
	})
}

// startMetricsServer serves Prometheus metrics and liveness.
func (s *Server) startMetricsServer(addr string) {
	go func() {
		for range time.Tick(time.Second) {
			observability.DefaultMetrics.UptimeSeconds.Inc()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.logger.Printf("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("Metrics server error: %v", err)
	}
}

// sessionErrorStatus maps session failures to HTTP statuses.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, mxe.ErrSubmissionRejected):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, verification.ErrComputationFailed):
		return http.StatusBadGateway
	case errors.Is(err, verification.ErrResultTampered),
		errors.Is(err, verification.ErrInvalidSignature),
		errors.Is(err, verification.ErrReceiptIDMismatch),
		errors.Is(err, verification.ErrComputationMismatch),
		errors.Is(err, verification.ErrStaleOrFutureReceipt),
		errors.Is(err, orchestrator.ErrReceiptReplayed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
