package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakevault/core"
	"stakevault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 30
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

type rateLimiter struct {
	count       int
	windowStart time.Time
}

type Server struct {
	node *core.Node

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
}

// NewServer builds the JSON-RPC surface over a running node. The bearer token
// protecting mutating methods is read from STAKEVAULT_RPC_TOKEN; without it
// every mutating call is rejected.
func NewServer(node *core.Node) *Server {
	token := strings.TrimSpace(os.Getenv("STAKEVAULT_RPC_TOKEN"))
	return &Server{
		node:         node,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    token,
	}
}

// Router assembles the HTTP handler tree: the JSON-RPC endpoint, the websocket
// event stream, health and Prometheus scrape endpoints.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(mux, "stakevault.rpc")
}

func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "component", "rpc", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// rpcResponder remembers the JSON-RPC error code written for a request so the
// dispatch loop can label its metrics.
type rpcResponder struct {
	http.ResponseWriter
	rpcCode int
}

func (r *rpcResponder) setCode(code int) {
	if r.rpcCode == 0 {
		r.rpcCode = code
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if rec, ok := w.(*rpcResponder); ok {
		rec.setCode(code)
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &rpcResponder{ResponseWriter: w}
	w = rec

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	defer func() {
		observability.RPC().Observe(req.Method, rec.rpcCode, time.Since(start))
	}()

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.RPC().RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		if !s.allowSource(clientSource(r), time.Now()) {
			observability.RPC().RecordThrottle("rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "too many requests from source", nil)
			return
		}
	}

	switch req.Method {
	case "vault_initialize":
		s.handleVaultInitialize(w, r, req)
	case "vault_stake":
		s.handleVaultStake(w, r, req)
	case "vault_unstake":
		s.handleVaultUnstake(w, r, req)
	case "vault_claim":
		s.handleVaultClaim(w, r, req)
	case "vault_pause":
		s.handleVaultPause(w, r, req)
	case "vault_unpause":
		s.handleVaultUnpause(w, r, req)
	case "vault_grantRole":
		s.handleVaultGrantRole(w, r, req)
	case "vault_revokeRole":
		s.handleVaultRevokeRole(w, r, req)
	case "vault_proposeUpgrade":
		s.handleVaultProposeUpgrade(w, r, req)
	case "vault_executeUpgrade":
		s.handleVaultExecuteUpgrade(w, r, req)
	case "vault_cancelUpgrade":
		s.handleVaultCancelUpgrade(w, r, req)
	case "vault_lockUpgrades":
		s.handleVaultLockUpgrades(w, r, req)
	case "vault_updateConfig":
		s.handleVaultUpdateConfig(w, r, req)
	case "vault_info":
		s.handleVaultInfo(w, r, req)
	case "vault_userInfo":
		s.handleVaultUserInfo(w, r, req)
	case "vault_users":
		s.handleVaultUsers(w, r, req)
	case "vault_roleOf":
		s.handleVaultRoleOf(w, r, req)
	case "vault_breakerInfo":
		s.handleVaultBreakerInfo(w, r, req)
	case "vault_limitsInfo":
		s.handleVaultLimitsInfo(w, r, req)
	case "vault_pendingUpgrade":
		s.handleVaultPendingUpgrade(w, r, req)
	case "vault_events":
		s.handleVaultEvents(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

// mutatingMethods lists the methods that change vault state and therefore
// require bearer-token authentication and per-source throttling.
var mutatingMethods = map[string]bool{
	"vault_initialize":     true,
	"vault_stake":          true,
	"vault_unstake":        true,
	"vault_claim":          true,
	"vault_pause":          true,
	"vault_unpause":        true,
	"vault_grantRole":      true,
	"vault_revokeRole":     true,
	"vault_proposeUpgrade": true,
	"vault_executeUpgrade": true,
	"vault_cancelUpgrade":  true,
	"vault_lockUpgrades":   true,
	"vault_updateConfig":   true,
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := struct {
		Status       string `json:"status"`
		Initialized  bool   `json:"initialized"`
		LastSequence uint64 `json:"lastSequence"`
	}{Status: "ok"}
	if s.node != nil {
		if _, err := s.node.VaultInfo(); err == nil {
			status.Initialized = true
		}
		if journal := s.node.Journal(); journal != nil {
			status.LastSequence = journal.LastSequence()
		}
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
