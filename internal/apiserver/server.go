// Package apiserver exposes a small bearer-token-protected HTTP API for
// operators to inspect recent anomalies and tracked symbols, plus an
// unauthenticated liveness check.
package apiserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/store"
)

// Server serves the operator API over bearer-token auth: the Authorization
// header carries either the operator token, compared against its bcrypt
// hash, or a short-lived JWT session token issued by /v1/session (see
// session.go), which lets the dashboard avoid holding the raw operator token.
type Server struct {
	db         *store.Store
	tokenHash  []byte
	jwtSecret  []byte
	log        *logging.Logger
	httpServer *http.Server
}

// New builds a server bound to addr, hashing token once at startup.
func New(addr string, token string, db *store.Store) (*Server, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash operator token: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	s := &Server{db: db, tokenHash: hash, jwtSecret: secret, log: logging.Global()}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/v1/anomalies", s.auth(http.HandlerFunc(s.handleAnomalies)))
	mux.Handle("/v1/symbols", s.auth(http.HandlerFunc(s.handleSymbols)))
	mux.Handle("/v1/session", s.auth(http.HandlerFunc(s.handleSession)))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s, nil
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || (bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) != nil && !s.verifySession(token)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	anomalies, err := s.db.RecentAnomalies(r.Context(), limit)
	if err != nil {
		s.log.Errorf("operator API: recent anomalies query failed", err, nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, anomalies)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	syms, err := s.db.AllSymbols(r.Context())
	if err != nil {
		s.log.Errorf("operator API: symbols query failed", err, nil)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, syms)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
