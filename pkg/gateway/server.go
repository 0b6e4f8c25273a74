// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"qlkube/pkg/authz"
	"qlkube/pkg/graph/schema"
	"qlkube/pkg/metrics"
)

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string
	// Schema is the compiled schema served on / and /subscription.
	Schema graphql.Schema
	// Logger is required.
	Logger *slog.Logger
	// Metrics collectors are optional.
	Metrics *metrics.Gateway
}

// Server serves the GraphQL API: POST / for queries, /subscription for
// graphql-transport-ws, /schema for the SDL and /healthz for probes.
type Server struct {
	addr   string
	logger *slog.Logger
	server *http.Server
}

// NewServer creates the gateway HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		addr:   cfg.Addr,
		logger: cfg.Logger.With("component", "gateway-server"),
	}

	compiled := cfg.Schema
	graphqlHandler := handler.New(&handler.Config{
		Schema: &compiled,
		Pretty: true,
	})
	sdl := schema.Print(compiled)

	mux := http.NewServeMux()
	mux.Handle("/", tokenMiddleware(graphqlHandler))
	mux.HandleFunc("/schema", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(sdl))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/subscription", newWSHandler(compiled, s.logger))

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           observeMiddleware(cfg.Metrics, mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully with a 10 second drain.
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("Starting gateway server", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Gateway server error", "error", err)
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gateway server shutting down", "reason", ctx.Err())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		s.logger.Info("Gateway server stopped")
		return nil

	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// tokenMiddleware moves the Authorization bearer token onto the request
// context, where query resolvers expect it.
func tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r.Header.Get("Authorization")); token != "" {
			r = r.WithContext(authz.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return strings.TrimSpace(header)
}

// observeMiddleware records request durations per endpoint.
func observeMiddleware(m *metrics.Gateway, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket connections live for the subscription lifetime;
		// their duration is not a request latency.
		if r.URL.Path == "/subscription" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		m.RequestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
