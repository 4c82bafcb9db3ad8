// Package server provides HTTP server initialization and lifecycle
// management for the cultivation tracker API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/mycotrack/myco/internal/auth"
	"github.com/mycotrack/myco/internal/config"
	"github.com/mycotrack/myco/internal/homeassistant"
	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
	"github.com/mycotrack/myco/web/handlers"
)

// Stores bundles the storage interfaces the server needs. The SQLite
// backend satisfies all four with one value; the postgres backend wires
// them individually.
type Stores struct {
	Grows    storage.GrowStore
	Teks     storage.TekStore
	Gateways storage.GatewayStore
	Users    storage.UserStore
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// methodRoute dispatches one path by HTTP method.
func methodRoute(routes map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// postOnly restricts a handler to POST.
func postOnly(handler http.HandlerFunc) http.HandlerFunc {
	return methodRoute(map[string]http.HandlerFunc{http.MethodPost: handler})
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with
// port 0) and the WebSocketHub for wiring event broadcasts. The server
// shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, stores Stores) (string, *handlers.WebSocketHub, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("auth setup failed: %w", err)
	}

	origins := []string{
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}
	if cfg.Server.Host != "127.0.0.1" && cfg.Server.Host != "localhost" && cfg.Server.Host != "0.0.0.0" && cfg.Server.Host != "" {
		origins = append(origins, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}

	wsHub := handlers.NewWebSocketHub(origins)
	go wsHub.Run()

	clientFactory := func(gw *types.IoTGateway) handlers.GatewayClient {
		return homeassistant.NewClientWithTimeout(gw, cfg.IoT.RequestTimeout)
	}

	api := handlers.NewAPIHandlers(
		stores.Grows, stores.Teks, stores.Gateways, stores.Users,
		tokens, wsHub, clientFactory,
	)

	mux := http.NewServeMux()

	// Authentication routes sit outside the auth-required prefix.
	mux.HandleFunc("/auth/register", postOnly(api.Register))
	mux.HandleFunc("/auth/login", postOnly(api.Login))
	mux.Handle("/auth/me", handlers.RequireAuth(methodRoute(map[string]http.HandlerFunc{
		http.MethodGet: api.Me,
	}), tokens))

	apiMux := http.NewServeMux()

	apiMux.HandleFunc("/api/grows", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:  api.ListGrows,
		http.MethodPost: api.CreateGrow,
	}))
	apiMux.HandleFunc("/api/grows/{id}", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:    api.GetGrow,
		http.MethodPut:    api.UpdateGrow,
		http.MethodDelete: api.DeleteGrow,
	}))
	apiMux.HandleFunc("/api/grows/{id}/advance", postOnly(api.AdvanceGrow))
	apiMux.HandleFunc("/api/grows/{id}/stages/{stageKey}", methodRoute(map[string]http.HandlerFunc{
		http.MethodPut: api.ReplaceStageData,
	}))
	apiMux.HandleFunc("/api/grows/{id}/flushes", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:  api.ListFlushes,
		http.MethodPost: api.CreateFlush,
	}))
	apiMux.HandleFunc("/api/grows/{id}/flushes/{flushId}", methodRoute(map[string]http.HandlerFunc{
		http.MethodPut:    api.UpdateFlush,
		http.MethodDelete: api.DeleteFlush,
	}))
	apiMux.HandleFunc("/api/grows/{id}/iot-entities", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet: api.GrowEntities,
	}))

	apiMux.HandleFunc("/api/teks", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:  api.ListTeks,
		http.MethodPost: api.CreateTek,
	}))
	apiMux.HandleFunc("/api/teks/{id}", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:    api.GetTek,
		http.MethodPut:    api.UpdateTek,
		http.MethodDelete: api.DeleteTek,
	}))
	apiMux.HandleFunc("/api/teks/{id}/like", postOnly(api.LikeTek))
	apiMux.HandleFunc("/api/teks/{id}/view", postOnly(api.ViewTek))
	apiMux.HandleFunc("/api/teks/{id}/import", postOnly(api.ImportTek))

	apiMux.HandleFunc("/api/iot-gateways", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:  api.ListGateways,
		http.MethodPost: api.CreateGateway,
	}))
	apiMux.HandleFunc("/api/iot-gateways/{id}", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:    api.GetGateway,
		http.MethodPut:    api.UpdateGateway,
		http.MethodDelete: api.DeleteGateway,
	}))
	apiMux.HandleFunc("/api/iot-gateways/{id}/test", postOnly(api.TestGateway))
	apiMux.HandleFunc("/api/iot-gateways/{id}/discover", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet: api.DiscoverEntities,
	}))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet:  api.ListEntities,
		http.MethodPost: api.CreateEntities,
	}))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities/bulk-delete", postOnly(api.DeleteEntities))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities/link", postOnly(api.LinkEntities))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities/unlink", postOnly(api.UnlinkEntities))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities/{entityId}/history", methodRoute(map[string]http.HandlerFunc{
		http.MethodGet: api.EntityHistory,
	}))
	apiMux.HandleFunc("/api/iot-gateways/{id}/entities/{entityId}/command", postOnly(api.EntityCommand))

	// Health endpoint — no auth required, used by monitoring.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Everything else under /api/ requires a valid token.
	mux.Handle("/api/", handlers.RequireAuth(apiMux, tokens))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	var handler http.Handler = mux
	if cfg.Server.RateLimitPerSecond > 0 {
		rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst)
		handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	}
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}
