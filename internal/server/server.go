// Package server provides HTTP server initialization and lifecycle management
// for the Chorus ops API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/chorus-chat/chorus/internal/config"
	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/services"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/web/handlers"
)

// Deps carries the collaborators the ops API exposes. Optional fields may be
// nil; the matching endpoints then degrade (503 or zeroed counters) instead
// of failing at startup.
type Deps struct {
	Entities  *services.EntityService
	Decisions handlers.DecisionEvaluator
	Memories  storage.MemoryStore
	Embedder  llm.EmbeddingGenerator   // optional; vector search answers 503 without it
	Assembler handlers.ContextBuilder  // optional; context preview answers 503 without it
	Queue     handlers.QueueSizeGetter // optional
	Pipeline  handlers.PipelineInfo
	Sweeper   handlers.Sweeper     // optional
	Importer  handlers.DirImporter // optional
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

// Start initializes and starts the ops HTTP server.
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub for wiring pipeline event broadcasts.
// The server shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	// Create WebSocket hub
	wsHub := handlers.NewWebSocketHub(cfg.Server.AllowedOrigins)
	go wsHub.Run()

	// Create rate limiter (10 req/sec, burst of 20)
	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	entityHandler := handlers.NewEntityHandler(deps.Entities)
	decisionHandler := handlers.NewDecisionHandler(deps.Entities, deps.Decisions)
	contextHandler := handlers.NewContextHandler(deps.Entities, deps.Assembler)
	memoryHandler := handlers.NewMemoryHandler(deps.Memories, deps.Embedder)
	statsHandler := handlers.NewStatsHandler(deps.Entities, deps.Queue, deps.Pipeline)
	queueHandler := handlers.NewQueueHandler(deps.Queue, deps.Pipeline.QueueCapacity)
	maintenanceHandler := handlers.NewMaintenanceHandler(deps.Sweeper, deps.Importer, cfg.Personas.Dir)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/entities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entityHandler.ListEntities(w, r)
		case http.MethodPost:
			entityHandler.CreateEntity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entityHandler.GetEntity(w, r)
		case http.MethodPut:
			entityHandler.UpdateEntity(w, r)
		case http.MethodDelete:
			entityHandler.DeleteEntity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/entities/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			entityHandler.SetEntityStatus(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/decisions/dry-run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			decisionHandler.DryRun(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/contexts/preview", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contextHandler.Preview(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/memories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			memoryHandler.ListMemories(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/memories/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			memoryHandler.SearchMemories(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/memories/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			memoryHandler.GetMemory(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/stats", statsHandler.GetStats)
	apiMux.HandleFunc("/api/queue", queueHandler.GetQueue)

	apiMux.HandleFunc("/api/maintenance/retention-sweep", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			maintenanceHandler.RunRetentionSweep(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/maintenance/personas-import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			maintenanceHandler.RunPersonaImport(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Health endpoint — no auth required, used by monitoring
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	// Wrap entire server with rate limiting, then security headers
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	// Create server with security timeouts
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
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

	return actualAddr, wsHub
}
