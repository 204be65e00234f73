package sync

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindlink/application/store"
)

// HTTPServer hosts the WebSocket transport plus health and stats
// endpoints. WebSocket sessions speak the same protocol as TCP ones, one
// JSON record per text frame.
type HTTPServer struct {
	registry  *Registry
	store     *store.DocumentStore
	allocator *store.IdentityAllocator
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	// baseCtx outlives individual upgrade requests; sessions must not die
	// with the HTTP handler's request context.
	baseCtx context.Context
}

// NewHTTPServer creates the HTTP/WebSocket surface. allowedOrigins follows
// the CORS allow-list; "*" disables the origin check.
func NewHTTPServer(ctx context.Context, registry *Registry, docStore *store.DocumentStore, allocator *store.IdentityAllocator, allowedOrigins []string, logger *zap.Logger) *HTTPServer {
	allowAll := false
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	return &HTTPServer{
		registry:  registry,
		store:     docStore,
		allocator: allocator,
		logger:    logger,
		baseCtx:   ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return originSet[r.Header.Get("Origin")]
			},
		},
	}
}

// Routes configures all routes and middleware.
func (h *HTTPServer) Routes(allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.handleHealth)
	router.Get("/metricsz", h.handleStats)
	router.Get("/ws", h.handleWebSocket)

	return router
}

// handleWebSocket upgrades the connection and hands it to a session.
func (h *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	h.logger.Info("websocket client connected", zap.String("remoteAddr", r.RemoteAddr))
	session := NewSession(newWSConn(conn), h.registry, h.store, h.allocator, h.logger)
	go session.Run(h.baseCtx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"mindlink-sync"}`))
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.registry.GetStats()); err != nil {
		h.logger.Error("failed to encode stats", zap.Error(err))
	}
}
