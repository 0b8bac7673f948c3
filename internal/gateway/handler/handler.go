package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ultraflow/internal/gateway/middleware"
	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/llmclient"
	"ultraflow/internal/pipeline"
)

type Generator interface {
	Generate(ctx context.Context, in flowchart.GenerateInput, opts ...pipeline.RunOption) (pipeline.Result, error)
}

type Catalog interface {
	ModelsForProvider(provider string) ([]llmclient.ModelDescriptor, error)
}

type Handler struct {
	gen      Generator
	catalog  Catalog
	logger   *zap.Logger
	upgrader *websocket.Upgrader
}

func New(gen Generator, catalog Catalog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gen: gen, catalog: catalog, logger: logger, upgrader: newStreamUpgrader(nil)}
}

// RouterDeps are the pieces mounted next to the REST routes.
type RouterDeps struct {
	Metrics        http.Handler
	RPCPath        string
	RPC            http.Handler
	HTTPRecorder   middleware.HTTPRecorder
	AllowedOrigins []string
}

// Router builds the HTTP surface. The websocket route follows the same origin
// policy as CORS.
func (h *Handler) Router(deps RouterDeps) http.Handler {
	h.upgrader = newStreamUpgrader(deps.AllowedOrigins)
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog(h.logger, deps.HTTPRecorder))
	r.Use(middleware.CORS(deps.AllowedOrigins))

	r.Get("/healthz", h.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/flowchart", h.GenerateFlowchart)
		r.Get("/models/{provider}", h.ListModels)
	})
	r.Get("/ws/flowchart", h.StreamFlowchart)
	if deps.RPC != nil && deps.RPCPath != "" {
		r.Mount(deps.RPCPath, deps.RPC)
	}
	return r
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
