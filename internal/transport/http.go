// Package transport exposes the engine over JSON-RPC 2.0 on HTTP. Hosts
// authenticate with a bearer API key that resolves to a tenant; every method
// is scoped to that tenant.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/treeline/rollup/internal/storage"
)

// RPCHandler dispatches a single tenant-scoped RPC method.
type RPCHandler interface {
	Handle(ctx context.Context, tenantID, method string, params json.RawMessage) (any, error)
}

// Server serves the RPC endpoint.
type Server struct {
	handler RPCHandler
	logger  *slog.Logger
}

// NewServer builds the HTTP router. The health endpoint is unauthenticated;
// everything under /rpc requires a bearer token.
func NewServer(handler RPCHandler, resolver TenantResolver, logger *slog.Logger) *chi.Mux {
	s := &Server{handler: handler, logger: logger}

	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireTenant(resolver))
		r.Post("/rpc", s.handleRPC)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeRequest(r.Body)
	if err != nil {
		WriteError(w, nil, CodeParse, "parse error", err.Error())
		return
	}

	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		WriteError(w, req.ID, CodeInvalidRequest, "no tenant in context", nil)
		return
	}

	result, err := s.handler.Handle(r.Context(), tenantID, req.Method, req.Params)
	if err != nil {
		s.logger.Warn("rpc method failed",
			"method", req.Method,
			"tenant_id", tenantID,
			"error", err)
		switch {
		case errors.Is(err, errUnknownMethod):
			WriteError(w, req.ID, CodeMethodNotFound, "method not found", req.Method)
		case errors.Is(err, errInvalidParams):
			WriteError(w, req.ID, CodeInvalidParams, "invalid params", err.Error())
		case errors.Is(err, storage.ErrNotFound):
			WriteError(w, req.ID, CodeInvalidParams, "not found", err.Error())
		default:
			WriteError(w, req.ID, CodeInternal, "internal error", nil)
		}
		return
	}

	WriteResult(w, req.ID, result)
}
