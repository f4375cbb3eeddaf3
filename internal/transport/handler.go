package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/treeline/rollup/internal/engine"
)

// errUnknownMethod maps to the JSON-RPC method-not-found code.
var errUnknownMethod = errors.New("method not found")

// errInvalidParams maps to the JSON-RPC invalid-params code.
var errInvalidParams = errors.New("invalid params")

// Handler dispatches host RPC methods onto the engine. The events.* methods
// are notifications from the host's write path; the query.* methods are
// synchronous reads; queue.run_once is the hook for an external scheduler
// that prefers driving drains itself.
type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewHandler creates an RPC handler over the engine.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

type valueChangedParams struct {
	NodeID     string   `json:"node_id"`
	Properties []string `json:"properties"`
}

type nodeCreatedParams struct {
	NodeID string `json:"node_id"`
}

type nodeDeletedParams struct {
	NodeID   string  `json:"node_id"`
	ParentID *string `json:"parent_id"`
}

type nodeMovedParams struct {
	NodeID      string  `json:"node_id"`
	OldParentID *string `json:"old_parent_id"`
	NewParentID *string `json:"new_parent_id"`
}

type nodeRetypedParams struct {
	NodeID  string `json:"node_id"`
	OldType string `json:"old_type"`
	NewType string `json:"new_type"`
}

type predicateDataChangedParams struct {
	DefinitionIDs []string `json:"definition_ids"`
}

type recomputeParams struct {
	DefinitionID string `json:"definition_id"`
	UserID       string `json:"user_id"`
}

type queryParams struct {
	NodeID       string `json:"node_id"`
	DefinitionID string `json:"definition_id"`
}

type runOnceParams struct {
	BatchSize int `json:"batch_size"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type staleResult struct {
	Stale bool `json:"stale"`
}

type processedResult struct {
	Processed int `json:"processed"`
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var p T
	if len(params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return p, nil
}

// Handle dispatches one RPC method for a resolved tenant.
func (h *Handler) Handle(ctx context.Context, tenantID, method string, params json.RawMessage) (any, error) {
	switch method {
	case "events.value_changed":
		p, err := decodeParams[valueChangedParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" {
			return nil, fmt.Errorf("%w: node_id required", errInvalidParams)
		}
		if err := h.engine.ValueChanged(ctx, tenantID, p.NodeID, p.Properties); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "events.node_created":
		p, err := decodeParams[nodeCreatedParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" {
			return nil, fmt.Errorf("%w: node_id required", errInvalidParams)
		}
		if err := h.engine.NodeCreated(ctx, tenantID, p.NodeID); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "events.node_deleted":
		p, err := decodeParams[nodeDeletedParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" {
			return nil, fmt.Errorf("%w: node_id required", errInvalidParams)
		}
		if err := h.engine.NodeDeleted(ctx, tenantID, p.NodeID, p.ParentID); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "events.node_moved":
		p, err := decodeParams[nodeMovedParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" {
			return nil, fmt.Errorf("%w: node_id required", errInvalidParams)
		}
		if err := h.engine.NodeMoved(ctx, tenantID, p.NodeID, p.OldParentID, p.NewParentID); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "events.node_retyped":
		p, err := decodeParams[nodeRetypedParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" || p.OldType == "" || p.NewType == "" {
			return nil, fmt.Errorf("%w: node_id, old_type and new_type required", errInvalidParams)
		}
		if err := h.engine.NodeRetyped(ctx, tenantID, p.NodeID, p.OldType, p.NewType); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "events.predicate_data_changed":
		p, err := decodeParams[predicateDataChangedParams](params)
		if err != nil {
			return nil, err
		}
		if len(p.DefinitionIDs) == 0 {
			return nil, fmt.Errorf("%w: definition_ids required", errInvalidParams)
		}
		if err := h.engine.PredicateDataChanged(ctx, tenantID, p.DefinitionIDs); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "recompute.request":
		p, err := decodeParams[recomputeParams](params)
		if err != nil {
			return nil, err
		}
		if err := h.engine.RecomputeRequest(ctx, tenantID, p.DefinitionID, p.UserID); err != nil {
			return nil, err
		}
		return okResult{OK: true}, nil

	case "query.value_of":
		p, err := decodeParams[queryParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" || p.DefinitionID == "" {
			return nil, fmt.Errorf("%w: node_id and definition_id required", errInvalidParams)
		}
		return h.engine.ValueOf(ctx, tenantID, p.NodeID, p.DefinitionID)

	case "query.is_stale":
		p, err := decodeParams[queryParams](params)
		if err != nil {
			return nil, err
		}
		if p.NodeID == "" || p.DefinitionID == "" {
			return nil, fmt.Errorf("%w: node_id and definition_id required", errInvalidParams)
		}
		stale, err := h.engine.IsStale(ctx, tenantID, p.NodeID, p.DefinitionID)
		if err != nil {
			return nil, err
		}
		return staleResult{Stale: stale}, nil

	case "queue.run_once":
		p, err := decodeParams[runOnceParams](params)
		if err != nil {
			return nil, err
		}
		if p.BatchSize <= 0 {
			p.BatchSize = 100
		}
		processed, err := h.engine.RunOnce(ctx, p.BatchSize)
		if err != nil {
			return nil, err
		}
		return processedResult{Processed: processed}, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownMethod, method)
	}
}
