package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

// maxBodySize bounds a request body. Deploy calls carry contract bytecode,
// so this is generous.
const maxBodySize = 8 << 20

// MethodHandler is a function that handles a JSON-RPC method call.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// Handler processes JSON-RPC 2.0 requests.
type Handler struct {
	methods map[string]MethodHandler
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewHandler creates a new JSON-RPC handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		methods: make(map[string]MethodHandler),
		logger:  logger,
	}
}

// RegisterMethod registers a method handler.
func (h *Handler) RegisterMethod(name string, handler MethodHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.methods[name] = handler
	h.logger.Debug("registered JSON-RPC method", slog.String("method", name))
}

// RegisteredMethods returns the registered method names in sorted order.
func (h *Handler) RegisteredMethods() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	methods := make([]string, 0, len(h.methods))
	for name := range h.methods {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// ServeHTTP implements http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, nil, ErrInvalidRequest("only POST method is allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		h.logger.Error("failed to read request body", slog.String("error", err.Error()))
		h.writeError(w, nil, ErrInvalidRequest("failed to read request body"))
		return
	}
	defer r.Body.Close()
	if len(body) > maxBodySize {
		h.writeError(w, nil, ErrInvalidRequest("request body too large"))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		h.handleBatchRequest(w, r.Context(), body)
		return
	}
	h.handleSingleRequest(w, r.Context(), body)
}

func (h *Handler) handleSingleRequest(w http.ResponseWriter, ctx context.Context, body []byte) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("failed to parse JSON-RPC request", slog.String("error", err.Error()))
		h.writeError(w, nil, ErrParseError("invalid JSON"))
		return
	}

	resp := h.process(ctx, req)
	if resp.Error != nil {
		h.writeError(w, resp.ID, resp.Error)
		return
	}
	h.writeResult(w, resp.ID, resp.Result)
}

func (h *Handler) handleBatchRequest(w http.ResponseWriter, ctx context.Context, body []byte) {
	var requests []Request
	if err := json.Unmarshal(body, &requests); err != nil {
		h.logger.Error("failed to parse JSON-RPC batch request", slog.String("error", err.Error()))
		h.writeError(w, nil, ErrParseError("invalid JSON"))
		return
	}

	if len(requests) == 0 {
		h.writeError(w, nil, ErrInvalidRequest("batch request cannot be empty"))
		return
	}

	responses := make([]Response, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, h.process(ctx, req))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		h.logger.Error("failed to encode batch response", slog.String("error", err.Error()))
	}
}

func (h *Handler) process(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return Response{JSONRPC: "2.0", Error: ErrInvalidRequest("jsonrpc must be '2.0'"), ID: req.ID}
	}
	result, rpcErr := h.executeMethod(ctx, req.Method, req.Params)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}
	return Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (h *Handler) executeMethod(ctx context.Context, method string, params json.RawMessage) (result interface{}, rpcErr *Error) {
	h.mu.RLock()
	handler, exists := h.methods[method]
	h.mu.RUnlock()

	if !exists {
		h.logger.Warn("method not found", slog.String("method", method))
		return nil, ErrMethodNotFound(method)
	}

	callID := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.ObserveRPC(method, start, rpcErr != nil)
	}()
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("method panicked",
				slog.String("method", method),
				slog.String("call_id", callID),
				slog.String("panic", fmt.Sprint(p)),
			)
			result, rpcErr = nil, ErrInternal("internal error")
		}
	}()

	h.logger.Debug("executing method", slog.String("method", method), slog.String("call_id", callID))

	result, rpcErr = handler(ctx, params)
	if rpcErr != nil {
		h.logger.Error("method execution failed",
			slog.String("method", method),
			slog.String("call_id", callID),
			slog.Int("code", rpcErr.Code),
			slog.String("message", rpcErr.Message),
		)
		return nil, rpcErr
	}
	return result, nil
}

func (h *Handler) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, rpcErr *Error) {
	resp := Response{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")

	// JSON-RPC errors are returned with 200 except for unparseable requests.
	statusCode := http.StatusOK
	if rpcErr.Code == ErrCodeParse || rpcErr.Code == ErrCodeInvalidRequest {
		statusCode = http.StatusBadRequest
	}

	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// HealthHandler returns a simple health check handler.
func (h *Handler) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		n := len(h.methods)
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","methods":%d}`, n)
	}
}
