package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks logs server lifecycle events and tool latency. Session teardown is
// forwarded to the registered callbacks so per-session datasets are dropped.
type Hooks struct {
	logger zerolog.Logger
	clock  func() time.Time

	mu       sync.Mutex
	inflight map[string]time.Time
	onEnd    []func(sessionID string)
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger, clock: time.Now, inflight: make(map[string]time.Time)}
}

// OnSessionEnd registers fn to run when a client session unregisters.
func (h *Hooks) OnSessionEnd(fn func(sessionID string)) {
	h.mu.Lock()
	h.onEnd = append(h.onEnd, fn)
	h.mu.Unlock()
}

// SessionStarted records the start of a client session.
func (h *Hooks) SessionStarted(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session registered")
}

// SessionEnded records the end of a client session and runs the callbacks.
func (h *Hooks) SessionEnded(sessionID string) {
	h.logger.Info().Str("session_id", sessionID).Msg("session unregistered")
	h.mu.Lock()
	callbacks := append([]func(string){}, h.onEnd...)
	h.mu.Unlock()
	for _, fn := range callbacks {
		fn(sessionID)
	}
}

// ToolStarted marks the start of a tool call. Request ids are only unique
// within a session, so both identify the call.
func (h *Hooks) ToolStarted(sessionID string, id any) {
	h.mu.Lock()
	h.inflight[callKey(sessionID, id)] = h.clock()
	h.mu.Unlock()
}

// ToolFinished logs the outcome and latency of a tool call.
func (h *Hooks) ToolFinished(sessionID string, id any, tool string, isError bool) {
	start, ok := h.takeStart(sessionID, id)

	evt := h.logger.Info()
	if isError {
		evt = h.logger.Warn()
	}
	evt = evt.Str("tool", tool).Bool("is_error", isError)
	if ok {
		evt = evt.Dur("duration", h.clock().Sub(start))
	}
	evt.Msg("tool call served")
}

// RequestFailed logs a request that ended with a protocol error. A tool call
// failing this way never reaches AfterCallTool, so its start is dropped here.
func (h *Hooks) RequestFailed(sessionID string, id any, method mcp.MCPMethod, err error) {
	evt := h.logger.Error().Str("method", string(method)).Err(err)
	if start, ok := h.takeStart(sessionID, id); ok {
		evt = evt.Dur("duration", h.clock().Sub(start))
	}
	evt.Msg("request error")
}

func (h *Hooks) takeStart(sessionID string, id any) (time.Time, bool) {
	key := callKey(sessionID, id)
	h.mu.Lock()
	defer h.mu.Unlock()
	start, ok := h.inflight[key]
	delete(h.inflight, key)
	return start, ok
}

func callKey(sessionID string, id any) string {
	return sessionID + "/" + fmt.Sprint(id)
}

func sessionOf(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		return cs.SessionID()
	}
	return ""
}

// Server adapts the hooks to mcp-go's server hook registry.
func (h *Hooks) Server() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.SessionStarted(session.SessionID())
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.SessionEnded(session.SessionID())
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		h.ToolStarted(sessionOf(ctx), id)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		h.ToolFinished(sessionOf(ctx), id, req.Params.Name, res != nil && res.IsError)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.RequestFailed(sessionOf(ctx), id, method, err)
	})

	return hooks
}
