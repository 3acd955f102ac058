package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/artifact"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/engine"
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
	"github.com/albertocavalcante/slnsync/internal/log"
)

// Engine is the subset of *engine.Engine the daemon drives.
type Engine interface {
	Root() string
	Initialized() bool
	Initialize(ctx context.Context) error
	Shutdown()
	ForceSync(ctx context.Context) engine.Result
	GenerateAll(ctx context.Context) engine.Result
	NotifyFileChanged(c watch.Change)
	Flush()
	Stats() engine.Stats
}

// Handler handles RPC method calls.
type Handler struct {
	server *Server
	engine Engine

	// opMu serializes operations that change engine lifecycle.
	opMu sync.Mutex
	ctx  context.Context
}

// NewHandler creates a handler driving eng.
func NewHandler(eng Engine) *Handler {
	return &Handler{engine: eng, ctx: context.Background()}
}

// SetEngine sets the engine. Hosts build the handler first so it can be the
// engine's notifier.
func (h *Handler) SetEngine(eng Engine) {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	h.engine = eng
}

// HandleRequest dispatches a request to the appropriate handler.
func (h *Handler) HandleRequest(client *ClientConn, req *Request) *Response {
	logger := log.Component("daemon")
	logger.Debug("handling request", "method", req.Method, "id", req.ID)

	if req.ID == nil {
		// Notifications get no response; only sync/notify is meaningful here.
		if req.Method == MethodNotify {
			h.handleNotify(req)
		}
		return nil
	}

	switch req.Method {
	case MethodPing:
		return h.handlePing(req)
	case MethodShutdown:
		return h.handleShutdown(req)
	}

	if h.engine == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "No engine configured", nil)
	}

	switch req.Method {
	case MethodInitialize:
		return h.handleInitialize(client, req)
	case MethodStop:
		return h.handleStop(req)
	case MethodForceSync:
		return h.handleGenerate(req, true)
	case MethodGenerate:
		return h.handleGenerate(req, false)
	case MethodNotify:
		return h.handleNotify(req)
	case MethodFlush:
		return h.handleFlush(req)
	case MethodStatus:
		return h.handleStatus(req)
	case MethodSubscribe:
		return h.handleSubscribe(client, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func respond(req *Request, result any) *Response {
	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// handlePing handles the ping request.
func (h *Handler) handlePing(req *Request) *Response {
	result := PingResult{Pong: true}
	if h.server != nil {
		result.Version = h.server.cfg.Version
		result.Uptime = h.server.Uptime().String()
		result.StartTime = h.server.startTime.Format(time.RFC3339)
	}
	return respond(req, result)
}

// handleShutdown handles the shutdown request.
func (h *Handler) handleShutdown(req *Request) *Response {
	resp := respond(req, ShutdownResult{Message: "daemon shutting down"})

	// Schedule shutdown after response is sent
	if h.server != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			h.server.RequestShutdown()
		}()
	}
	return resp
}

func (h *Handler) handleInitialize(client *ClientConn, req *Request) *Response {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	result := InitializeResult{Root: h.engine.Root()}
	if h.engine.Initialized() {
		result.Status = "already_initialized"
	} else {
		if err := h.engine.Initialize(h.ctx); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to initialize", err.Error())
		}
		result.Status = "initialized"
		if !h.engine.Initialized() {
			result.Status = "disabled"
		}
		h.leaseChanged()
	}

	if client != nil {
		client.Subscribe()
	}
	return respond(req, result)
}

func (h *Handler) handleStop(req *Request) *Response {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	status := "not_initialized"
	if h.engine.Initialized() {
		status = "stopped"
	}
	h.engine.Shutdown()
	h.leaseChanged()
	return respond(req, StopResult{Status: status})
}

// leaseChanged republishes the lease after an engine lifecycle change.
func (h *Handler) leaseChanged() {
	if h.server != nil {
		h.server.refreshLease()
	}
}

func (h *Handler) handleGenerate(req *Request, force bool) *Response {
	start := time.Now()
	var res engine.Result
	if force {
		res = h.engine.ForceSync(h.ctx)
	} else {
		res = h.engine.GenerateAll(h.ctx)
	}
	return respond(req, toGenerateResult(res, time.Since(start)))
}

func toGenerateResult(res engine.Result, d time.Duration) GenerateResult {
	out := GenerateResult{
		Modules:   res.Modules,
		Written:   res.Written,
		Unchanged: len(res.Unchanged),
		Stale:     res.Stale,
		Duration:  d.Round(time.Millisecond).String(),
	}
	if res.Err == nil {
		return out
	}
	errs := []error{res.Err}
	if joined, ok := res.Err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, err := range errs {
		out.Errors = append(out.Errors, err.Error())
		if we, ok := artifact.IsWriteError(err); ok {
			out.Failed = append(out.Failed, we.Path)
		}
	}
	return out
}

func (h *Handler) handleNotify(req *Request) *Response {
	var params NotifyParams
	if req.Params == nil {
		return invalidParams(req, "missing params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return invalidParams(req, err.Error())
	}
	if params.Path == "" {
		return invalidParams(req, "path is required")
	}
	kind, err := watch.ParseChangeKind(params.Kind)
	if err != nil {
		return invalidParams(req, err.Error())
	}
	if h.engine == nil {
		return nil
	}

	h.engine.NotifyFileChanged(watch.Change{Kind: kind, Path: params.Path, OldPath: params.OldPath})
	if req.ID == nil {
		return nil
	}
	return respond(req, NotifyResult{Pending: h.engine.Stats().Pending})
}

func invalidParams(req *Request, detail string) *Response {
	if req.ID == nil {
		log.Component("daemon").Debug("dropping invalid notification", "method", req.Method, "error", detail)
		return nil
	}
	return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", detail)
}

func (h *Handler) handleFlush(req *Request) *Response {
	h.engine.Flush()
	return respond(req, FlushResult{Status: "flushed"})
}

func (h *Handler) handleStatus(req *Request) *Response {
	return respond(req, h.Status())
}

// Status reports engine state and counters.
func (h *Handler) Status() *StatusResult {
	if h.engine == nil {
		return &StatusResult{}
	}
	s := h.engine.Stats()
	return &StatusResult{
		Initialized:       h.engine.Initialized(),
		Root:              h.engine.Root(),
		Tracked:           s.Tracked,
		Modules:           s.Modules,
		Pending:           s.Pending,
		Flushes:           s.Flushes,
		FullGenerations:   s.FullGenerations,
		DescriptorRenders: s.DescriptorRenders,
		Suppressed:        s.Suppressed,
	}
}

func (h *Handler) handleSubscribe(client *ClientConn, req *Request) *Response {
	if client != nil {
		client.Subscribe()
	}
	return respond(req, SubscribeResult{Subscribed: client != nil})
}

// Stop shuts the engine down.
func (h *Handler) Stop() {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	if h.engine != nil {
		h.engine.Shutdown()
	}
}

// Notify implements engine.Notifier by broadcasting sync/event notifications
// to subscribed clients.
func (h *Handler) Notify(ev engine.Event) {
	params := EventParams{
		Type:      ev.Kind.String(),
		Path:      ev.Path,
		Modules:   ev.Modules,
		Count:     ev.Count,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if ev.Kind == engine.EventChange {
		params.Change = ev.Change.String()
	}
	if ev.Err != nil {
		params.Message = ev.Err.Error()
	}
	h.BroadcastEvent(params)
}

// BroadcastEvent broadcasts an event to all subscribed clients.
func (h *Handler) BroadcastEvent(params EventParams) {
	if h.server == nil {
		return
	}
	notif, err := NewNotification(MethodEvent, params)
	if err != nil {
		return
	}
	h.server.Broadcast(notif)
}
