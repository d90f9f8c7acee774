// Package api exposes the trading core's operations as a JSON-RPC 2.0
// surface, generalizing the teacher's dispatch-table pattern
// (map[string]Handler, Request/Response/Error envelope, standard JSON-RPC
// error codes) from its swap-protocol method set to the typed operation
// surface this system needs: orders.*, p2p.*, and messages.*. Each handler
// unmarshals typed params and calls exactly one engine method.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/klingon-exchange/tradecore/internal/errs"
	"github.com/klingon-exchange/tradecore/internal/order"
	"github.com/klingon-exchange/tradecore/internal/p2p"
	"github.com/klingon-exchange/tradecore/internal/telemetry"
	"github.com/klingon-exchange/tradecore/pkg/logging"
)

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes, plus an application range for the
// engines' discriminated error kinds.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	codeNotFound  = -32001
	codeConflict  = -32002
	codeTransient = -32003
)

// Server is the HTTP front door: a JSON-RPC POST endpoint plus the
// Prometheus scrape endpoint, on one *http.Server, the way the teacher
// colocates its RPC and WebSocket upgrade paths on one mux.
type Server struct {
	orders  *order.Engine
	p2p     *p2p.Engine
	metrics *telemetry.Metrics
	log     *logging.Logger

	handlers map[string]Handler
	mu       sync.RWMutex

	server   *http.Server
	listener net.Listener
}

// New builds a Server and registers every handler.
func New(orders *order.Engine, p2pEngine *p2p.Engine, metrics *telemetry.Metrics, log *logging.Logger) *Server {
	s := &Server{
		orders:   orders,
		p2p:      p2pEngine,
		metrics:  metrics,
		log:      log.Component("api"),
		handlers: make(map[string]Handler),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.handlers["orders.create"] = s.ordersCreate
	s.handlers["orders.execute"] = s.ordersExecute
	s.handlers["orders.cancel"] = s.ordersCancel
	s.handlers["orders.get"] = s.ordersGet
	s.handlers["orders.list"] = s.ordersList

	s.handlers["p2p.post"] = s.p2pPost
	s.handlers["p2p.take"] = s.p2pTake
	s.handlers["p2p.confirmPayment"] = s.p2pConfirmPayment
	s.handlers["p2p.release"] = s.p2pRelease
	s.handlers["p2p.cancel"] = s.p2pCancel
	s.handlers["p2p.openDispute"] = s.p2pOpenDispute
	s.handlers["p2p.resolve"] = s.p2pResolve
	s.handlers["p2p.listOpen"] = s.p2pListOpen
	s.handlers["p2p.review"] = s.p2pReview

	s.handlers["messages.send"] = s.messagesSend
	s.handlers["messages.list"] = s.messagesList
}

// mux builds the HTTP routing table: the JSON-RPC POST endpoint plus the
// Prometheus scrape endpoint, split out so tests can exercise routing
// without binding a real listener.
func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start binds addr and serves the JSON-RPC endpoint and /metrics.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errs.Wrap(errs.Fatal, "failed to listen on "+addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", "error", err)
		}
	}()

	s.log.Info("api server started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "invalid request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "method not found", req.Method)
		return
	}

	start := time.Now()
	result, err := handler(r.Context(), req.Params)
	s.recordCall(req.Method, r.Method, start, err)

	if err != nil {
		code, message := classifyError(err)
		s.writeError(w, req.ID, code, message, nil)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) recordCall(endpoint, method string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	errType := ""
	if err != nil {
		errType = string(errorKind(err))
	}
	s.metrics.RecordAPICall(endpoint, method, time.Since(start).Seconds(), errType)
	if err == nil {
		s.metrics.RecordUserOperation(endpoint)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id})
}

func errorKind(err error) errs.Kind {
	switch {
	case errs.Is(err, errs.Validation):
		return errs.Validation
	case errs.Is(err, errs.NotFound):
		return errs.NotFound
	case errs.Is(err, errs.Conflict):
		return errs.Conflict
	case errs.Is(err, errs.Transient):
		return errs.Transient
	default:
		return errs.Fatal
	}
}

func classifyError(err error) (int, string) {
	switch errorKind(err) {
	case errs.Validation:
		return InvalidParams, err.Error()
	case errs.NotFound:
		return codeNotFound, err.Error()
	case errs.Conflict:
		return codeConflict, err.Error()
	case errs.Transient:
		return codeTransient, err.Error()
	default:
		return InternalError, err.Error()
	}
}
