// Package grpc is a small JSON-over-TCP RPC layer used by gazctl and other
// in-cluster callers of the lookup service.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Each
// request carries a method name ("Service.Method"), a caller-chosen ID and
// raw JSON params; the response echoes the ID with data or an error string.
//
//	s := grpc.NewServer()
//	s.Register("GazetteerService.LookupGlobal", handler)
//	go s.Serve(":9000")
//
//	c, _ := grpc.Dial(ctx, "localhost:9000")
//	var resp LookupResponse
//	c.Call(ctx, "GazetteerService.LookupGlobal", req, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

// HandlerFunc processes one call. ctx carries the request ID.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Request struct {
	Method    string          `json:"method"`
	ID        string          `json:"id"`
	RequestID string          `json:"request_id,omitempty"`
	Params    json.RawMessage `json:"params"`
}

type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type Server struct {
	handlers    map[string]HandlerFunc
	listener    net.Listener
	callTimeout time.Duration
	logger      *slog.Logger
	mu          sync.RWMutex
	wg          sync.WaitGroup
	done        chan struct{}
	stopOnce    sync.Once
}

type ServerOption func(*Server)

// WithCallTimeout bounds each handler invocation.
func WithCallTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.callTimeout = d }
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Serve listens on addr and blocks until Stop.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln until Stop.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := logger.WithRequestID(context.Background(), requestID)
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	data, err := handler(ctx, req.Params)
	if err != nil {
		logger.FromContext(ctx).Warn("rpc call failed", "method", req.Method, "error", err)
		resp.Error = err.Error()
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("encoding response: %v", err)
		return resp
	}
	resp.Data = raw
	return resp
}

// Stop closes the listener and waits for open connections to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.RLock()
		ln := s.listener
		s.mu.RUnlock()
		if ln != nil {
			ln.Close()
		}
		s.wg.Wait()
		s.logger.Info("rpc server stopped")
	})
}
