package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
	"github.com/drblury/crudflow/internal/runtime/logging"
)

// DefaultMaxBodyBytes caps request bodies at 1 MiB.
const DefaultMaxBodyBytes int64 = 1 << 20

// RequestIDHeader carries the id assigned to each request back to the client.
const RequestIDHeader = "X-Request-Id"

// ServerConfig tunes the JSON-RPC endpoint. RateLimit is requests per second
// per client address; zero disables limiting.
type ServerConfig struct {
	MaxBodyBytes int64
	RateLimit    float64
	RateBurst    int
}

// Server exposes a Registry as JSON-RPC 2.0 over HTTP POST. Object params
// become keyword arguments and array params positional ones.
type Server struct {
	registry *Registry
	maxBody  int64
	limiter  *clientLimiter
	log      logging.ServiceLogger
	now      func() time.Time
	newID    func() string
}

func NewServer(registry *Registry, cfg ServerConfig, log logging.ServiceLogger) *Server {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Server{
		registry: registry,
		maxBody:  maxBody,
		limiter:  newClientLimiter(cfg.RateLimit, cfg.RateBurst),
		log:      logging.Component(log, "rpc"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

var nullID = json.RawMessage("null")

// Handler serves POST /rpc and GET /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = jsoncodec.Encode(w, map[string]any{
		"status":     "ok",
		"procedures": len(s.registry.Names()),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.allow(clientKey(r), s.now()) {
		s.writeError(w, nullID, &Error{Code: CodeRateLimited, Message: "rate limit exceeded"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeError(w, nullID, &Error{Code: CodeParseError, Message: "parse error"})
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		s.writeError(w, nullID, &Error{Code: CodeInvalidRequest, Message: "batch requests are not supported"})
		return
	}

	var req request
	if err := jsoncodec.Unmarshal(body, &req); err != nil {
		s.writeError(w, nullID, &Error{Code: CodeParseError, Message: "parse error"})
		return
	}
	id := req.ID
	notification := id == nil
	if notification {
		id = nullID
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(w, id, &Error{Code: CodeInvalidRequest, Message: "invalid request"})
		return
	}
	call, rpcErr := decodeParams(req.Params)
	if rpcErr != nil {
		s.writeError(w, id, rpcErr)
		return
	}

	requestID := s.newID()
	w.Header().Set(RequestIDHeader, requestID)
	ctx := WithRequestID(r.Context(), requestID)
	fields := logging.LogFields{"request_id": requestID, "method": req.Method}

	started := s.now()
	result, err := s.registry.Invoke(ctx, req.Method, call)
	fields["duration_ms"] = s.now().Sub(started).Milliseconds()
	if err != nil {
		s.log.Error("RPC call failed", err, fields)
		if notification {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeError(w, id, ToError(err))
		return
	}
	s.log.Debug("RPC call completed", fields)

	if notification {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	raw, err := jsoncodec.Marshal(result)
	if err != nil {
		s.log.Error("Encoding RPC result failed", err, fields)
		s.writeError(w, id, &Error{Code: CodeInternalError, Message: "internal error"})
		return
	}
	s.write(w, http.StatusOK, response{JSONRPC: "2.0", ID: id, Result: raw})
}

// decodeParams maps params onto a Call: object to kwargs, array to args.
func decodeParams(raw json.RawMessage) (Call, *Error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		return Call{Kwargs: map[string]any{}}, nil
	}
	v, err := jsoncodec.UnmarshalValue(raw)
	if err != nil {
		return Call{}, InvalidParams("invalid params")
	}
	switch p := v.(type) {
	case map[string]any:
		return Call{Kwargs: p}, nil
	case []any:
		return Call{Args: p, Kwargs: map[string]any{}}, nil
	default:
		return Call{}, InvalidParams("params must be an object or an array")
	}
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *Error) {
	s.write(w, httpStatus(rpcErr.Code), response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func (s *Server) write(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, resp); err != nil {
		s.log.Error("Writing RPC response failed", err, nil)
	}
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
