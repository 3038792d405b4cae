// Package server is the HTTP side of the bridge: the authenticated
// /deliver webhook, the /health probe, and /play sessions for the host.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/buildtall-systems/storebridge/internal/config"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/delivery"
	"github.com/buildtall-systems/storebridge/internal/host"
	"github.com/buildtall-systems/storebridge/internal/queue"
)

const maxBodyBytes = 1 << 20

// PolicySource returns the policy a request runs under.
type PolicySource interface {
	Current() config.Policy
}

// Options wires the server to the rest of the process.
type Options struct {
	Version      string
	Host         *host.Runtime
	Orchestrator *delivery.Orchestrator
	Queue        *queue.Store
	Ledger       *db.DB
	Policy       PolicySource
	Logger       *slog.Logger
}

type Server struct {
	version      string
	host         *host.Runtime
	orchestrator *delivery.Orchestrator
	queue        *queue.Store
	ledger       *db.DB
	policy       PolicySource
	log          *slog.Logger

	schema   *jsonschema.Schema
	upgrader websocket.Upgrader
	srv      *http.Server
}

func New(opts Options) (*Server, error) {
	schema, err := compileDeliverSchema()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		version:      opts.Version,
		host:         opts.Host,
		orchestrator: opts.Orchestrator,
		queue:        opts.Queue,
		ledger:       opts.Ledger,
		policy:       opts.Policy,
		log:          logger,
		schema:       schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		srv: &http.Server{Handler: cors(mux), ReadHeaderTimeout: 10 * time.Second},
	}
	mux.HandleFunc("/deliver", s.handleDeliver)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/play", s.handlePlay)
	return s, nil
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("http server listening", "addr", l.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeError writes {success:false, error:message} with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
