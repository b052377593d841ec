package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/franckalain/sosscan/internal/capture"
	"github.com/franckalain/sosscan/internal/database"
	"github.com/franckalain/sosscan/internal/metrics"
	"github.com/franckalain/sosscan/internal/pipeline"
	"github.com/franckalain/sosscan/internal/telemetry"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxMessageSize bounds one websocket message; frames arrive base64 encoded
const maxMessageSize = 8 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, this should be more restrictive
	},
}

// Options holds the optional collaborators of a Server
type Options struct {
	Capture        capture.Options
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Reporter       telemetry.Reporter
	Logger         *slog.Logger
	Debug          bool
}

// Server serves the scanner UI over a websocket. Each connection runs its own
// pipeline against the camera of the connected client.
type Server struct {
	db      database.DB
	client  pipeline.Submitter
	store   *capture.Store
	opts    Options
	logger  *slog.Logger
	clients sync.Map // connection id -> *session
	now     func() time.Time
}

func New(db database.DB, client pipeline.Submitter, store *capture.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reporter == nil {
		opts.Reporter = telemetry.NopReporter{}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		db:     db,
		client: client,
		store:  store,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
		now:    time.Now,
	}
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /artifacts/{id}", s.handleArtifact)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port, staticDir string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", port, "static_dir", staticDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not tracked by http.Server
	s.clients.Range(func(_, value any) bool {
		value.(*session).conn.Close()
		return true
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sess := s.newSession(conn)
	s.clients.Store(sess.id, sess)
	defer s.clients.Delete(sess.id)

	sess.run()
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
