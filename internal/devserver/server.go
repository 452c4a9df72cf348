package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/shinji-kodama/e2e-runner/internal/logging"
	"github.com/shinji-kodama/e2e-runner/internal/model"
	"github.com/shinji-kodama/e2e-runner/internal/port"
)

const stageName = "dev-server"

// Server is a running development server.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
	served   chan struct{}
}

// Option configures Start.
type Option func(*options)

type options struct {
	logger *slog.Logger
	quiet  bool
}

// WithLogger sets the logger for lifecycle messages and, when not quiet,
// one line per request.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithQuiet controls per-request logging. Servers are quiet by default.
func WithQuiet(quiet bool) Option {
	return func(o *options) {
		o.quiet = quiet
	}
}

// Start binds host:port and serves bundle on a background goroutine. It
// returns once the listener is accepting connections. Port 0 picks a free
// port. Failures are KindBind stage errors.
func Start(ctx context.Context, bundle *BundleConfig, host string, listenPort int, opts ...Option) (*Server, error) {
	o := options{logger: logging.NewNop(), quiet: true}
	for _, opt := range opts {
		opt(&o)
	}

	if listenPort != 0 && !port.NewScanner().IsAddrAvailable(host, listenPort, "tcp") {
		return nil, model.NewStageError(model.KindBind, stageName,
			fmt.Errorf("%s is already in use", net.JoinHostPort(host, strconv.Itoa(listenPort))))
	}

	if p := bundle.DevServer.Port; p != 0 && p != listenPort {
		o.logger.Debug("ignoring devServer.port from bundle config", "configured", p, "using", listenPort)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(listenPort)))
	if err != nil {
		return nil, model.NewStageError(model.KindBind, stageName, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(bundle, o.logger, o.quiet),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   o.logger,
		served:   make(chan struct{}),
	}

	go func() {
		defer close(s.served)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server stopped", "error", err)
		}
	}()

	o.logger.Info("dev server listening", "addr", ln.Addr().String(),
		"output", bundle.Output.Path, "public_path", bundle.Output.PublicPath)
	return s, nil
}

// NewHandler builds the router serving bundle.
func NewHandler(bundle *BundleConfig, logger *slog.Logger, quiet bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if !quiet {
		r.Use(requestLogger(logger))
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}).Handler)
	if len(bundle.DevServer.Headers) > 0 {
		r.Use(staticHeaders(bundle.DevServer.Headers))
	}

	h := newAssetHandler(bundle)
	r.Get("/*", h.ServeHTTP)
	r.Head("/*", h.ServeHTTP)
	return r
}

func staticHeaders(headers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL is the base URL clients on this machine use to reach the server.
func (s *Server) URL() string {
	host, p, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return "http://" + s.listener.Addr().String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, p)
}

// Close shuts the server down, waiting for in-flight requests until ctx
// ends.
func (s *Server) Close(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.served
	return err
}
