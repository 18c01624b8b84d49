// Package server is the HTTP transport of the resolution service. It is
// stateless: every conversation is rebuilt from the history the caller
// sends with each request.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatform/chatform/internal/audit"
	"github.com/chatform/chatform/internal/config"
	"github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/llm"
	"github.com/chatform/chatform/internal/resolution"
	"github.com/chatform/chatform/internal/rules"
	"github.com/chatform/chatform/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Deps are the services behind the HTTP API. Rules and Model may be nil;
// the endpoints that need them then answer 503.
type Deps struct {
	Rules   *rules.Engine
	Model   llm.ChatModel
	Tools   *tools.Registry
	Audit   audit.Sink
	Options resolution.Options
	Version string
}

// Server serves the resolution API
type Server struct {
	cfg       config.ServerConfig
	deps      Deps
	builder   *resolution.ContextBuilder
	prescreen *resolution.PreScreening
	router    *gin.Engine
	logger    *slog.Logger
}

// New builds the router for cfg
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		builder: resolution.NewContextBuilder(deps.Tools),
		logger:  slog.Default().With("component", "server"),
	}
	if deps.Model != nil {
		s.prescreen = resolution.NewPreScreening(deps.Model, deps.Options.Timeout)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(s.logger), observe(), cors(cfg.CORSOrigins))
	s.routes(r)
	s.router = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/validate", s.handleValidate)
	api.POST("/chat/init", s.handleChatInit)
	api.POST("/chat/message", s.handleChatMessage)
	api.GET("/prescreening/start", s.handlePreScreeningStart)
	api.POST("/prescreening/chat", s.handlePreScreeningChat)
	api.POST("/prescreening/complete", s.handlePreScreeningComplete)
	api.GET("/tools", s.handleTools)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr, "version", s.deps.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.NetworkError(err, "http server failed")
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.NetworkError(err, "http server shutdown")
		}
		return nil
	}
}
