// Package server exposes skin analysis over HTTP using the same JSON contract
// the remote backend consumes, so instances can be chained.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/internal/emitter"
	"github.com/menta2k/skin-analyzer/internal/history"
	"github.com/menta2k/skin-analyzer/pkg/analyzer"
	"github.com/menta2k/skin-analyzer/pkg/presenter"
	"github.com/menta2k/skin-analyzer/pkg/types"
)

// Analyzer validates and submits uploaded image bytes; *analysis.Client satisfies it
type Analyzer interface {
	AnalyzeBytes(ctx context.Context, data []byte) (*types.AnalysisResult, error)
	Provider() string
}

// Options holds HTTP settings
type Options struct {
	Port string
	// RateLimit is the number of analyze requests per client per minute; 0 disables limiting
	RateLimit      uint
	IsDevelopment  bool
	MaxUploadBytes int64
	ClientID       string
	ClientSecret   string
}

// Deps are the components the handlers use
type Deps struct {
	Analysis  Analyzer
	Inspector *analyzer.ImageAnalyzer
	Presenter *presenter.Presenter
	History   history.Store
	Publisher emitter.Publisher
}

// Server is the HTTP front end
type Server struct {
	opts   Options
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router
func New(opts Options, deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Analysis == nil {
		return nil, errors.New("server: analysis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Inspector == nil {
		deps.Inspector = analyzer.New()
	}
	if deps.Presenter == nil {
		deps.Presenter = presenter.New()
	}
	if deps.History == nil {
		deps.History = history.NewMemory(history.DefaultMemoryLimit)
	}
	if deps.Publisher == nil {
		deps.Publisher = emitter.Nop{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 * 1024 * 1024
	}
	if opts.Port == "" {
		opts.Port = "8090"
	}

	if !opts.IsDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{opts: opts, deps: deps, logger: logger}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecureHeaders(s.opts.IsDevelopment))

	router.GET("/healthz", s.health)

	api := router.Group("/")
	api.Use(ClientAuth(s.opts.ClientID, s.opts.ClientSecret))
	{
		analyze := []gin.HandlerFunc{s.analyze}
		if s.opts.RateLimit > 0 {
			analyze = append([]gin.HandlerFunc{RateLimit(s.opts.RateLimit)}, analyze...)
		}
		api.POST("/analyze", analyze...)
		api.POST("/quality", s.quality)
		api.GET("/history", s.listHistory)
		api.GET("/history/:id", s.getHistory)
		api.GET("/history/:id/display", s.displayHistory)
	}

	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down server")
	return srv.Shutdown(shutdownCtx)
}
