// Package server wires every component together and runs the HTTP
// server.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qgenie/ai-server/internal/agent"
	apihttp "github.com/qgenie/ai-server/internal/api/http"
	"github.com/qgenie/ai-server/internal/api/middleware"
	"github.com/qgenie/ai-server/internal/api/ws"
	"github.com/qgenie/ai-server/internal/backend"
	"github.com/qgenie/ai-server/internal/buildinfo"
	"github.com/qgenie/ai-server/internal/domain/session"
	"github.com/qgenie/ai-server/internal/infrastructure/config"
	"github.com/qgenie/ai-server/internal/infrastructure/logging"
	"github.com/qgenie/ai-server/internal/infrastructure/monitoring"
	"github.com/qgenie/ai-server/internal/llm"
	"github.com/qgenie/ai-server/internal/prompt"
	"github.com/qgenie/ai-server/internal/service/annotation"
	"github.com/qgenie/ai-server/internal/service/chat"
	"github.com/qgenie/ai-server/internal/service/database"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router  *gin.Engine
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics

	store   *session.Store
	monitor *backend.Monitor

	httpServer *http.Server
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	logger.Info("initializing server",
		zap.String("version", buildinfo.Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend_url", cfg.Backend.URL),
		zap.String("model", cfg.LLM.Model))

	metrics := monitoring.NewMetrics()

	backendClient := backend.NewClient(backend.Config{
		BaseURL:    cfg.Backend.URL,
		Timeout:    time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Backend.MaxRetries,
	}, logger, metrics)

	var monitor *backend.Monitor
	if cfg.Monitoring.Enabled {
		monitor = backend.NewMonitor(backendClient,
			time.Duration(cfg.Monitoring.IntervalSeconds)*time.Second,
			logger, metrics)
		backendClient.SetMonitor(monitor)
	}

	provider := llm.NewProvider(llm.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, backendClient, logger, metrics)

	prompts, err := prompt.Load(cfg.Prompt.Dir, cfg.Prompt.Version)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	logger.Info("prompts loaded",
		zap.String("version", prompts.Version()),
		zap.Int("templates", len(prompts.Names())))

	store, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	sessions := session.NewManager(store, cfg.Session.MaxHistory, logger, metrics)

	catalog := database.NewService(backendClient, logger)
	graph := agent.New(provider, catalog, prompts, logger, metrics, agent.Options{
		MaxErrors: cfg.Agent.MaxErrors,
	})
	chatService := chat.NewService(graph, sessions, logger)
	annotationService := annotation.NewService(provider, prompts, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(chatService, annotationService, catalog, provider, monitor, sessions, metrics, logger)
	wsHandler := ws.NewHandler(chatService, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health)
		v1.GET("/health/detailed", handlers.HealthDetailed)
		v1.GET("/version", handlers.Version)
		v1.GET("/stats", handlers.Stats)
		v1.POST("/refresh-api-key", handlers.RefreshAPIKey)

		v1.POST("/chat", handlers.Chat)
		v1.GET("/chat/health", handlers.ChatHealth)
		v1.GET("/chat/databases", handlers.ChatDatabases)

		v1.POST("/annotator", handlers.Annotate)
		v1.GET("/annotator/health", handlers.AnnotatorHealth)

		v1.GET("/sessions", handlers.ListSessions)
		v1.GET("/sessions/:id", handlers.GetSession)
		v1.DELETE("/sessions/:id", handlers.DeleteSession)

		v1.GET("/stream", wsHandler.HandleConnection)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("server initialized")

	return &Server{
		router:  router,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		monitor: monitor,
	}, nil
}

// Run binds the listener, announces the chosen port on stdout, and
// serves until ctx is canceled. A configured port of 0 lets the OS pick
// a free one; the launcher reads the announcement line to find it.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	port := listener.Addr().(*net.TCPAddr).Port

	// The launcher parses this exact line; keep format stable.
	fmt.Printf("QGENIE_SERVER_PORT:%d\n", port)

	s.logger.Info("server listening",
		zap.String("host", s.config.Server.Host),
		zap.Int("port", port))

	if s.monitor != nil {
		s.monitor.Start(ctx)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)

	if s.monitor != nil {
		s.monitor.Stop()
	}
	if closeErr := s.store.Close(); closeErr != nil {
		s.logger.Warn("failed to close session store", zap.Error(closeErr))
	}
	s.logger.Sync()

	return err
}
