// Package api is the public HTTP boundary: the alert trigger, the push
// dispatch endpoint and subscription management.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dunapp/water-level-alert/internal/alert"
	"github.com/dunapp/water-level-alert/internal/domain"
)

// AlertRunner runs one alert evaluation.
type AlertRunner interface {
	Run(ctx context.Context, req alert.Request) (alert.Result, error)
}

// PushDispatcher delivers a payload to the category audience or to explicit subscriptions.
type PushDispatcher interface {
	DispatchTo(ctx context.Context, p domain.Payload, ids []string) (domain.Summary, error)
}

// SubscriptionStore manages push endpoint registrations.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Config holds the boundary settings.
type Config struct {
	Addr             string
	AllowedOrigins   []string
	AllowEmptyOrigin bool
	DispatchToken    string // bearer credential for /send-push-notification
	VAPIDPublicKey   string
}

// Server is the public API server.
type Server struct {
	cfg        Config
	runner     AlertRunner
	dispatcher PushDispatcher
	subs       SubscriptionStore
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New constructs a server with routes and middleware. A nil dispatcher leaves
// /send-push-notification unregistered, for deployments that hand delivery to
// a remote dispatcher.
func New(cfg Config, runner AlertRunner, dispatcher PushDispatcher, subs SubscriptionStore, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{
		cfg:        cfg,
		runner:     runner,
		dispatcher: dispatcher,
		subs:       subs,
		logger:     logger,
		engine:     engine,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	guarded := s.engine.Group("/", originGuard(s.cfg.AllowedOrigins, s.cfg.AllowEmptyOrigin))
	guarded.POST("/check-water-level-alert", s.handleCheckAlert)
	guarded.POST("/subscriptions", s.handleSubscribe)
	guarded.DELETE("/subscriptions", s.handleUnsubscribe)

	s.engine.GET("/vapid-public-key", s.handleVAPIDPublicKey)

	if s.dispatcher != nil {
		s.engine.POST("/send-push-notification", bearerAuth(s.cfg.DispatchToken), s.handleSendPush)
	}
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the gin engine, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
