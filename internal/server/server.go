package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spinwish/internal/auth"
	"spinwish/internal/config"
	"spinwish/internal/logger"
	"spinwish/internal/mockgateway"
	"spinwish/internal/payment"
	"spinwish/internal/request"
	"spinwish/internal/session"

	"github.com/gin-gonic/gin"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	app    *App
	http   *http.Server
}

func New(cfg *config.Config, app *App) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLoggingMiddleware(), MetricsMiddleware(), corsMiddleware())

	sessionHandler := session.NewHandler(app.Sessions)
	requestHandler := request.NewHandler(app.Queue)
	paymentHandler := payment.NewHandler(app.Payments, app.Reconciler)

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	router.POST("/payments/mpesa/callback", RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst), paymentHandler.Callback)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware, RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		protected.GET("/sessions/:id", sessionHandler.GetSession)
		protected.GET("/sessions/:id/queue", requestHandler.ListQueue)
		protected.GET("/sessions/:id/queue/stats", requestHandler.QueueStats)
		protected.POST("/sessions/:id/requests", requestHandler.Submit)
		protected.POST("/sessions/:id/tips", paymentHandler.Tip)
		protected.GET("/requests/:id", requestHandler.GetRequest)
	}

	performer := router.Group("/")
	performer.Use(authMiddleware, auth.RequireRole(auth.RolePerformer))
	{
		performer.POST("/sessions", sessionHandler.CreateSession)
		performer.GET("/me/sessions", sessionHandler.ListMySessions)
		performer.POST("/sessions/:id/start", sessionHandler.StartSession)
		performer.POST("/sessions/:id/pause", sessionHandler.PauseSession)
		performer.POST("/sessions/:id/resume", sessionHandler.ResumeSession)
		performer.POST("/sessions/:id/end", sessionHandler.EndSession)
		performer.PUT("/sessions/:id/accepting", sessionHandler.SetAccepting)
		performer.GET("/sessions/:id/analytics", sessionHandler.GetAnalytics)
		performer.GET("/sessions/:id/payments", paymentHandler.ListSessionPayments)
		performer.POST("/requests/:id/accept", requestHandler.Accept)
		performer.POST("/requests/:id/reject", requestHandler.Reject)
		performer.POST("/requests/:id/play", requestHandler.MarkPlayed)
	}

	admin := router.Group("/payments")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/anomalies", paymentHandler.ListAnomalies)
		admin.POST("/:correlationId/query", paymentHandler.QueryPayment)
	}

	if app.Harness != nil {
		mockgateway.NewHandler(app.Harness).Register(router.Group("/mock-payment"))
	}

	return &Server{
		router: router,
		config: cfg,
		app:    app,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", s.config.Port)
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
