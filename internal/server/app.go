package server

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"spinwish/internal/config"
	"spinwish/internal/logger"
	"spinwish/internal/mockgateway"
	"spinwish/internal/payment"
	"spinwish/internal/request"
	"spinwish/internal/session"
)

// App holds the assembled domain services.
type App struct {
	Sessions   *session.Manager
	Queue      *request.Queue
	Payments   *payment.Service
	Reconciler *payment.Reconciler
	Sweeper    *payment.Sweeper
	Harness    *mockgateway.Harness
}

// Options override pieces of the default wiring.
type Options struct {
	// DB backs the repositories. Nil selects the in-memory stores.
	DB        *sqlx.DB
	Alerter   payment.Alerter
	Scheduler mockgateway.Scheduler
	Retry     *payment.RetryPolicy
}

func NewApp(cfg *config.Config, opts Options) *App {
	var (
		sessionRepo session.Repository
		requestRepo request.Repository
		paymentRepo payment.SessionRepository
		recordRepo  payment.RecordRepository
	)
	if opts.DB != nil {
		sessionRepo = session.NewRepository(opts.DB)
		requestRepo = request.NewRepository(opts.DB)
		paymentRepo = payment.NewSessionRepository(opts.DB)
		recordRepo = payment.NewRecordRepository(opts.DB)
	} else {
		sessionRepo = session.NewMemoryRepository()
		requestRepo = request.NewMemoryRepository()
		paymentRepo = payment.NewMemorySessionRepository()
		recordRepo = payment.NewMemoryRecordRepository()
	}

	var (
		gateway payment.Gateway
		harness *mockgateway.Harness
	)
	if cfg.Mock.Enabled {
		harness = mockgateway.New(cfg.Mock, opts.Scheduler)
		gateway = harness
		logger.Warn("mock payment gateway enabled", "auto_process", cfg.Mock.AutoProcess, "success_rate", cfg.Mock.SuccessRate)
	} else {
		gateway = payment.NewDarajaClient(cfg.Mpesa, &http.Client{Timeout: 30 * time.Second})
	}

	manager := session.NewManager(sessionRepo)
	payments := payment.NewService(gateway, paymentRepo, manager, opts.Retry, cfg.PaymentExpiry)
	queue := request.NewQueue(requestRepo, manager, payments)
	reconciler := payment.NewReconciler(paymentRepo, recordRepo, queue, manager, gateway, opts.Alerter)
	if harness != nil {
		harness.SetSink(reconciler)
	}

	return &App{
		Sessions:   manager,
		Queue:      queue,
		Payments:   payments,
		Reconciler: reconciler,
		Sweeper:    payment.NewSweeper(reconciler, paymentRepo, cfg.PaymentQueryTimeout, cfg.PaymentRetention),
		Harness:    harness,
	}
}
