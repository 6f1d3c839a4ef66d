package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kedaiservis/repair-service/internal/config"
	"github.com/kedaiservis/repair-service/internal/database"
	"github.com/kedaiservis/repair-service/internal/handler"
	"github.com/kedaiservis/repair-service/internal/router"
	"github.com/kedaiservis/repair-service/internal/scheduler"
	"github.com/kedaiservis/repair-service/internal/service"
	"github.com/kedaiservis/repair-service/internal/sop"
	"github.com/kedaiservis/repair-service/internal/wa"
)

// API wires the HTTP server, the conversation engine and the background jobs.
type API struct {
	cfg      *config.Config
	logger   zerolog.Logger
	httpSrv  *http.Server
	reminder *scheduler.ReminderJob
	outbox   *scheduler.OutboxWorker
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("service", "repair-service").
		Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

// classifierConfig applies env keyword overrides onto the built-in sets.
func classifierConfig(cfg *config.Config) sop.ClassifierConfig {
	out := sop.DefaultClassifierConfig()
	if len(cfg.Keywords.Reject) > 0 {
		out.Reject = cfg.Keywords.Reject
	}
	if len(cfg.Keywords.Approve) > 0 {
		out.Approve = cfg.Keywords.Approve
	}
	if len(cfg.Keywords.Pickup) > 0 {
		out.Pickup = cfg.Keywords.Pickup
	}
	if len(cfg.Keywords.Invoice) > 0 {
		out.Invoice = cfg.Keywords.Invoice
	}
	if len(cfg.Keywords.Status) > 0 {
		out.Status = cfg.Keywords.Status
	}
	if len(cfg.Keywords.Support) > 0 {
		out.Support = cfg.Keywords.Support
	}
	return out
}

// NewAPI builds the application for the api mode.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger := newLogger(cfg)

	client := wa.NewClient(cfg.WAGatewayURL, wa.ClientOptions{
		Attempts:  cfg.WASendAttempts,
		BaseDelay: cfg.WASendBaseDelay,
	}, logger)

	formatter := sop.NewFormatter(sop.FormatterConfig{
		MenuFooter:     cfg.MenuFooter,
		CurrencyLocale: cfg.CurrencyLocale,
	})
	classifier := sop.NewClassifier(classifierConfig(cfg))

	messageSvc := service.NewMessageService(db)
	directorySvc := service.NewDirectoryService(db)
	notifier := wa.NewNotifier(client, messageSvc, cfg.DefaultCountryCode, logger)
	ticketSvc := service.NewTicketService(db, notifier, formatter, logger)
	invoiceSvc := service.NewInvoiceService(db)

	engine := sop.NewEngine(classifier, formatter, directorySvc, messageSvc, client,
		sop.Policy{AllowRejectedReapproval: cfg.AllowRejectedReapproval}, logger)

	ticketHandler := handler.NewTicketHandler(ticketSvc, invoiceSvc)
	webhookHandler := handler.NewWebhookHandler(engine, messageSvc, cfg.DefaultCountryCode, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler, webhookHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	app := &API{
		cfg:     cfg,
		logger:  logger,
		httpSrv: httpSrv,
		outbox:  scheduler.NewOutboxWorker(db, client, 30*time.Second, logger),
	}
	if cfg.EnableApprovalReminders {
		app.reminder = scheduler.NewReminderJob(db, cfg.DefaultCountryCode, logger)
	}
	return app, nil
}

// Run starts the HTTP server and background jobs, blocking until ctx is
// cancelled.
func (a *API) Run(ctx context.Context) error {
	a.logger.Info().
		Str("addr", a.httpSrv.Addr).
		Str("env", a.cfg.AppEnv).
		Msg("http server listening")

	if a.reminder != nil {
		if err := a.reminder.Start(ctx, a.cfg.ApprovalReminderCron); err != nil {
			return fmt.Errorf("reminder job: %w", err)
		}
	}
	a.outbox.Start(ctx)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	if a.reminder != nil {
		a.reminder.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
