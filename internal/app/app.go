package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/HarshalJain-cs/Dhandha-sub003/internal/config"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/fingerprint"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/infrastructure"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/license"
	custommw "github.com/HarshalJain-cs/Dhandha-sub003/internal/middleware"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/services"
	transport "github.com/HarshalJain-cs/Dhandha-sub003/internal/transport/http"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application owns the wired components and their lifecycle.
type Application struct {
	Config *config.Config
	Logger *slog.Logger

	OTelProviders *infrastructure.OTelProviders
	Manager       *license.Manager
	Scheduler     *license.Scheduler
	Server        *http.Server

	router chi.Router
}

// NewApplication loads configuration and wires the license engine and
// HTTP surface together.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices constructs the license engine stack.
func (a *Application) initializeServices() error {
	providers, err := infrastructure.InitializeOTel("dhandha", Version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.OTelProviders = providers

	meter := providers.MeterProvider.Meter("dhandha/license")
	metrics, err := license.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	store := license.NewStore(a.Config.License.LicenseFilePath(), a.Logger)
	client := license.NewClient(a.Config.License.AuthorityURL, a.Config.License.RequestTimeout, a.Logger)
	deriver := fingerprint.NewDeriver(a.Logger)

	a.Manager = license.NewManager(store, client, deriver, license.ManagerConfig{
		DefaultGraceDays: a.Config.License.DefaultGraceDays,
		AppVersion:       Version,
		Logger:           a.Logger,
		Metrics:          metrics,
	})
	if err := a.Manager.Load(); err != nil {
		return fmt.Errorf("failed to load license record: %w", err)
	}

	a.Scheduler = license.NewScheduler(a.Manager, a.Config.License.CheckInterval, a.Logger)

	return nil
}

// setupRouter builds the chi router with the middleware chain and API
// routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	gate := custommw.NewLicenseGate(a.Manager, a.Logger)
	r.Use(gate.Handler)

	licenseService := services.NewLicenseService(a.Manager, a.Logger)
	licenseHandler := transport.NewLicenseHandler(licenseService, a.Logger)
	healthHandler := transport.NewHealthHandler(Version)

	activationLimiter := custommw.NewRateLimiter(
		a.Config.License.ActivationRPS,
		a.Config.License.ActivationBurst,
		a.Logger,
	)

	r.Mount("/api/license", licenseHandler.Routes(activationLimiter.Handler))

	r.Get("/healthz", healthHandler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", a.OTelProviders.MetricsHandler())

	a.router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and verification scheduler, then blocks
// until an interrupt or a component failure.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server starting",
			slog.String("addr", a.Server.Addr),
			slog.String("version", Version),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.Logger.Info("application stopped")
	return nil
}

// Stop shuts the server and scheduler down gracefully.
func (a *Application) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.Info("shutting down")

	a.Scheduler.Stop()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		return err
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}

	return nil
}
