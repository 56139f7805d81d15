// Package main is the entry point for the tenant API server binary.
// It dispatches its subcommands via a switch on os.Args so the full CLI surface is
// readable in one place:
//
//	serve                                  run the HTTP server (default)
//	migrate <up|down>                      apply or roll back schema migrations
//	version                                print the version
//	create-tenant <slug> <name>            create an active tenant
//	issue-key <tenant-slug> [scopes...]    issue a credential and print the API key once
//	revoke-key <public-id>                 permanently revoke a credential
//
// The serve command migrates on startup so a fresh deployment needs no separate step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiz-platform/tenant-api/internal/api"
	"github.com/smallbiz-platform/tenant-api/internal/config"
	"github.com/smallbiz-platform/tenant-api/internal/db"
	"github.com/smallbiz-platform/tenant-api/internal/db/repositories"
	"github.com/smallbiz-platform/tenant-api/internal/services"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
)

const usage = "Available commands: serve, migrate <up|down>, version, create-tenant <slug> <name>, issue-key <tenant-slug> [scopes...], revoke-key <public-id>"

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	if command == "version" {
		fmt.Printf("tenant-api v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate <up|down>")
		}
		return runMigrations(cfg, args[0])
	case "create-tenant":
		if len(args) < 2 {
			return fmt.Errorf("usage: create-tenant <slug> <name>")
		}
		return createTenant(cfg, args[0], strings.Join(args[1:], " "))
	case "issue-key":
		if len(args) < 1 {
			return fmt.Errorf("usage: issue-key <tenant-slug> [scopes...]")
		}
		return issueKey(cfg, args[0], args[1:])
	case "revoke-key":
		if len(args) != 1 {
			return fmt.Errorf("usage: revoke-key <public-id>")
		}
		return revokeKey(cfg, args[0])
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

func connect(cfg *config.Config) (*repositories.TenantRepository, *repositories.CredentialRepository, func(), error) {
	database, err := db.Connect(cfg.Database.Driver, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	x := db.Wrap(database, cfg.Database.Driver)
	return repositories.NewTenantRepository(x), repositories.NewCredentialRepository(x), func() { database.Close() }, nil
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("connecting to database", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "name", cfg.Database.Name)
	database, err := db.Connect(cfg.Database.Driver, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.StartDBStatsCollector(ctx, database, telemetry.DBStatsInterval)

	if err := db.RunMigrations(database, cfg.Database.Driver, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database, cfg.Database.Driver); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	// Metrics live on their own port so the scrape path is never behind the public ingress.
	var metricsSrv *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	var handler http.Handler = router
	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Warn("tracer shutdown", "error", err)
			}
		}()
		handler = telemetry.WrapHandler(router, cfg.Telemetry.ServiceName)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "rate_limit_backend", cfg.RateLimiting.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		bgServices.Shutdown()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.Driver, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, cfg.Database.Driver, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database, cfg.Database.Driver)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

func createTenant(cfg *config.Config, slug, name string) error {
	tenants, creds, closeDB, err := connect(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	svc := services.NewTenantService(tenants, creds, nil, cfg.Auth.KeyPrefix, cfg.Auth.GlobalSalt)
	tenant, err := svc.CreateTenant(context.Background(), slug, name, nil)
	if err != nil {
		return err
	}
	fmt.Printf("tenant %d created (%s)\n", tenant.ID, tenant.Slug)
	return nil
}

func issueKey(cfg *config.Config, slug string, scopes []string) error {
	tenants, creds, closeDB, err := connect(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	svc := services.NewTenantService(tenants, creds, nil, cfg.Auth.KeyPrefix, cfg.Auth.GlobalSalt)
	issued, err := svc.IssueCredentialForSlug(context.Background(), slug, "cli", scopes)
	if err != nil {
		return err
	}

	fmt.Printf("public id: %s\n", issued.PublicID)
	fmt.Printf("scopes:    %s\n", strings.Join(issued.Scopes, ","))
	fmt.Printf("api key:   %s\n", issued.APIKey)
	fmt.Println("The API key is shown once and cannot be recovered.")
	return nil
}

func revokeKey(cfg *config.Config, publicID string) error {
	tenants, creds, closeDB, err := connect(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	// Other processes with a credential cache stop accepting the key within one cache TTL.
	svc := services.NewTenantService(tenants, creds, nil, cfg.Auth.KeyPrefix, cfg.Auth.GlobalSalt)
	switch err := svc.RevokeCredential(context.Background(), publicID); {
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("no credential with public id %s", publicID)
	case errors.Is(err, repositories.ErrAlreadyRevoked):
		fmt.Printf("%s was already revoked\n", publicID)
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("%s revoked\n", publicID)
	return nil
}
