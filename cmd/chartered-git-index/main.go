package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chartered-rs/chartered-git-index/internal/config"
	"github.com/chartered-rs/chartered-git-index/internal/database"
	"github.com/chartered-rs/chartered-git-index/internal/fetch"
	"github.com/chartered-rs/chartered-git-index/internal/sshfront"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: chartered-git-index <command>\n\nCommands:\n  serve    Start the SSH smart-protocol server\n  migrate  Run database migrations\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "migrate":
		cmdMigrate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracing, err := initTracing(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := sshfront.NewMetrics(reg)

	authTimeout, negotiateTimeout, requestTimeout := parseTimeouts(cfg)

	srv, err := sshfront.NewServer(cfg.Addr(), cfg.Server.HostKeyPath, &sshfront.Server{
		DB: db,
		Config: fetch.RegistryConfig{
			DownloadURLTemplate: cfg.Registry.DownloadURLTemplate,
			APIBaseURL:          cfg.Registry.APIBaseURL,
			MaxIndexBytes:       cfg.Registry.MaxIndexBytes,
		},
		Now:              time.Now,
		Logger:           logger,
		AuthTimeout:      authTimeout,
		NegotiateTimeout: negotiateTimeout,
		RequestTimeout:   requestTimeout,
		Metrics:          metrics,
	})
	if err != nil {
		log.Fatalf("build ssh server: %v", err)
	}

	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics listen: %v", err)
		}
	}()

	go func() {
		logger.Info("chartered-git-index listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Close()
	metricsServer.Shutdown(ctx)
}

func cmdMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("migrations complete")
}

func openDB(cfg *config.Config) (database.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return database.OpenSQLite(cfg.Database.DSN)
	case "postgres":
		return database.OpenPostgres(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func parseTimeouts(cfg *config.Config) (auth, negotiate, request time.Duration) {
	auth = parseDurationOr(cfg.Server.AuthTimeout, 10*time.Second)
	negotiate = parseDurationOr(cfg.Server.NegotiateTimeout, 10*time.Second)
	request = parseDurationOr(cfg.Server.RequestTimeout, 30*time.Second)
	return
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
