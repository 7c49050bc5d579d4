package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier/studio/internal/config"
	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/events"
	grpcserver "github.com/atelier/studio/internal/grpc"
	"github.com/atelier/studio/internal/metrics"
	"github.com/atelier/studio/internal/repo"
	"github.com/atelier/studio/internal/web"
	"github.com/atelier/studio/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	Version = "0.1.0"
	appName = "atelierd"

	inquiryQueue    = "atelier.inquiries.queue"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags override the matching environment settings when given
type flags struct {
	logLevel string
	migrate  bool
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Jewellery studio catalogue site",
		Long: `atelierd serves the studio's public catalogue: featured pieces,
collections, product pages with image carousels and the contact form.

Configuration is read from the environment (and a .env file outside
production). See STORE_URL, STORE_DRIVER, PORT, GRPC_PORT and RABBITMQ_URL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.Flags().BoolVar(&f.migrate, "migrate", false, "Create or update the store schema before serving; overrides STORE_AUTO_MIGRATE")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch-inquiries",
		Short: "Log every submitted inquiry published on RABBITMQ_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return watchInquiries(cfg)
		},
	})

	return cmd
}

func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if flag := cmd.Flags().Lookup("migrate"); flag != nil && flag.Changed {
		cfg.AutoMigrate = f.migrate
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(cfg *config.Config) error {
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	log.Info("Studio site starting", zap.String("env", cfg.Environment), zap.String("version", Version))

	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}

	log.Info("Connecting to store...", zap.String("driver", cfg.StoreDriver))
	database, err := db.Connect(cfg.StoreDriver, dsn, log)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer database.Close()

	if cfg.AutoMigrate {
		log.Info("Running database migrations...")
		if err := db.RunMigrations(database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	m := metrics.New(cfg.ServiceName)
	catalogRepo := repo.NewCatalogRepository(database, log, m)
	inquiryRepo := repo.NewInquiryRepository(database, log, m)

	notifier := connectNotifier(cfg, log)
	defer notifier.Close()

	site, err := web.New(web.Options{
		Catalog:       catalogRepo,
		Inquiries:     inquiryRepo,
		Notifier:      notifier,
		Studio:        cfg.Studio,
		Log:           log,
		Metrics:       m,
		SecureCookies: cfg.Environment == "production",
	})
	if err != nil {
		return fmt.Errorf("build site: %w", err)
	}

	// gRPC health for orchestrators
	health := grpcserver.NewHealthServer(database, notifier, log)
	grpcServer := grpcserver.NewServer(health, log)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/healthz", healthHandler(database, notifier, m, log))
	httpMux.Handle("/metrics", m.Handler())
	httpMux.Handle("/", site.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      httpMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	// Let in-flight inquiry notifications finish before the notifier closes.
	site.Wait()

	log.Info("Server stopped")
	return nil
}

// connectNotifier dials the broker when one is configured. The site keeps
// serving without notifications if the broker is unreachable at start.
func connectNotifier(cfg *config.Config, log *zap.Logger) events.Notifier {
	if cfg.RabbitMQURL == "" {
		log.Info("RABBITMQ_URL not set, inquiry notifications disabled")
		return events.NoopNotifier{Log: log}
	}

	log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, inquiry notifications disabled", zap.Error(err))
		return events.NoopNotifier{Log: log}
	}
	return publisher
}

func watchInquiries(cfg *config.Config) error {
	log := logger.NewLogger(cfg.ServiceName+"-watcher", cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required to watch inquiries")
	}

	consumer, err := events.NewConsumer(cfg.RabbitMQURL, inquiryQueue, events.LogInquiry(log), log)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return consumer.Start(ctx)
}

// healthHandler reports the site healthy while the store answers. A broker
// outage only degrades notifications, so it is logged and exported on
// /metrics instead of failing the check.
func healthHandler(store grpcserver.Pinger, broker grpcserver.BrokerHealth, m *metrics.Metrics, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(); err != nil {
			log.Error("Store health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: store connection failed"))
			return
		}

		brokerUp := broker.IsHealthy()
		m.BrokerUp(brokerUp)
		if !brokerUp {
			log.Warn("RabbitMQ health check failed, inquiry notifications degraded")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("healthy: notifications degraded"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	}
}
