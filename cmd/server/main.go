package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-sync/internal/adapter/handler"
	"github.com/rl1809/stock-sync/internal/adapter/notify"
	"github.com/rl1809/stock-sync/internal/adapter/storage"
	"github.com/rl1809/stock-sync/internal/config"
	"github.com/rl1809/stock-sync/internal/core/service"
	"github.com/rl1809/stock-sync/internal/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stocksync",
	Short: "Inventory replica sync and alerting server",
	Long: `stocksync keeps an in-memory replica of one owner's inventory in step
with MySQL through a Redis change feed, raises stock and expiry alerts,
and serves the inventory over HTTP.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	f := rootCmd.Flags()
	f.String("config", "", "path to a YAML config file")
	f.String("owner", "", "owner whose inventory is synced")
	f.String("http-addr", "", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address")
	f.String("mysql-dsn", "", "MySQL DSN")
	f.String("redis-addr", "", "Redis address")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.Bool("log-json", false, "emit JSON logs")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	override := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	override("owner", &cfg.OwnerID)
	override("http-addr", &cfg.HTTPAddr)
	override("grpc-addr", &cfg.GRPCAddr)
	override("mysql-dsn", &cfg.MySQL.DSN)
	override("redis-addr", &cfg.Redis.Addr)
	override("log-level", &cfg.Log.Level)
	if f.Changed("log-json") {
		cfg.Log.JSON, _ = f.GetBool("log-json")
	}

	return cfg, cfg.Validate()
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithOwnerID(cfg.OwnerID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info().Msg("connected to mysql")

	mysqlStore := storage.NewMySQLStore(db, log.WithComponent("mysql"))
	if cfg.MySQL.Migrate {
		if err := mysqlStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info().Msg("connected to redis")

	stream := storage.NewRedisEventStream(rdb, cfg.Sync.SubscribeTimeout, log.WithComponent("event_stream"))
	notifications := storage.NewRedisNotifier(rdb, cfg.Redis.NotificationCap)

	session, err := service.NewSession(cfg.Session(), service.SessionDeps{
		Store:    storage.NewPublishingStore(mysqlStore, stream, log.WithComponent("publisher")),
		Stream:   stream,
		Notifier: notify.Fanout{notifications, notify.NewLogNotifier(log.WithComponent("alerts"))},
		Logger:   log.Logger,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	reporter := handler.NewHealthReporter(log.WithComponent("grpc"))
	session.OnConnectionChange(reporter.Observe)

	if err := session.Start(ctx); err != nil {
		// The connection manager keeps retrying; serve what we have.
		logger.Warn().Err(err).Msg("initial change feed connect failed")
	}

	grpcServer := grpc.NewServer()
	reporter.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		session.Stop()
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	httpHandler := handler.NewHTTPHandler(session, notifications, cfg.OwnerID, log.WithComponent("http"))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down...")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown")
	}
	logger.Info().Msg("HTTP server stopped")

	session.Stop()
	reporter.Shutdown()
	grpcServer.GracefulStop()
	logger.Info().Msg("gRPC server stopped")

	return runErr
}
