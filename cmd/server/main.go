package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"FOCUS_TRACKER/go-backend/internal/config"
	"FOCUS_TRACKER/go-backend/internal/database"
	"FOCUS_TRACKER/go-backend/internal/handlers"
	"FOCUS_TRACKER/go-backend/internal/services"
)

const version = "1.0.0"

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC health port (overrides GRPC_PORT)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = strings.TrimPrefix(*httpPort, ":")
	}
	if *grpcPort != "" {
		cfg.GRPCPort = strings.TrimPrefix(*grpcPort, ":")
	}

	logger := newLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal(context.Background(), "invalid configuration", slog.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(context.Background(), "server exited", slog.Error(err))
	}
	logger.Info(context.Background(), "goodbye")
}

func newLogger(level string) slog.Logger {
	logger := slog.Make(sloghuman.Sink(os.Stderr))
	switch level {
	case "DEBUG":
		return logger.Leveled(slog.LevelDebug)
	case "WARN":
		return logger.Leveled(slog.LevelWarn)
	case "ERROR":
		return logger.Leveled(slog.LevelError)
	default:
		return logger.Leveled(slog.LevelInfo)
	}
}

func run(ctx context.Context, cfg *config.Config, logger slog.Logger) error {
	logger.Info(ctx, "starting focus tracker server",
		slog.F("version", version),
		slog.F("environment", cfg.Environment),
		slog.F("http_port", cfg.HTTPPort),
		slog.F("grpc_port", cfg.GRPCPort),
		slog.F("db_driver", cfg.DBDriver),
		slog.F("dsn", cfg.DSNForLog()),
	)
	for _, w := range cfg.Warnings() {
		logger.Warn(ctx, w)
	}

	store, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return xerrors.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn(context.Background(), "closing store", slog.Error(err))
		}
	}()

	clock := quartz.NewReal()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	registry := services.NewRegistry(logger, store, metrics, services.RegistryOptions{
		MaxConnections: cfg.MaxConnections,
		SaveTimeout:    cfg.SaveTimeout(),
		Clock:          clock,
	})
	stats := services.NewStatsService(store, clock, time.Local)
	health := services.NewHealthService(logger, store, clock, 15*time.Second)

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(cfg.MaxMessageBytes())),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		}),
	)
	health.Register(grpcServer)

	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: handlers.NewRouter(handlers.RouterOptions{
			API:             handlers.NewAPI(logger, stats, registry, health, clock, version),
			WebSocket:       handlers.NewWebSocketHandler(logger, registry, cfg.MaxMessageBytes(), cfg.CORSOriginList()),
			Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			CORSOrigins:     cfg.CORSOriginList(),
			RateLimitPerMin: cfg.RateLimitPerMin,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return xerrors.Errorf("listen on gRPC port %s: %w", cfg.GRPCPort, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info(ctx, "gRPC health server listening", slog.F("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !xerrors.Is(err, grpc.ErrServerStopped) {
			return xerrors.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		logger.Info(ctx, "HTTP server listening",
			slog.F("websocket", fmt.Sprintf("ws://localhost:%s/ws", cfg.HTTPPort)),
			slog.F("rest", fmt.Sprintf("http://localhost:%s/api", cfg.HTTPPort)))
		if err := httpServer.ListenAndServe(); err != nil && !xerrors.Is(err, http.ErrServerClosed) {
			return xerrors.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return health.Run(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdown(logger, httpServer, grpcServer, health, registry)
		return nil
	})
	return eg.Wait()
}

// shutdown stops accepting work, tells connected clients, and waits for
// sessions finalized by the disconnects to be saved.
func shutdown(logger slog.Logger, httpServer *http.Server, grpcServer *grpc.Server, health *services.HealthService, registry *services.Registry) {
	ctx := context.Background()
	logger.Info(ctx, "shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.Warn(ctx, "HTTP shutdown", slog.Error(err))
	}

	health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info(ctx, "gRPC server stopped")
	case <-time.After(10 * time.Second):
		logger.Warn(ctx, "forcing gRPC shutdown")
		grpcServer.Stop()
	}

	saveCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := registry.Shutdown(saveCtx); err != nil {
		logger.Error(ctx, "pending sessions were not saved", slog.Error(err))
	}
}
