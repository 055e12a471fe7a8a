package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/jwt-auth-service/internal/cache"
	"github.com/pribylovaa/jwt-auth-service/internal/config"
	"github.com/pribylovaa/jwt-auth-service/internal/interceptors"
	"github.com/pribylovaa/jwt-auth-service/internal/metrics"
	"github.com/pribylovaa/jwt-auth-service/internal/pkg/log"
	"github.com/pribylovaa/jwt-auth-service/internal/service"
	"github.com/pribylovaa/jwt-auth-service/internal/storage"
	"github.com/pribylovaa/jwt-auth-service/internal/storage/postgres"
	"github.com/pribylovaa/jwt-auth-service/internal/storage/sqlite"
	"github.com/pribylovaa/jwt-auth-service/internal/tracing"
	httpapi "github.com/pribylovaa/jwt-auth-service/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	lg := log.New(cfg.Env, os.Stdout)
	slog.SetDefault(lg)
	lg.Info("starting application", slog.String("env", cfg.Env))

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, lg); err != nil {
		lg.Error("service_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	lg.Info("service_stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Подключение к хранилищу c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	str, err := openStorage(dbCtx, cfg, lg)
	dbCancel()
	if err != nil {
		return err
	}
	defer str.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srvc, err := service.New(str, cfg.JWT, cfg.Auth)
	if err != nil {
		return err
	}
	srvc.SetMetrics(metrics.New(reg))

	if cfg.Redis.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		if err != nil {
			// Кэш необязателен: без него все проверки идут в БД.
			lg.Warn("redis_unavailable", slog.String("err", err.Error()))
		} else {
			defer func() { _ = rc.Close() }()
			srvc.SetRefreshCache(rc)
			lg.Info("redis_connected")
		}
	}
	lg.Info("service_initialized")

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: httpapi.NewRouter(srvc, httpapi.Options{
			Logger:   lg,
			Timeout:  cfg.Timeouts.Service,
			BasePath: cfg.HTTP.BasePath,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           httpapi.NewOpsRouter(str.Ping, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC-сервер: health + reflection.
	grpcMetrics := grpc_prometheus.NewServerMetrics()
	grpcMetrics.EnableHandlingTimeHistogram()
	reg.MustRegister(grpcMetrics)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(lg),
			interceptors.UnaryLoggingInterceptor(lg),
			interceptors.WithTimeout(cfg.Timeouts.Service),
			grpcMetrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			grpcMetrics.StreamServerInterceptor(),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Рефлексия — только в local/dev.
	if cfg.Env == log.EnvLocal || cfg.Env == log.EnvDev {
		reflection.Register(grpcServer)
	}
	grpcMetrics.InitializeMetrics(grpcServer)

	listener, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPC.Addr(), err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http_listen_start", slog.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("ops_listen_start", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("grpc_listen_start", slog.String("addr", cfg.GRPC.Addr()))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	// Фоновая очистка давно истёкших refresh-токенов.
	g.Go(func() error {
		runJanitor(gctx, srvc, lg, cfg.Janitor.Period, cfg.Janitor.Retention)
		return nil
	})

	// Сервис готов.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutdown_requested")

		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			lg.Info("grpc_stopped")
		case <-shutdownCtx.Done():
			lg.Warn("grpc_force_stop")
			grpcServer.Stop()
		}

		_ = apiSrv.Shutdown(shutdownCtx)
		_ = opsSrv.Shutdown(shutdownCtx)

		return nil
	})

	return g.Wait()
}

// openStorage открывает хранилище выбранного драйвера и при необходимости
// применяет миграции.
func openStorage(ctx context.Context, cfg *config.Config, lg *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, cfg.DB.DatabaseURL); err != nil {
				return nil, err
			}
			lg.Info("postgres_migrated")
		}

		str, err := postgres.New(ctx, cfg.DB.DatabaseURL)
		if err != nil {
			return nil, err
		}
		lg.Info("postgres_connected")

		return str, nil
	case config.DriverSQLite:
		str, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}

		if cfg.Storage.Migrate {
			if err := str.Migrate(ctx); err != nil {
				str.Close()
				return nil, err
			}
			lg.Info("sqlite_migrated")
		}
		lg.Info("sqlite_opened", slog.String("path", cfg.SQLite.Path))

		return str, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage.driver %q", config.ErrConfiguration, cfg.Storage.Driver)
	}
}

// purger — операция очистки, которую выполняет janitor.
type purger interface {
	PurgeExpiredTokens(ctx context.Context, retention time.Duration) (int64, error)
}

// runJanitor периодически удаляет refresh-токены, истёкшие более retention
// назад. Блокируется до отмены ctx; period <= 0 отключает очистку.
func runJanitor(ctx context.Context, p purger, lg *slog.Logger, period, retention time.Duration) {
	if period <= 0 {
		return
	}

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.PurgeExpiredTokens(ctx, retention)
			if err != nil {
				lg.Error("refresh_janitor_failed", slog.String("err", err.Error()))
				continue
			}
			if n > 0 {
				lg.Info("refresh_janitor_purged", slog.Int64("deleted", n))
			}
		}
	}
}
