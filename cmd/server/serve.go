package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/attendance"
	"fleetwatch/tracking/internal/clock"
	"fleetwatch/tracking/internal/config"
	"fleetwatch/tracking/internal/db"
	trackinggrpc "fleetwatch/tracking/internal/grpc"
	internalhttp "fleetwatch/tracking/internal/http"
	"fleetwatch/tracking/internal/logging"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/notify"
	"fleetwatch/tracking/internal/position"
	"fleetwatch/tracking/internal/report"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the internal gRPC query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.RequireServe(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, migrate bool) error {
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()
	store := db.NewStore(pool)
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	var guard position.Guard
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", "error", err)
			}
		}()
		if cfg.PositionMinInterval > 0 {
			guard = position.NewRedisGuard(redisClient, cfg.PositionMinInterval)
		}
	} else if cfg.PositionMinInterval > 0 {
		logger.Warn("POSITION_MIN_INTERVAL ignored without REDIS_ADDR")
	}

	m := metrics.New()
	clk := clock.Real()
	resolver := access.NewResolver(store)
	notifications := notify.NewService(store, resolver, clk, m, logger)
	var notifier attendance.Notifier
	if cfg.AttendanceNotify {
		notifier = notifications
	}
	positions := position.NewService(store, resolver,
		position.WithClock(clk),
		position.WithGuard(guard),
		position.WithMetrics(m),
		position.WithLogger(logger),
		position.WithDefaultLimit(cfg.HistoryDefaultLimit),
	)
	services := internalhttp.Services{
		Resolver:  resolver,
		Positions: positions,
		Attendance: attendance.NewService(store, resolver, notifier, clk, m, logger, attendance.Options{
			UniquePerDay: cfg.AttendanceUnique,
			Location:     loc,
		}),
		Notifications: notifications,
		Reports:       report.NewService(store, clk, loc, m, logger),
	}

	server, err := internalhttp.NewServer(cfg, services, m, logger)
	if err != nil {
		return fmt.Errorf("server init failed: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serviceAuthInterceptor, err := trackinggrpc.NewServiceAuthUnaryInterceptor(cfg.ServiceAuthToken, m, logger)
	if err != nil {
		return fmt.Errorf("grpc service auth init failed: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(serviceAuthInterceptor))
	trackinggrpc.RegisterTrackingQueryServer(grpcServer, trackinggrpc.NewTrackingQueryServer(resolver, positions, logger))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()
	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listen error: %w", err)
			return
		}
		logger.Info("grpc listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	return runErr
}
