// Package app assembles the process-level dependencies shared by every
// service binary: logger, tracing, metrics, state store and event bus.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/order-saga/internal/auth"
	"github.com/example/order-saga/internal/config"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/infrastructure/store"
	"github.com/example/order-saga/internal/notification"
	"github.com/example/order-saga/internal/observability"
)

const (
	shutdownTimeout = 5 * time.Second
	// tokenExpiry applies to operator tokens minted by this process.
	tokenExpiry = 15 * time.Minute
	// notificationSequence names the store-backed notification id counter.
	notificationSequence = "notifications"
)

type Runtime struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Store   store.StateStore
	Bus     Bus

	closers []func(context.Context) error
}

// New builds a Runtime from cfg. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	logger, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint, cfg.OTLPInsecure)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	rt.closers = append(rt.closers, shutdownTracing)

	rt.Store, err = rt.openStore(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.Bus = rt.openBus()
	rt.closers = append(rt.closers, func(context.Context) error { return rt.Bus.Close() })

	logger.Info("runtime ready",
		zap.String("state_store", cfg.StateStore),
		zap.String("event_bus", cfg.EventBus))
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (store.StateStore, error) {
	cfg := rt.Config
	switch cfg.StateStore {
	case "memory":
		return store.NewMemoryStore(), nil

	case "redis":
		client, err := store.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		return store.NewRedisStore(client), nil

	case "postgres":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		s := store.NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to create state table: %w", err)
		}
		return s, nil

	case "dynamodb":
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamodb client: %w", err)
		}
		return store.NewDynamoStore(client, cfg.DynamoDBTable), nil
	}
	return nil, fmt.Errorf("unknown state store %q", cfg.StateStore)
}

// JWT returns the operator token service, or nil when no secret is set.
func (rt *Runtime) JWT() *auth.JWTService {
	if rt.Config.JWTSecret == "" {
		return nil
	}
	return auth.NewJWTService(rt.Config.JWTSecret, tokenExpiry)
}

// Sequence returns the notification id source selected by configuration.
func (rt *Runtime) Sequence() notification.Sequence {
	if rt.Config.NotificationSequence == "store" {
		return notification.NewStoreSequence(rt.Store, notificationSequence)
	}
	return notification.NewLocalSequence()
}

// Serve runs the HTTP server and the bus consumers for bindings until ctx is
// cancelled or one of them fails.
func (rt *Runtime) Serve(ctx context.Context, handler http.Handler, bindings []events.Binding) error {
	server := &http.Server{
		Addr:              rt.Config.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.Logger.Info("http server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		rt.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return rt.Bus.Run(ctx, bindings)
	})
	return g.Wait()
}

// Close releases everything New opened, in reverse order.
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.Logger.Warn("close failed", zap.Error(err))
		}
	}
	rt.closers = nil
	_ = rt.Logger.Sync()
}
