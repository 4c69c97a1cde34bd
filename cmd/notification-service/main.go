package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/order-saga/internal/api"
	"github.com/example/order-saga/internal/app"
	"github.com/example/order-saga/internal/config"
	"github.com/example/order-saga/internal/notification"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "notification-service:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.NotificationService)
	if err != nil {
		return err
	}

	rt, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	dispatcher := notification.NewDispatcher(rt.Store, rt.Sequence(), rt.Metrics, rt.Logger)
	bindings := dispatcher.Bindings()

	router := api.NewRouter(api.RouterConfig{
		Service:  cfg.ServiceName,
		Bindings: bindings,
		Metrics:  rt.Metrics,
		JWT:      rt.JWT(),
		Logger:   rt.Logger,
	}, api.NewNotificationHandlers(dispatcher, rt.Logger))

	return rt.Serve(ctx, router, bindings)
}
