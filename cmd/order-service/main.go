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
	"github.com/example/order-saga/internal/domain/order"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "order-service:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.OrderService)
	if err != nil {
		return err
	}

	rt, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	manager := order.NewManager(rt.Store, rt.Bus, rt.Logger)

	router := api.NewRouter(api.RouterConfig{
		Service: cfg.ServiceName,
		Metrics: rt.Metrics,
		JWT:     rt.JWT(),
		Logger:  rt.Logger,
	}, api.NewOrderHandlers(manager, rt.Logger))

	return rt.Serve(ctx, router, nil)
}
