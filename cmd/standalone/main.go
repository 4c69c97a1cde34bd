// Command standalone runs all three services in one process over a shared
// state store and event bus.
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
	"github.com/example/order-saga/internal/domain/inventory"
	"github.com/example/order-saga/internal/domain/order"
	"github.com/example/order-saga/internal/notification"
	"github.com/example/order-saga/internal/saga"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "standalone:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Standalone)
	if err != nil {
		return err
	}

	rt, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	manager := order.NewManager(rt.Store, rt.Bus, rt.Logger)
	ledger := inventory.NewLedger(rt.Store, rt.Logger, cfg.MaxReserveAttempts)
	orchestrator := saga.NewOrchestrator(ledger, inventory.NewReservations(rt.Store), rt.Bus, rt.Metrics, rt.Logger)
	dispatcher := notification.NewDispatcher(rt.Store, rt.Sequence(), rt.Metrics, rt.Logger)

	// Orchestrator and dispatcher share the order-events ingress route, so
	// events reach them through the bus only.
	router := api.NewRouter(api.RouterConfig{
		Service: cfg.ServiceName,
		Metrics: rt.Metrics,
		JWT:     rt.JWT(),
		Logger:  rt.Logger,
	},
		api.NewOrderHandlers(manager, rt.Logger),
		api.NewInventoryHandlers(ledger, orchestrator, rt.Logger),
		api.NewNotificationHandlers(dispatcher, rt.Logger),
	)

	bindings := append(orchestrator.Bindings(), dispatcher.Bindings()...)
	return rt.Serve(ctx, router, bindings)
}
