package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/order-saga/internal/app"
	"github.com/example/order-saga/internal/config"
	"github.com/example/order-saga/internal/infrastructure/kinesis"
	"github.com/example/order-saga/internal/notification"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.NotificationService)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lambda notifier:", err)
		os.Exit(1)
	}
	// Events arrive as Kinesis records and instances are short-lived, so
	// notification ids must come from the state store.
	cfg.EventBus = "memory"
	cfg.NotificationSequence = "store"

	rt, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lambda notifier:", err)
		os.Exit(1)
	}

	dispatcher := notification.NewDispatcher(rt.Store, rt.Sequence(), rt.Metrics, rt.Logger)
	adapter := kinesis.NewAdapter(dispatcher.Bindings(), rt.Metrics, rt.Logger)

	lambda.Start(adapter.HandleBatch)
}
