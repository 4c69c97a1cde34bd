package kinesis

import (
	"context"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/observability"
)

// Adapter feeds Kinesis batches into event bindings. Each record's data is one
// bus payload, enveloped or raw.
type Adapter struct {
	bindings []events.Binding
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewAdapter(bindings []events.Binding, metrics *observability.Metrics, logger *zap.Logger) *Adapter {
	return &Adapter{
		bindings: bindings,
		metrics:  metrics,
		logger:   logger.Named("kinesis"),
	}
}

// HandleBatch processes every record and reports the ones that need
// redelivery as batch item failures.
func (a *Adapter) HandleBatch(ctx context.Context, batch lambdaevents.KinesisEvent) (lambdaevents.KinesisEventResponse, error) {
	var resp lambdaevents.KinesisEventResponse
	for _, record := range batch.Records {
		if err := a.handleRecord(ctx, record); err != nil {
			a.logger.Error("record failed",
				zap.String("event_id", record.EventID),
				zap.String("sequence_number", record.Kinesis.SequenceNumber),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}
	return resp, nil
}

func (a *Adapter) handleRecord(ctx context.Context, record lambdaevents.KinesisEventRecord) error {
	msg, err := events.Decode(record.Kinesis.Data)
	if err != nil {
		a.logger.Warn("dropping malformed record", zap.String("event_id", record.EventID), zap.Error(err))
		a.metrics.EventHandled("kinesis", "dropped")
		return nil
	}

	for _, b := range a.bindings {
		if msg.Topic != "" && msg.Topic != b.Topic {
			continue
		}
		err := b.Handler(ctx, msg)
		switch {
		case err == nil:
			a.metrics.EventHandled(b.Topic, "ack")
		case events.IsTerminal(err):
			a.logger.Warn("dropping malformed record", zap.String("event_id", record.EventID), zap.Error(err))
			a.metrics.EventHandled(b.Topic, "dropped")
		default:
			a.metrics.EventHandled(b.Topic, "retry")
			return err
		}
	}
	return nil
}
