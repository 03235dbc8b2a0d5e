package worker

import (
	"context"
	"encoding/json"

	"resto-platform/internal/broker"
	"resto-platform/internal/models"
	"resto-platform/internal/notify"
	"resto-platform/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PushWorker drains the push topic and delivers payloads to the push
// provider. Delivery is at-least-once; the provider deduplicates on the
// alert ID. A failing provider never blocks anything upstream of Kafka.
type PushWorker struct {
	consumer *broker.Consumer
	client   *notify.PushClient
	logger   *zap.Logger
}

// NewPushWorker creates a push delivery worker
func NewPushWorker(consumer *broker.Consumer, client *notify.PushClient) *PushWorker {
	return &PushWorker{
		consumer: consumer,
		client:   client,
		logger:   util.GetLogger(),
	}
}

// Start consumes push messages until the context is cancelled
func (w *PushWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting push worker")

	return w.consumer.Run(ctx, func(ctx context.Context, msg kafka.Message) error {
		var push models.PushMessage
		if err := json.Unmarshal(msg.Value, &push); err != nil {
			// Malformed payloads are dropped, retrying cannot fix them.
			w.logger.Warn("Dropping malformed push message", zap.Error(err))
			return nil
		}

		if err := w.client.Send(ctx, push); err != nil {
			util.NotificationsFailed.WithLabelValues("provider").Inc()
			w.logger.Warn("Push delivery failed",
				zap.String("alert_id", push.AlertID),
				zap.Error(err))
			return err
		}
		return nil
	})
}

// Stop stops the worker
func (w *PushWorker) Stop() error {
	w.logger.Info("Stopping push worker")
	return w.consumer.Close()
}
