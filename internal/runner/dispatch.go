package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/aoli-al/havoc-mutation-eval/internal/types"
	"github.com/aoli-al/havoc-mutation-eval/pkg/mq"
	"github.com/aoli-al/havoc-mutation-eval/pkg/telemetry"
)

const (
	TrialQueue = "trial_queue"
	retryLimit = 3
)

var ErrNoBroker = errors.New("rabbitmq is not configured")

// Dispatch publishes every trial to the trial queue, carrying the current
// trace so that workers report under the same experiment.
func (r *Runner) Dispatch(ctx context.Context, msgs []types.TrialMessage) error {
	if r.rabbitMQ == nil {
		return ErrNoBroker
	}
	tracer := telemetry.FromContext(ctx).Spawn("dispatch trials")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.Dispatching).
		WithExtraAttribute("trials", len(msgs)))
	tracer.Start()
	defer tracer.End()

	for _, msg := range msgs {
		msg.TraceContext = tracer.Export()
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", msg.Trial.ID(), err)
		}
		if err := r.rabbitMQ.Publish(ctx, TrialQueue, body); err != nil {
			return fmt.Errorf("failed to publish %s: %w", msg.Trial.ID(), err)
		}
		r.setStatus(ctx, msg.Trial.ID(), StatusQueued)
		r.logger.Debug("trial dispatched", zap.String("trial", msg.Trial.ID()))
	}
	r.logger.Info("dispatched trials", zap.String("queue", TrialQueue), zap.Int("count", len(msgs)))
	return nil
}

// Work consumes the trial queue until ctx is done. After retryLimit failed
// listens the application is shut down.
func (r *Runner) Work(ctx context.Context) error {
	if r.rabbitMQ == nil {
		return ErrNoBroker
	}
	failCnt := 0
	for {
		errChan := make(chan error, 1)
		go func() {
			errChan <- r.listen(ctx)
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			if err == nil {
				return nil
			}
			r.logger.Warn("worker failed to listen for trials", zap.Error(err))
			failCnt++
			if failCnt >= retryLimit {
				r.logger.Warn("retry limit reached, shutting down", zap.Error(err))
				if err := r.shutdowner.Shutdown(); err != nil {
					r.logger.Error("failed to shut down", zap.Error(err))
				}
				return err
			}
			r.logger.Warn("retrying...")
		}
	}
}

func (r *Runner) listen(ctx context.Context) error {
	ch, err := r.rabbitMQ.GetChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	// one trial at a time per worker
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	q, err := mq.DeclareQueue(ch, TrialQueue)
	if err != nil {
		return err
	}

	r.logger.Info("waiting for trials", zap.String("queue", q.Name))
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("trial channel closed")
			}
			if err := r.onMessage(ctx, delivery); err != nil {
				return err
			}
		}
	}
}

// onMessage runs one delivered trial. A failed trial is requeued until it has
// failed retryLimit times; only broker errors are returned.
func (r *Runner) onMessage(ctx context.Context, delivery amqp.Delivery) error {
	var msg types.TrialMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		r.logger.Error("dropping malformed trial message", zap.ByteString("body", delivery.Body), zap.Error(err))
		if err := delivery.Nack(false, false); err != nil {
			return fmt.Errorf("failed to nack message: %w", err)
		}
		return nil
	}
	id := msg.Trial.ID()
	r.logger.Info("received trial", zap.String("trial", id), zap.String("mode", string(msg.Mode)))

	if err := r.RunTrial(ctx, msg); err != nil {
		r.mu.Lock()
		r.failedCount[id]++
		requeue := r.failedCount[id] < retryLimit
		r.mu.Unlock()
		if !requeue {
			r.logger.Error("giving up on trial", zap.String("trial", id), zap.Int("attempts", retryLimit))
		}
		if err := delivery.Nack(false, requeue); err != nil {
			return fmt.Errorf("failed to nack message: %w", err)
		}
		return nil
	}

	if err := delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}
