package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	fetchWait    = 5 * time.Second
	fetchBackoff = time.Second
	eventBatch   = 10
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// fetcher is the part of jetstream.Consumer the pull loop needs.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := connect(natsURL)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeFaceTasks pulls recognition tasks from the FACES stream and fans
// them out to workerCount goroutines.
func (c *Consumer) ConsumeFaceTasks(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	cons, err := c.durable(ctx, FacesStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    3,
		FilterSubject: FacesSubjectBase + ".>",
	})
	if err != nil {
		return err
	}

	tasks := make(chan jetstream.Msg, workerCount*2)
	go func() {
		defer close(tasks)
		pull(ctx, cons, workerCount, "face task", func(msg jetstream.Msg) bool {
			select {
			case tasks <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	for i := 0; i < workerCount; i++ {
		go func(worker int) {
			for msg := range tasks {
				settle(ctx, handler, msg, "face task", "worker", worker)
			}
		}(i)
	}

	slog.Info("face task consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents pulls result events for the API to push over WebSocket.
// Only events published after the consumer is created are delivered.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	cons, err := c.durable(ctx, EventsStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return err
	}

	go pull(ctx, cons, eventBatch, "event", func(msg jetstream.Msg) bool {
		settle(ctx, handler, msg, "event")
		return ctx.Err() == nil
	})

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) durable(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", streamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", cfg.Durable, err)
	}
	return cons, nil
}

// pull fetches batches until ctx is done or deliver returns false. Fetch
// errors are logged and retried after a short pause.
func pull(ctx context.Context, cons fetcher, batchSize int, kind string, deliver func(jetstream.Msg) bool) {
	for ctx.Err() == nil {
		batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch "+kind+"s", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchBackoff):
			}
			continue
		}

		for msg := range batch.Messages() {
			if !deliver(msg) {
				return
			}
		}
		if err := batch.Error(); err != nil && ctx.Err() == nil {
			slog.Debug(kind+" batch ended early", "error", err)
		}
	}
}

// settle runs handler and acks on success. Failures are nak'd so JetStream
// redelivers them until MaxDeliver.
func settle(ctx context.Context, handler MessageHandler, msg jetstream.Msg, kind string, attrs ...any) {
	if err := handler(ctx, msg); err != nil {
		slog.Error("process "+kind, append(attrs, "subject", msg.Subject(), "error", err)...)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
