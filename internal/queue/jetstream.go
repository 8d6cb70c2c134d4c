package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName  = "GEOATTEND"
	SubjectBase = "geoattend"
)

// JetStream is a NATS JetStream work queue. Each message type is published
// on its own subject under SubjectBase.
type JetStream struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer string
}

// NewJetStream connects to NATS. consumer names the durable consumer used
// by Consume.
func NewJetStream(natsURL, consumer string) (*JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if consumer == "" {
		consumer = "geoattend-worker"
	}
	return &JetStream{nc: nc, js: js, consumer: consumer}, nil
}

// EnsureStream creates the work-queue stream, retrying while NATS starts up.
func (q *JetStream) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectBase + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  time.Minute,
		Description: "Enrollment jobs and attendance events",
	}

	const maxAttempts = 30
	for attempt := 1; ; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := q.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", StreamName)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", StreamName, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", StreamName, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Publish sends msg on geoattend.<type>.
func (q *JetStream) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := q.js.Publish(ctx, SubjectBase+"."+msg.Type, payload); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Consume fetches from a durable consumer. A message is acked once it has
// been handed to the reader; undecodable payloads are terminated.
func (q *JetStream) Consume(ctx context.Context) (<-chan Message, error) {
	stream, err := q.js.Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", StreamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          q.consumer,
		Durable:       q.consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		FilterSubject: SubjectBase + ".>",
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", q.consumer, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch messages error", "error", err)
				time.Sleep(time.Second)
				continue
			}
			for m := range batch.Messages() {
				var msg Message
				if err := json.Unmarshal(m.Data(), &msg); err != nil {
					slog.Error("drop undecodable message", "subject", m.Subject(), "error", err)
					_ = m.Term()
					continue
				}
				select {
				case out <- msg:
					_ = m.Ack()
				case <-ctx.Done():
					_ = m.Nak()
					return
				}
			}
		}
	}()
	slog.Info("queue consumer started", "consumer", q.consumer)
	return out, nil
}

func (q *JetStream) Ping() error {
	if !q.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (q *JetStream) Close() {
	q.nc.Close()
}
