// Package relay drains the audit outbox to Kafka.
//
// The engines write audit events to the outbox inside their own
// transactions; the relay is the only background component in the system
// and sits entirely off the request critical path. Delivery is
// at-least-once: entries are marked delivered only after the broker
// acknowledges the batch, so a crash between produce and mark replays.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"comitia/internal/audit/store/postgres"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Relay periodically moves undelivered outbox entries onto the audit topic.
type Relay struct {
	store    *postgres.Store
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets a logger for delivery errors.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithPollInterval overrides how often the outbox is polled.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// New connects to the brokers and ensures the audit topic exists.
func New(store *postgres.Store, brokers []string, topic string, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}

	if err := ensureTopic(context.Background(), client, topic); err != nil {
		client.Close()
		return nil, err
	}

	r := &Relay{
		store:    store,
		client:   client,
		topic:    topic,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return resp.Err
		}
	}
	return nil
}

// Run polls until the context is cancelled. Errors are logged and retried
// on the next tick; the relay never drops an entry.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	batch, err := r.store.NextBatch(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, entry := range batch {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(entry.EventType),
			Value: entry.Payload,
		})
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(batch))
	for _, entry := range batch {
		ids = append(ids, entry.ID)
	}
	return r.store.MarkDelivered(ctx, ids)
}

// Close flushes and releases the Kafka client.
func (r *Relay) Close() {
	r.client.Close()
}
