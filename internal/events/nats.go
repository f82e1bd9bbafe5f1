package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	subjectPrefix  = "wallet.events"
	defaultStream  = "WALLET_EVENTS"
	publishTimeout = 2 * time.Second
)

// JetStreamPublisher writes events to wallet.events.<type>.
type JetStreamPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect dials NATS and makes sure the events stream exists.
func Connect(ctx context.Context, cfg models.NatsConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("wallet-ledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			zap.L().Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = defaultStream
	}
	if err := EnsureStream(ctx, js, stream); err != nil {
		nc.Close()
		return nil, err
	}

	return &JetStreamPublisher{nc: nc, js: js}, nil
}

// EnsureStream creates or updates the stream that captures all events.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	zap.L().Info("Ensured events stream", zap.String("stream", name))
	return nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, evt Event) {
	if evt.Id == "" {
		evt.Id = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		zap.L().Warn("Failed to marshal event", zap.String("type", evt.Type), zap.Error(err))
		metrics.EventsPublished.WithLabelValues(evt.Type, "error").Inc()
		return
	}

	// The caller's context may be about to end; the publish gets its own deadline.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	subject := Subject(evt.Type)
	if _, err := p.js.Publish(pubCtx, subject, data, jetstream.WithMsgID(evt.Id)); err != nil {
		zap.L().Warn("Failed to publish event",
			zap.String("type", evt.Type),
			zap.String("subject", subject),
			zap.Error(err))
		metrics.EventsPublished.WithLabelValues(evt.Type, "error").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(evt.Type, "ok").Inc()
}

func (p *JetStreamPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		zap.L().Warn("Failed to drain NATS connection", zap.Error(err))
	}
}

// Subject maps an event type to its bus subject.
func Subject(eventType string) string {
	return subjectPrefix + "." + eventType
}
