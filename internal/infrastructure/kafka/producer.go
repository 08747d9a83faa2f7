package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bcexplorer/internal/domain"
	"bcexplorer/internal/infrastructure/telemetry"
	"bcexplorer/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MessageWriter is the subset of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeliveryObserver hears about lookup events the broker rejected after
// RecordLookup already returned.
type DeliveryObserver interface {
	OnLookupRecorded(kind domain.LookupKind, err error)
}

type Producer struct {
	writer   MessageWriter
	topic    string
	observer DeliveryObserver
}

type ProducerConfig struct {
	Brokers  []string
	Topic    string
	Observer DeliveryObserver
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	p := newProducer(nil, cfg.Topic)
	p.observer = cfg.Observer
	// RecordLookup only enqueues. Delivery failures arrive in complete.
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.complete,
	}
	return p, nil
}

func newProducer(writer MessageWriter, topic string) *Producer {
	if strings.TrimSpace(topic) == "" {
		topic = "bcexplorer-lookups"
	}
	return &Producer{writer: writer, topic: topic}
}

// complete runs once per batch the async writer has finished with.
func (p *Producer) complete(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		kind := domain.LookupKind("")
		if msg, decodeErr := streaming.Decode(m.Value); decodeErr == nil {
			kind = msg.Kind
		}
		slog.Error("kafka delivery failed", "topic", m.Topic, "kind", kind, "key", string(m.Key), "err", err)
		if p.observer != nil {
			p.observer.OnLookupRecorded(kind, err)
		}
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// RecordLookup publishes a lookup event keyed by the looked-up value so
// repeated lookups land on the same partition.
func (p *Producer) RecordLookup(ctx context.Context, lookup domain.Lookup) error {
	ctx, span := otel.Tracer("bcexplorer/kafka").Start(ctx, "lookup.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("lookup.kind", string(lookup.Kind)),
		attribute.String("lookup.key", lookup.Key),
		attribute.String("messaging.destination", p.topic),
	)

	msg := streaming.FromLookup(lookup)
	msg.TraceID = telemetry.TraceID(ctx)
	payload, err := streaming.Encode(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(lookup.Key),
		Value:   payload,
		Headers: headers,
		Time:    lookup.At,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
