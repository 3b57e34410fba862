package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Sink receives batches of cycle events.
type Sink interface {
	Write(ctx context.Context, events []CycleEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes cycle events to a Kafka topic as JSON, keyed by agent id.
type KafkaSink struct {
	w     messageWriter
	topic string
}

// NewKafkaSink creates a sink for a comma-separated broker list.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{w: w, topic: topic}
}

// Write sends events in one produce call.
func (s *KafkaSink) Write(ctx context.Context, events []CycleEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		val, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode cycle event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.AgentID),
			Value: val,
			Time:  evt.Timestamp,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
			},
		})
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events to %s: %w", len(msgs), s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}

// InjectProducer publishes InjectedEvents to the topic a KafkaSource reads.
type InjectProducer struct {
	w     messageWriter
	topic string
}

// NewInjectProducer creates a producer for a comma-separated broker list.
func NewInjectProducer(brokers, topic string) *InjectProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &InjectProducer{w: w, topic: topic}
}

// Send fills in the schema version, idempotency key and timestamp when they
// are empty, validates evt and writes it keyed by agent id. It returns the
// event as sent.
func (p *InjectProducer) Send(ctx context.Context, evt InjectedEvent) (InjectedEvent, error) {
	if evt.SchemaVersion == "" {
		evt.SchemaVersion = CurrentSchemaVersion
	}
	if evt.IdempotencyKey == "" {
		evt.IdempotencyKey = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		return evt, err
	}
	val, err := json.Marshal(evt)
	if err != nil {
		return evt, fmt.Errorf("encode injected event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.AgentID),
		Value: val,
		Time:  evt.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return evt, fmt.Errorf("write to %s: %w", p.topic, err)
	}
	return evt, nil
}

// Close flushes and closes the writer.
func (p *InjectProducer) Close() error {
	return p.w.Close()
}

// ChannelSink is an in-process Sink for tests.
type ChannelSink struct {
	ch chan CycleEvent
}

// NewChannelSink creates a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan CycleEvent, size)}
}

// Write pushes events into the channel.
func (s *ChannelSink) Write(ctx context.Context, events []CycleEvent) error {
	for _, evt := range events {
		select {
		case s.ch <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Events returns the channel of written events.
func (s *ChannelSink) Events() <-chan CycleEvent { return s.ch }

// Close is a no-op.
func (s *ChannelSink) Close() error { return nil }

// Forwarder batches bus events into a Sink.
type Forwarder struct {
	sink          Sink
	logger        *slog.Logger
	ch            chan CycleEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Uint64
	written       atomic.Uint64
}

// NewForwarder creates a forwarder. Zero batch size or interval use defaults.
func NewForwarder(sink Sink, batchSize int, flushInterval time.Duration, logger *slog.Logger) *Forwarder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		sink:          sink,
		logger:        logger,
		ch:            make(chan CycleEvent, batchSize*4),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Attach subscribes the forwarder to every event on b.
func (f *Forwarder) Attach(b *MessageBus) {
	b.Subscribe(AllEvents, f.enqueue)
}

func (f *Forwarder) enqueue(evt CycleEvent) {
	select {
	case f.ch <- evt:
	default:
		f.dropped.Add(1)
	}
}

// Run writes batches until ctx is cancelled, then flushes what is buffered.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	batch := make([]CycleEvent, 0, f.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		_ = f.write(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(flushCtx)
			_ = f.Drain(flushCtx)
			cancel()
			return ctx.Err()
		case evt := <-f.ch:
			batch = append(batch, evt)
			if len(batch) >= f.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Drain writes every buffered event to the sink in batches and returns once
// the buffer is empty. Owners call it after Run has returned and the bus has
// been flushed, so events published during shutdown still reach the sink.
func (f *Forwarder) Drain(ctx context.Context) error {
	var errs []error
	for {
		batch := f.take()
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		if err := f.write(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
}

func (f *Forwarder) take() []CycleEvent {
	batch := make([]CycleEvent, 0, f.batchSize)
	for len(batch) < f.batchSize {
		select {
		case evt := <-f.ch:
			batch = append(batch, evt)
		default:
			return batch
		}
	}
	return batch
}

func (f *Forwarder) write(ctx context.Context, batch []CycleEvent) error {
	if err := f.sink.Write(ctx, batch); err != nil {
		f.logger.Warn("Event forward failed", "events", len(batch), "error", err)
		return err
	}
	f.written.Add(uint64(len(batch)))
	return nil
}

// Written returns how many events reached the sink.
func (f *Forwarder) Written() uint64 { return f.written.Load() }

// Dropped returns how many events were discarded because the buffer was full.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

// maxSeenKeys bounds the idempotency window of a KafkaSource.
const maxSeenKeys = 10000

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes InjectedEvents from a Kafka topic.
type KafkaSource struct {
	r      messageReader
	topic  string
	logger *slog.Logger
	seen   map[string]struct{}
}

// NewKafkaSource creates a consumer-group reader for topic.
func NewKafkaSource(brokers, topic, consumerGroup string, logger *slog.Logger) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  consumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaSource(r, topic, logger)
}

func newKafkaSource(r messageReader, topic string, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{r: r, topic: topic, logger: logger, seen: make(map[string]struct{})}
}

// Run reads, validates and de-duplicates events and hands them to handle until
// ctx is cancelled. Invalid messages and handler errors are logged and skipped.
func (s *KafkaSource) Run(ctx context.Context, handle func(InjectedEvent) error) error {
	for {
		msg, err := s.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			s.logger.Warn("KafkaSource: read error", "topic", s.topic, "error", err)
			continue
		}
		var evt InjectedEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			s.logger.Warn("KafkaSource: undecodable event", "topic", s.topic, "offset", msg.Offset, "error", err)
			continue
		}
		if err := evt.Validate(); err != nil {
			s.logger.Warn("KafkaSource: invalid event", "topic", s.topic, "offset", msg.Offset, "error", err)
			continue
		}
		if _, dup := s.seen[evt.IdempotencyKey]; dup {
			s.logger.Debug("KafkaSource: duplicate event", "key", evt.IdempotencyKey)
			continue
		}
		if len(s.seen) >= maxSeenKeys {
			clear(s.seen)
		}
		s.seen[evt.IdempotencyKey] = struct{}{}
		if err := handle(evt); err != nil {
			s.logger.Warn("KafkaSource: handler failed", "type", evt.Type, "key", evt.IdempotencyKey, "error", err)
		}
	}
}

// Close stops the reader.
func (s *KafkaSource) Close() error {
	return s.r.Close()
}
