// Package pubsub implements an asynchronous Google Cloud Pub/Sub sink.
package pubsub

import (
	"context"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
)

// publishResult is the part of pubsub.PublishResult the sink consumes,
// narrowed so tests can substitute a fake.
type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// publisher abstracts the topic publisher client.
type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

// topicPublisher adapts *pubsub.Publisher to the publisher interface.
type topicPublisher struct {
	p *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

func (t topicPublisher) Stop() {
	t.p.Stop()
}

// Sink publishes events to a Pub/Sub topic. It is asynchronous: the sender
// hands over the event's future and the sink resolves it from the publish
// result.
type Sink struct {
	pub     publisher
	encoder encoding.Encoder
	logger  *zap.Logger
}

// New creates a Sink for the provided topic publisher.
func New(p *pubsub.Publisher, enc encoding.Encoder, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pub: topicPublisher{p: p}, encoder: enc, logger: logger}
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return "pubsub"
}

// SendAsync implements sender.AsyncSink. A false return means the event was
// not accepted; the sender fails it immediately.
func (s *Sink) SendAsync(ctx context.Context, f *event.Future) bool {
	data, err := s.encoder.Encode(f.Event())
	if err != nil {
		s.logger.Error("encode event for publish", zap.Error(err))
		return false
	}

	msg := &pubsub.Message{Data: data}
	msg.Attributes = make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := s.pub.Publish(ctx, msg)
	go func() {
		if _, err := result.Get(ctx); err != nil {
			s.logger.Error("publish message", zap.Error(err))
			f.Fail(err.Error())
			return
		}
		f.Complete(true)
	}()
	return true
}

// Stop implements sender.StoppableSink: it flushes outstanding publishes.
func (s *Sink) Stop() {
	s.pub.Stop()
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
