package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

// streamSubjects lists every subject hierarchy the core publishes
// under; one logical stream carries all of them.
var streamSubjects = []string{
	"run.>", "agent.>", "stage.>", "step.>", "cache.>",
	"secret.>", "matrix.>", "approval.>", "notification.>", "license.>", "billing.>",
}

// DefaultStreamName is the logical stream every subject above is
// appended to.
const DefaultStreamName = "ORCACI_EVENTS"

// DefaultRetentionAge bounds stream retention by age.
const DefaultRetentionAge = 7 * 24 * time.Hour

// deadLetterSubjectPrefix namespaces dead-lettered events, preserving
// the original subject as a suffix.
const deadLetterSubjectPrefix = "dlq"

// NatsBus is the production Bus, backed by a NATS JetStream stream.
type NatsBus struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	metrics *metrics
	log     *slog.Logger
}

// NatsConfig configures a NatsBus connection.
type NatsConfig struct {
	URLs       []string
	StreamName string
	MaxDeliver int
	Registerer prometheus.Registerer
}

// ConnectNats dials servers, ensures the durable stream and its
// dead-letter stream exist, and returns a ready-to-use NatsBus.
func ConnectNats(cfg NatsConfig) (*NatsBus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultStreamName
	}
	log := slog.With("component", "bus.nats", "stream", cfg.StreamName)
	m := newMetrics(cfg.Registerer)

	nc, err := nats.Connect(
		strings.Join(cfg.URLs, ","),
		nats.ReconnectHandler(func(*nats.Conn) {
			m.reconnects.Inc()
			m.connectionState.Set(1)
			log.Warn("reconnected to nats")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			m.connectionState.Set(0)
			log.Warn("disconnected from nats", "error", err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			m.connectionState.Set(0)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	m.connectionState.Set(1)

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus: jetstream context: %w", err)
	}

	if err := ensureStream(js, cfg.StreamName, streamSubjects); err != nil {
		nc.Close()
		return nil, err
	}
	if err := ensureStream(js, dlqStreamName(cfg.StreamName), []string{deadLetterSubjectPrefix + ".>"}); err != nil {
		nc.Close()
		return nil, err
	}

	return &NatsBus{nc: nc, js: js, metrics: m, log: log}, nil
}

func dlqStreamName(stream string) string { return stream + "_DLQ" }

func ensureStream(js nats.JetStreamContext, name string, subjects []string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		MaxAge:   DefaultRetentionAge,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("bus: add stream %s: %w", name, err)
	}
	return nil
}

// Publish implements Bus.
func (b *NatsBus) Publish(ctx context.Context, event domain.Event) error {
	subject := event.Subject()
	payload, err := domain.Marshal(event)
	if err != nil {
		b.metrics.failed.Inc()
		return fmt.Errorf("bus: marshal event for %s: %w", subject, err)
	}
	if _, err := b.js.Publish(subject, payload, nats.Context(ctx)); err != nil {
		b.metrics.failed.Inc()
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	b.metrics.published.Inc()
	b.metrics.bytesOut.Add(float64(len(payload)))
	return nil
}

// Subscribe implements Bus. Ungrouped subscriptions get their own
// ephemeral consumer per call (one subscriber sees every event);
// grouped subscriptions share one durable consumer per Group value so
// NATS load-balances across members.
func (b *NatsBus) Subscribe(ctx context.Context, pattern string, opts SubscribeOptions) (Subscription, error) {
	maxDeliver := opts.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = DefaultMaxDeliver
	}

	subOpts := []nats.SubOpt{
		nats.ManualAck(),
		// One delivery past maxDeliver is allowed so that handle sees it
		// and routes it to the dead-letter stream.
		nats.MaxDeliver(maxDeliver + 1),
		nats.AckExplicit(),
	}
	switch opts.From {
	case FromOrigin:
		subOpts = append(subOpts, nats.DeliverAll())
	case FromSequence:
		subOpts = append(subOpts, nats.StartSequence(opts.Sequence))
	default:
		subOpts = append(subOpts, nats.DeliverNew())
	}

	sub := &natsSubscription{
		bus:        b,
		deliverC:   make(chan Delivery, 64),
		maxDeliver: maxDeliver,
	}

	var err error
	if opts.Group != "" {
		subOpts = append(subOpts, nats.Durable(consumerName(opts.Group, pattern)))
		sub.sub, err = b.js.QueueSubscribe(pattern, opts.Group, sub.handle, subOpts...)
	} else {
		sub.sub, err = b.js.Subscribe(pattern, sub.handle, subOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %s: %w", pattern, err)
	}
	return sub, nil
}

func consumerName(group, pattern string) string {
	sanitized := strings.NewReplacer(".", "_", "*", "STAR", ">", "GT").Replace(pattern)
	return fmt.Sprintf("%s_%s", group, sanitized)
}

// Close implements Bus.
func (b *NatsBus) Close() error {
	b.nc.Close()
	return nil
}

type natsSubscription struct {
	bus        *NatsBus
	sub        *nats.Subscription
	deliverC   chan Delivery
	maxDeliver int

	mu     sync.Mutex
	closed bool
}

func (s *natsSubscription) send(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.deliverC <- d
}

func (s *natsSubscription) handle(msg *nats.Msg) {
	meta, err := msg.Metadata()
	delivered := uint64(1)
	if err == nil {
		delivered = meta.NumDelivered
	}

	s.bus.metrics.received.Inc()
	s.bus.metrics.bytesIn.Add(float64(len(msg.Data)))

	if delivered > uint64(s.maxDeliver) {
		s.deadLetter(msg)
		return
	}

	event, err := domain.Unmarshal(msg.Data)
	if err != nil {
		s.bus.log.Error("dropping malformed event", "subject", msg.Subject, "error", err)
		s.bus.metrics.failed.Inc()
		_ = msg.Ack() // malformed payloads cannot be fixed by redelivery
		return
	}

	s.send(Delivery{
		Event:   event,
		Subject: msg.Subject,
		Ack:     msg.Ack,
		Nak:     msg.Nak,
	})
}

// deadLetter republishes an exhausted message under the dead-letter
// prefix, preserving its original subject and payload, then acks the
// original so it stops redelivering.
func (s *natsSubscription) deadLetter(msg *nats.Msg) {
	dlqSubject := deadLetterSubjectPrefix + "." + msg.Subject
	if _, err := s.bus.js.Publish(dlqSubject, msg.Data); err != nil {
		s.bus.log.Error("failed to dead-letter message", "subject", msg.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	s.bus.metrics.deadLettered.Inc()
	_ = msg.Ack()
}

func (s *natsSubscription) Deliveries() <-chan Delivery { return s.deliverC }

func (s *natsSubscription) Close() error {
	err := s.sub.Unsubscribe()
	s.mu.Lock()
	s.closed = true
	close(s.deliverC)
	s.mu.Unlock()
	return err
}
