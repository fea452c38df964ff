package bus

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// MemBus is an in-process Bus implementing the same delivery,
// consumer-group, and dead-letter contract as NatsBus, for unit tests
// and local runs without a NATS server.
type MemBus struct {
	mu       sync.Mutex
	closed   bool
	subs     []*memSubscription
	groupSeq map[string]int // group name -> round-robin cursor, for consumer-group fan-out

	dlqMu sync.Mutex // guards dlq independently: deliver() may append to it while mu is already held by Publish
	dlq   []Delivery
}

// NewMemBus constructs an empty in-memory bus.
func NewMemBus() *MemBus {
	return &MemBus{groupSeq: make(map[string]int)}
}

// Publish implements Bus: it fans the event out synchronously to every
// matching subscription (or, for a consumer group, to exactly one of
// its members, round-robin).
func (b *MemBus) Publish(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	subject := event.Subject()

	byGroup := make(map[string][]*memSubscription)
	for _, s := range b.subs {
		if !MatchSubject(s.pattern, subject) {
			continue
		}
		if s.group == "" {
			s.deliver(subject, event)
			continue
		}
		byGroup[s.group] = append(byGroup[s.group], s)
	}
	for group, members := range byGroup {
		idx := b.groupSeq[group] % len(members)
		b.groupSeq[group]++
		members[idx].deliver(subject, event)
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemBus) Subscribe(_ context.Context, pattern string, opts SubscribeOptions) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	maxDeliver := opts.MaxDeliver
	if maxDeliver <= 0 {
		maxDeliver = DefaultMaxDeliver
	}
	s := &memSubscription{
		bus:        b,
		pattern:    pattern,
		group:      opts.Group,
		maxDeliver: maxDeliver,
		deliverC:   make(chan Delivery, 64),
		attempts:   make(map[string]int),
	}
	b.subs = append(b.subs, s)
	return s, nil
}

// Close implements Bus.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, s := range b.subs {
		s.closeLocked()
	}
	return nil
}

// DeadLettered returns every delivery that exhausted its redelivery
// budget, for test assertions.
func (b *MemBus) DeadLettered() []Delivery {
	b.dlqMu.Lock()
	defer b.dlqMu.Unlock()
	out := make([]Delivery, len(b.dlq))
	copy(out, b.dlq)
	return out
}

func (b *MemBus) removeSub(target *memSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

type memSubscription struct {
	bus        *MemBus
	pattern    string
	group      string
	maxDeliver int
	deliverC   chan Delivery

	mu       sync.Mutex
	closed   bool
	attempts map[string]int // per-event delivery id -> attempt count
}

// deliver redelivers event up to maxDeliver times on repeated Nak
// before giving up and recording it in the bus's dead-letter list.
func (s *memSubscription) deliver(subject string, event domain.Event) {
	id := subject + "#" + deliveryKey(event)
	s.send(id, subject, event)
}

func (s *memSubscription) send(id, subject string, event domain.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attempts[id]++
	attempt := s.attempts[id]
	s.mu.Unlock()

	if attempt > s.maxDeliver {
		s.bus.dlqMu.Lock()
		s.bus.dlq = append(s.bus.dlq, Delivery{Event: event, Subject: subject})
		s.bus.dlqMu.Unlock()
		return
	}

	d := Delivery{
		Event:   event,
		Subject: subject,
		Ack:     func() error { s.clearAttempt(id); return nil },
		Nak:     func() error { s.send(id, subject, event); return nil },
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.deliverC <- d
}

func (s *memSubscription) clearAttempt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}

func (s *memSubscription) Deliveries() <-chan Delivery { return s.deliverC }

func (s *memSubscription) Close() error {
	s.closeLocked()
	s.bus.removeSub(s)
	return nil
}

func (s *memSubscription) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.deliverC)
}

// deliveryKey gives each event instance a stable identity for
// redelivery bookkeeping: its JSON-marshaled form, since domain events
// carry no sequence number of their own in-process.
func deliveryKey(event domain.Event) string {
	payload, err := domain.Marshal(event)
	if err != nil {
		return ""
	}
	return string(payload)
}
