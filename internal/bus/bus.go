// Package bus defines the durable publish/subscribe contract the
// scheduler, agents, and observers communicate over, and provides two
// implementations: a NATS JetStream-backed Bus for production use, and
// an in-memory Bus for tests and local development.
package bus

import (
	"context"
	"errors"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// DefaultMaxDeliver is the redelivery ceiling before a message is
// routed to the dead-letter stream.
const DefaultMaxDeliver = 3

// StartPosition selects where a new subscription begins reading from
// the durable stream.
type StartPosition int

const (
	// FromLatest delivers only events published after the subscription
	// is created.
	FromLatest StartPosition = iota
	// FromOrigin replays the entire retained stream from its earliest
	// record.
	FromOrigin
	// FromSequence resumes delivery at a specific stream sequence
	// number (inclusive); used with SubscribeOptions.Sequence.
	FromSequence
)

// SubscribeOptions configures one subscription.
type SubscribeOptions struct {
	// Group, if non-empty, makes this a consumer-group subscription:
	// messages matching Pattern load-balance across every subscriber
	// sharing Group. Left empty, the subscription is ungrouped and sees
	// every matching event.
	Group    string
	From     StartPosition
	Sequence uint64
	// MaxDeliver overrides DefaultMaxDeliver for this subscription.
	MaxDeliver int
}

// Delivery wraps one delivered event with its acknowledgement handles.
type Delivery struct {
	Event domain.Event
	// Subject is the exact subject the event was published on (useful
	// even after Event has been type-switched).
	Subject string
	Ack     func() error
	Nak     func() error
}

// Subscription is a live handle to a subscribe() call.
type Subscription interface {
	// Deliveries yields one Delivery per matching message. The channel
	// closes when the subscription is closed or the bus connection is
	// torn down.
	Deliveries() <-chan Delivery
	Close() error
}

// Bus is the durable pub/sub contract: publish(event) returns an
// error, subscribe(pattern) returns a stream of events.
type Bus interface {
	// Publish appends event to the durable stream under its own
	// Subject() and returns only once the stream has durably accepted
	// it.
	Publish(ctx context.Context, event domain.Event) error
	// Subscribe opens a subscription against pattern, a dot-separated
	// subject with "*" (exactly one token) and ">" (one or more
	// trailing tokens) wildcards.
	Subscribe(ctx context.Context, pattern string, opts SubscribeOptions) (Subscription, error)
	Close() error
}

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("bus: closed")
