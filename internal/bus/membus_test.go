package bus

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemBus_PublishSubscribeRoundTrip(t *testing.T) {
	b := NewMemBus()
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "run.queued.*", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()

	evt := domain.RunQueuedEvent{PipelineName: "ci"}
	require.NoError(t, b.Publish(context.Background(), evt))

	select {
	case d := <-sub.Deliveries():
		assert.Equal(t, "run.queued.ci", d.Subject)
		require.NoError(t, d.Ack())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemBus_WildcardDoesNotMatchAcrossTokens(t *testing.T) {
	b := NewMemBus()
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "run.queued.*", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), domain.AgentRegisteredEvent{AgentID: domain.NewID(domain.KindAgent)}))

	select {
	case <-sub.Deliveries():
		t.Fatal("unexpected delivery for non-matching subject")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemBus_ConsumerGroupLoadBalances(t *testing.T) {
	b := NewMemBus()
	defer b.Close()

	subA, err := b.Subscribe(context.Background(), "run.queued.*", SubscribeOptions{Group: "workers"})
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.Subscribe(context.Background(), "run.queued.*", SubscribeOptions{Group: "workers"})
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, b.Publish(context.Background(), domain.RunQueuedEvent{PipelineName: "a"}))
	require.NoError(t, b.Publish(context.Background(), domain.RunQueuedEvent{PipelineName: "b"}))

	total := 0
	for _, sub := range []Subscription{subA, subB} {
		for {
			select {
			case d := <-sub.Deliveries():
				total++
				require.NoError(t, d.Ack())
			case <-time.After(50 * time.Millisecond):
				goto next
			}
		}
	next:
	}
	assert.Equal(t, 2, total, "exactly two deliveries total across the group, not two each")
}

func TestMemBus_NakExhaustsToDeadLetter(t *testing.T) {
	b := NewMemBus()
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "run.queued.*", SubscribeOptions{MaxDeliver: 2})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), domain.RunQueuedEvent{PipelineName: "flaky"}))

	for i := 0; i < 2; i++ {
		select {
		case d := <-sub.Deliveries():
			require.NoError(t, d.Nak())
		case <-time.After(time.Second):
			t.Fatalf("expected delivery attempt %d", i+1)
		}
	}

	select {
	case <-sub.Deliveries():
		t.Fatal("should not redeliver past max_deliver")
	case <-time.After(50 * time.Millisecond):
	}

	dlq := b.DeadLettered()
	require.Len(t, dlq, 1)
	assert.Equal(t, "run.queued.flaky", dlq[0].Subject)
}

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"run.>", "run.queued.ci", true},
		{"run.*.stage.*.completed", "run.r1.stage.build.completed", true},
		{"run.*.stage.*.completed", "run.r1.stage.build.started", false},
		{"agent.*.heartbeat", "agent.a1.heartbeat", true},
		{"agent.*.heartbeat", "agent.a1.job", false},
		{"run.>", "agent.a1.job", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchSubject(c.pattern, c.subject), "%s vs %s", c.pattern, c.subject)
	}
}
