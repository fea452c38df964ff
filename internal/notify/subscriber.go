package notify

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// RunLookup resolves a run's pipeline name for approval notifications,
// which carry only a run ID on the wire.
type RunLookup interface {
	Get(ctx context.Context, id domain.ID) (*domain.Run, error)
}

// Subscriber drives Service off the event bus, so Slack delivery lives
// entirely outside the scheduler's dispatch path.
type Subscriber struct {
	bus     bus.Bus
	service *Service
	runs    RunLookup
	logger  *slog.Logger
}

// NewSubscriber wires service to the bus. If service is nil (Slack
// disabled), Start still subscribes but every delivery is a no-op.
func NewSubscriber(b bus.Bus, service *Service, runs RunLookup) *Subscriber {
	return &Subscriber{bus: b, service: service, runs: runs, logger: slog.Default().With("component", "notify-subscriber")}
}

// Start subscribes to approval and run-completion subjects under the
// shared consumer group "notify-slack", so only one replica delivers
// each notification.
func (s *Subscriber) Start(ctx context.Context) error {
	approvals, err := s.bus.Subscribe(ctx, "approval.*.requested", bus.SubscribeOptions{Group: "notify-slack"})
	if err != nil {
		return err
	}
	go s.consume(ctx, approvals)

	completions, err := s.bus.Subscribe(ctx, "run.completed.*.*", bus.SubscribeOptions{Group: "notify-slack"})
	if err != nil {
		return err
	}
	go s.consume(ctx, completions)

	return nil
}

func (s *Subscriber) consume(ctx context.Context, sub bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-sub.Deliveries():
			if !ok {
				return
			}
			s.handle(ctx, d)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, d bus.Delivery) {
	switch evt := d.Event.(type) {
	case domain.ApprovalRequestedEvent:
		pipelineName := ""
		if run, err := s.runs.Get(ctx, evt.RunID); err == nil {
			pipelineName = run.PipelineName
		}
		s.service.NotifyApprovalRequested(ctx, pipelineName, evt.StageName, evt.GateID, evt.RunID)
	case domain.RunCompletedEvent:
		s.service.NotifyRunCompleted(ctx, evt.PipelineName, evt.RunID, evt.Status, evt.FailureReason)
	default:
		s.logger.Warn("unexpected event on notify subjects", "type", d.Event.Type())
	}
	_ = d.Ack()
}
