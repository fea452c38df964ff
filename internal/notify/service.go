package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers run and approval-gate notifications to Slack.
// Nil-safe: every method is a no-op when the service itself is nil, so
// callers don't need their own enabled/disabled branch.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a Service, or nil if Token or Channel is empty
// (disabled configuration).
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NotifyApprovalRequested posts an approve/reject prompt for a newly
// opened approval gate. Fail-open: delivery errors are logged, never
// returned, so a Slack outage never blocks the scheduler.
func (s *Service) NotifyApprovalRequested(ctx context.Context, pipelineName, stageName string, gateID, runID domain.ID) {
	if s == nil {
		return
	}
	blocks := buildApprovalRequestedMessage(pipelineName, stageName, gateID, runID, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("failed to send approval-requested notification",
			"gate_id", gateID, "run_id", runID, "error", err)
	}
}

// NotifyRunCompleted posts a terminal run-status notification.
func (s *Service) NotifyRunCompleted(ctx context.Context, pipelineName string, runID domain.ID, status domain.RunStatus, reason *domain.FailureReason) {
	if s == nil {
		return
	}
	blocks := buildRunCompletedMessage(pipelineName, runID, status, reason, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("failed to send run-completed notification",
			"run_id", runID, "status", status, "error", err)
	}
}
