package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

var runStatusEmoji = map[domain.RunStatus]string{
	domain.RunSuccess:   ":white_check_mark:",
	domain.RunFailure:   ":x:",
	domain.RunCancelled: ":no_entry_sign:",
	domain.RunTimeout:   ":hourglass:",
}

func runURL(dashboardURL string, runID domain.ID) string {
	return fmt.Sprintf("%s/runs/%s", dashboardURL, runID)
}

// buildApprovalRequestedMessage builds the Block Kit payload posted when a
// stage enters an approval gate.
func buildApprovalRequestedMessage(pipelineName, stageName string, gateID, runID domain.ID, dashboardURL string) []goslack.Block {
	text := fmt.Sprintf(":raised_hand: *Approval needed* for `%s` / stage `%s`\n<%s|View run>",
		pipelineName, stageName, runURL(dashboardURL, runID))

	approveBtn := goslack.NewButtonBlockElement("approve", gateID.String(),
		goslack.NewTextBlockObject(goslack.PlainTextType, "Approve", false, false))
	approveBtn.Style = goslack.StylePrimary

	rejectBtn := goslack.NewButtonBlockElement("reject", gateID.String(),
		goslack.NewTextBlockObject(goslack.PlainTextType, "Reject", false, false))
	rejectBtn.Style = goslack.StyleDanger

	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
		goslack.NewActionBlock("approval_"+gateID.String(), approveBtn, rejectBtn),
	}
}

// buildRunCompletedMessage builds the Block Kit payload posted when a run
// reaches a terminal status.
func buildRunCompletedMessage(pipelineName string, runID domain.ID, status domain.RunStatus, reason *domain.FailureReason, dashboardURL string) []goslack.Block {
	emoji := runStatusEmoji[status]
	if emoji == "" {
		emoji = ":question:"
	}

	text := fmt.Sprintf("%s *%s* — `%s`\n<%s|View run>", emoji, pipelineName, status, runURL(dashboardURL, runID))
	if reason != nil {
		text += fmt.Sprintf("\n*Reason:* %s", reason.Message)
	}

	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}
