// Package signal detects human approvals and worker completion markers in
// an externally maintained, time-ordered comment stream. The poller only
// reads; everything it detects is handed to the control loop through the
// Notifier contract, so the loop remains the sole mutator of workflow
// state.
package signal

import (
	"context"
	"strings"
	"time"

	"github.com/farmer1st/farmcode/id"
)

// CompletionMarker is the token a worker posts when it finishes a phase.
const CompletionMarker = "✅"

// approvalKeywords are matched case-insensitively anywhere in a comment.
var approvalKeywords = []string{"approved", "lgtm", "approve"}

// Comment is one message in a workflow's timeline.
type Comment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineSource serves the time-ordered comment list for a workflow.
// Implementations wrap whatever tracker hosts the conversation.
type TimelineSource interface {
	Comments(ctx context.Context, workflowID id.WorkflowID) ([]Comment, error)
}

// Approval is a detected human approval signal.
type Approval struct {
	Approver string    `json:"approver"`
	At       time.Time `json:"at"`
}

// Completion is a detected worker completion signal.
type Completion struct {
	Author  string    `json:"author"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// DetectApproval returns the most recent approval strictly after since, or
// false if none.
func DetectApproval(comments []Comment, since time.Time) (Approval, bool) {
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		if !c.CreatedAt.After(since) {
			continue
		}
		if containsApproval(c.Body) {
			return Approval{Approver: c.Author, At: c.CreatedAt}, true
		}
	}
	return Approval{}, false
}

// DetectCompletions returns every completion marker strictly after since,
// in timeline order.
func DetectCompletions(comments []Comment, since time.Time) []Completion {
	var out []Completion
	for _, c := range comments {
		if !c.CreatedAt.After(since) {
			continue
		}
		if !strings.Contains(c.Body, CompletionMarker) {
			continue
		}
		out = append(out, Completion{
			Author:  c.Author,
			Summary: extractSummary(c.Body),
			At:      c.CreatedAt,
		})
	}
	return out
}

func containsApproval(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range approvalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractSummary takes the text following the completion marker, or the
// first non-empty line as a fallback.
func extractSummary(body string) string {
	lines := strings.Split(body, "\n")

	var summary []string
	capture := false
	for _, line := range lines {
		if strings.Contains(line, CompletionMarker) {
			capture = true
			_, after, _ := strings.Cut(line, CompletionMarker)
			if after = strings.TrimSpace(after); after != "" {
				summary = append(summary, after)
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if capture && strings.HasPrefix(trimmed, "**") {
			break
		}
		if capture && trimmed != "" {
			summary = append(summary, trimmed)
		}
	}
	if len(summary) > 0 {
		return strings.Join(summary, " ")
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return trimmed
		}
	}
	return "phase completed"
}
