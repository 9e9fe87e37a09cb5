package review

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
)

// Reviewer verdict statuses
const (
	StatusValid      = "VALID"
	StatusSuspicious = "SUSPICIOUS"
	StatusIncomplete = "INCOMPLETE"
)

// AllStatuses lists the verdicts a reviewer can record, in display order.
var AllStatuses = []string{StatusValid, StatusSuspicious, StatusIncomplete}

// ReviewerAssignment statuses
const (
	AssignmentPending    = "PENDING"
	AssignmentAccepted   = "ACCEPTED"
	AssignmentDeclined   = "DECLINED"
	AssignmentInProgress = "IN_PROGRESS"
	AssignmentCompleted  = "COMPLETED"
)

// ReviewerAssignment binds a reviewer to a study, with running counters
// feeding the reviewer's progress percentage.
type ReviewerAssignment struct {
	ID            int       `json:"id"`
	StudyID       int       `json:"study_id"`
	ReviewerID    int       `json:"reviewer_id"`
	AssignedBy    int       `json:"assigned_by"`
	Status        string    `json:"status"`
	AssignedAt    time.Time `json:"assigned_at"` // UTC
	AcceptedAt    null.Time `json:"accepted_at,omitempty"`
	DeclinedAt    null.Time `json:"declined_at,omitempty"`
	CompletedAt   null.Time `json:"completed_at,omitempty"`
	DeclineReason string    `json:"decline_reason,omitempty"`
	ReviewerNotes string    `json:"reviewer_notes,omitempty"`

	TotalEvaluations    int `json:"total_evaluations"`
	ReviewedEvaluations int `json:"reviewed_evaluations"`
	AcceptedEvaluations int `json:"accepted_evaluations"`
	RejectedEvaluations int `json:"rejected_evaluations"`
	FlaggedEvaluations  int `json:"flagged_evaluations"`
}

func (ra *ReviewerAssignment) Accept() error {
	if ra.Status != AssignmentPending {
		return core.NewStateError("can only accept pending assignments")
	}
	ra.Status = AssignmentAccepted
	ra.AcceptedAt = null.TimeFrom(time.Now().UTC())
	return nil
}

func (ra *ReviewerAssignment) Decline(reason string) error {
	if ra.Status != AssignmentPending {
		return core.NewStateError("can only decline pending assignments")
	}
	ra.Status = AssignmentDeclined
	ra.DeclinedAt = null.TimeFrom(time.Now().UTC())
	ra.DeclineReason = reason
	return nil
}

// StartReviewing advances an accepted assignment on the reviewer's first
// decision. Never regresses.
func (ra *ReviewerAssignment) StartReviewing() {
	if ra.Status == AssignmentAccepted {
		ra.Status = AssignmentInProgress
	}
}

// MarkCompleted closes the assignment once every evaluation is reviewed.
func (ra *ReviewerAssignment) MarkCompleted() {
	if ra.Status == AssignmentInProgress {
		ra.Status = AssignmentCompleted
		ra.CompletedAt = null.TimeFrom(time.Now().UTC())
	}
}

func (ra *ReviewerAssignment) ProgressPercentage() int {
	if ra.TotalEvaluations == 0 {
		return 0
	}
	return (ra.ReviewedEvaluations * 100) / ra.TotalEvaluations
}

func (ra *ReviewerAssignment) CanReview() bool {
	return ra.Status == AssignmentAccepted || ra.Status == AssignmentInProgress
}

// Decision is a reviewer's quality verdict on one submission.
type Decision struct {
	Status       string   `json:"status" validate:"required,oneof=VALID SUSPICIOUS INCOMPLETE"`
	QualityScore null.Int `json:"quality_score"`
	Notes        string   `json:"notes"`
}

func (d *Decision) Validate() error {
	return core.Validate.Struct(d)
}

// DashboardFilter holds the optional, conjunctive predicates applied to the
// dashboard's submission summaries.
type DashboardFilter struct {
	ParticipantID   *int      `query:"participant_id"`
	ReviewerStatus  string    `query:"reviewer_status"`
	TaskID          *int      `query:"task_id"`
	TaskType        string    `query:"task_type"`
	SubmittedFrom   time.Time `query:"submitted_from"`
	SubmittedTo     time.Time `query:"submitted_to"`
	QualityScore    *int      `query:"quality_score"`
	MinQualityScore *int      `query:"min_quality_score"`
	MaxQualityScore *int      `query:"max_quality_score"`
	MinTimeSeconds  *int      `query:"min_time_seconds"`
	MaxTimeSeconds  *int      `query:"max_time_seconds"`
}
