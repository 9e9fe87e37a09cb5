package review

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
)

func summary(participantID int, name string, taskID int, status string, score, timeSpent int) SubmissionSummary {
	s := SubmissionSummary{
		ParticipantID:   participantID,
		ParticipantName: name,
		TaskID:          taskID,
		TaskTitle:       "Task",
		ArtifactType:    "BUG_REPORT",
		SubmittedAt:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		TimeSpentSecs:   timeSpent,
	}
	if status != "" {
		s.ReviewerStatus = null.StringFrom(status)
	}
	if score > 0 {
		s.QualityScore = null.IntFrom(score)
	}
	return s
}

func TestBuildDashboard(t *testing.T) {
	summaries := []SubmissionSummary{
		summary(1, "Ada", 10, StatusValid, 1, 120),
		summary(1, "Ada", 10, StatusValid, 3, 90),
		summary(2, "Bob", 11, StatusSuspicious, 3, 10),
		summary(3, "Cleo", 11, StatusIncomplete, 5, 45),
	}

	dashboard := BuildDashboard(summaries, nil, 20)

	stats := dashboard.Stats
	if stats.TotalEvaluations != 4 {
		t.Errorf("TotalEvaluations = %d, want 4", stats.TotalEvaluations)
	}
	if stats.ValidEvaluations != 2 || stats.SuspiciousEvaluations != 1 || stats.IncompleteEvaluations != 1 {
		t.Errorf("status counts = %d/%d/%d, want 2/1/1",
			stats.ValidEvaluations, stats.SuspiciousEvaluations, stats.IncompleteEvaluations)
	}
	if !stats.AverageQualityScore.Valid || stats.AverageQualityScore.Float64 != 3.0 {
		t.Errorf("AverageQualityScore = %+v, want 3.0", stats.AverageQualityScore)
	}

	// the histogram always carries all five buckets
	wantDistribution := map[int]int{1: 1, 2: 0, 3: 2, 4: 0, 5: 1}
	if !reflect.DeepEqual(dashboard.QualityDistribution, wantDistribution) {
		t.Errorf("QualityDistribution = %v, want %v", dashboard.QualityDistribution, wantDistribution)
	}

	// only the 10s evaluation is under the 20s threshold; zero is not "fast"
	if stats.FastEvaluations != 1 || len(dashboard.Fast) != 1 || dashboard.Fast[0].ParticipantID != 2 {
		t.Errorf("fast subset = %+v (count %d), want the 10s evaluation only", dashboard.Fast, stats.FastEvaluations)
	}

	if len(dashboard.Suspicious) != 1 || len(dashboard.Incomplete) != 1 {
		t.Errorf("suspicious/incomplete subsets = %d/%d, want 1/1", len(dashboard.Suspicious), len(dashboard.Incomplete))
	}

	if len(dashboard.ParticipantSummaries) != 3 {
		t.Fatalf("got %d participant summaries, want 3", len(dashboard.ParticipantSummaries))
	}
	ada := dashboard.ParticipantSummaries[0]
	if ada.EvaluationCount != 2 || !ada.AverageQualityScore.Valid || ada.AverageQualityScore.Float64 != 2.0 {
		t.Errorf("Ada rollup = %+v, want 2 evaluations averaging 2.0", ada)
	}
}

func TestBuildDashboard_nullAverage(t *testing.T) {
	summaries := []SubmissionSummary{summary(1, "Ada", 10, "", 0, 60)}

	dashboard := BuildDashboard(summaries, nil, 20)
	if dashboard.Stats.AverageQualityScore.Valid {
		t.Errorf("AverageQualityScore = %+v, want null when no scores exist", dashboard.Stats.AverageQualityScore)
	}
}

func TestBuildDashboard_filter(t *testing.T) {
	summaries := []SubmissionSummary{
		summary(1, "Ada", 10, StatusValid, 4, 120),
		summary(1, "Ada", 11, StatusSuspicious, 2, 15),
		summary(2, "Bob", 10, StatusValid, 5, 200),
	}

	pid := 1
	filter := &DashboardFilter{ParticipantID: &pid, ReviewerStatus: StatusValid}
	dashboard := BuildDashboard(summaries, filter, 20)

	// predicates are conjunctive
	if len(dashboard.Evaluations) != 1 || dashboard.Evaluations[0].TaskID != 10 {
		t.Errorf("Evaluations = %+v, want Ada's valid evaluation only", dashboard.Evaluations)
	}

	// filter options reflect the unfiltered set
	opts := dashboard.FilterOptions
	if len(opts.Participants) != 2 || len(opts.Tasks) != 2 {
		t.Errorf("options participants/tasks = %d/%d, want 2/2", len(opts.Participants), len(opts.Tasks))
	}
	if !reflect.DeepEqual(opts.Statuses, AllStatuses) {
		t.Errorf("Statuses = %v, want %v", opts.Statuses, AllStatuses)
	}
	if !reflect.DeepEqual(opts.QualityScores, []int{2, 4, 5}) {
		t.Errorf("QualityScores = %v, want [2 4 5]", opts.QualityScores)
	}

	minScore := 5
	dashboard = BuildDashboard(summaries, &DashboardFilter{MinQualityScore: &minScore}, 20)
	if len(dashboard.Evaluations) != 1 || dashboard.Evaluations[0].ParticipantID != 2 {
		t.Errorf("min score filter kept %+v, want Bob's evaluation only", dashboard.Evaluations)
	}
}

func TestReviewerAssignment_stateMachine(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		ra := ReviewerAssignment{Status: AssignmentPending}
		if err := ra.Accept(); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
		if ra.Status != AssignmentAccepted || !ra.AcceptedAt.Valid {
			t.Errorf("after Accept(): %+v", ra)
		}
		var stateErr *core.StateError
		if err := ra.Accept(); !errors.As(err, &stateErr) {
			t.Errorf("second Accept() error = %v, want *core.StateError", err)
		}
	})

	t.Run("decline", func(t *testing.T) {
		ra := ReviewerAssignment{Status: AssignmentPending}
		if err := ra.Decline("workload"); err != nil {
			t.Fatalf("Decline() error = %v", err)
		}
		if ra.Status != AssignmentDeclined || ra.DeclineReason != "workload" {
			t.Errorf("after Decline(): %+v", ra)
		}
		var stateErr *core.StateError
		if err := ra.Accept(); !errors.As(err, &stateErr) {
			t.Errorf("Accept() after decline error = %v, want *core.StateError", err)
		}
	})

	t.Run("progress", func(t *testing.T) {
		ra := ReviewerAssignment{Status: AssignmentPending}
		ra.StartReviewing() // no-op before acceptance
		if ra.Status != AssignmentPending {
			t.Errorf("StartReviewing() advanced a pending assignment to %s", ra.Status)
		}
		ra.Status = AssignmentAccepted
		ra.StartReviewing()
		if ra.Status != AssignmentInProgress {
			t.Errorf("StartReviewing() = %s, want %s", ra.Status, AssignmentInProgress)
		}
		ra.MarkCompleted()
		if ra.Status != AssignmentCompleted || !ra.CompletedAt.Valid {
			t.Errorf("after MarkCompleted(): %+v", ra)
		}
	})

	t.Run("percentage", func(t *testing.T) {
		ra := ReviewerAssignment{}
		if got := ra.ProgressPercentage(); got != 0 {
			t.Errorf("ProgressPercentage() = %d, want 0 when no evaluations exist", got)
		}
		ra.TotalEvaluations, ra.ReviewedEvaluations = 3, 2
		if got := ra.ProgressPercentage(); got != 66 {
			t.Errorf("ProgressPercentage() = %d, want 66", got)
		}
	})
}

func Test_decisionLabel(t *testing.T) {
	tests := []struct {
		status null.String
		want   string
	}{
		{status: null.StringFrom(StatusValid), want: "approved"},
		{status: null.StringFrom(StatusSuspicious), want: "flagged"},
		{status: null.StringFrom(StatusIncomplete), want: "incomplete"},
		{status: null.String{}, want: ""},
	}
	for _, tt := range tests {
		if got := decisionLabel(tt.status); got != tt.want {
			t.Errorf("decisionLabel(%v) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func Test_formatTimeSpent(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{seconds: 0, want: "—"},
		{seconds: -5, want: "—"},
		{seconds: 45, want: "45s"},
		{seconds: 60, want: "1m 00s"},
		{seconds: 95, want: "1m 35s"},
		{seconds: 605, want: "10m 05s"},
	}
	for _, tt := range tests {
		if got := formatTimeSpent(tt.seconds); got != tt.want {
			t.Errorf("formatTimeSpent(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func Test_snapshotAnnotationCount(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		want     int
	}{
		{name: "empty", snapshot: "", want: 0},
		{name: "bare array", snapshot: `[{"type":"NOTE"},{"type":"TAG"}]`, want: 2},
		{name: "wrapped", snapshot: `{"annotations":[{"type":"NOTE"}],"scores":[]}`, want: 1},
		{name: "no annotations key", snapshot: `{"scores":[1,2]}`, want: 0},
		{name: "not json array", snapshot: `{"annotations":{"a":1}}`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapshotAnnotationCount([]byte(tt.snapshot)); got != tt.want {
				t.Errorf("snapshotAnnotationCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
