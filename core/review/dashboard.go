package review

import (
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

type (
	// SubmissionSummary is one flat dashboard row derived from a submission
	// and its assignment/task context.
	SubmissionSummary struct {
		AssignmentID    int         `json:"assignment_id"`
		SubmissionID    int         `json:"submission_id"`
		ParticipantID   int         `json:"participant_id"`
		ParticipantName string      `json:"participant_name"`
		TaskID          int         `json:"task_id"`
		TaskTitle       string      `json:"task_title"`
		ArtifactType    string      `json:"artifact_type"`
		SubmittedAt     time.Time   `json:"submitted_at"`
		TimeSpentSecs   int         `json:"time_spent_seconds"`
		ReviewerStatus  null.String `json:"reviewer_status,omitempty"`
		QualityScore    null.Int    `json:"quality_score,omitempty"`
		ReviewerNotes   string      `json:"reviewer_notes,omitempty"`
		AnnotationCount int         `json:"annotation_count"`
	}

	Stats struct {
		TotalEvaluations      int          `json:"total_evaluations"`
		ValidEvaluations      int          `json:"valid_evaluations"`
		SuspiciousEvaluations int          `json:"suspicious_evaluations"`
		IncompleteEvaluations int          `json:"incomplete_evaluations"`
		FastEvaluations       int          `json:"fast_evaluations"`
		AverageQualityScore   null.Float64 `json:"average_quality_score"`
	}

	ParticipantSummary struct {
		ParticipantID       int          `json:"participant_id"`
		ParticipantName     string       `json:"participant_name"`
		EvaluationCount     int          `json:"evaluation_count"`
		SuspiciousCount     int          `json:"suspicious_count"`
		IncompleteCount     int          `json:"incomplete_count"`
		AverageQualityScore null.Float64 `json:"average_quality_score"`
	}

	FilterOption struct {
		ID    int    `json:"id"`
		Label string `json:"label"`
	}

	// FilterOptions catalogs the distinct values present in the unfiltered
	// summary set, for populating UI filter controls.
	FilterOptions struct {
		Participants  []FilterOption `json:"participants"`
		Tasks         []FilterOption `json:"tasks"`
		Statuses      []string       `json:"statuses"`
		TaskTypes     []string       `json:"task_types"`
		QualityScores []int          `json:"quality_scores"`
	}

	Dashboard struct {
		StudyID              int                  `json:"study_id"`
		StudyName            string               `json:"study_name"`
		Stats                Stats                `json:"stats"`
		Evaluations          []SubmissionSummary  `json:"evaluations"`
		Suspicious           []SubmissionSummary  `json:"suspicious_evaluations"`
		Incomplete           []SubmissionSummary  `json:"incomplete_evaluations"`
		Fast                 []SubmissionSummary  `json:"fast_evaluations"`
		QualityDistribution  map[int]int          `json:"quality_distribution"`
		ParticipantSummaries []ParticipantSummary `json:"participant_summaries"`
		FilterOptions        FilterOptions        `json:"filter_options"`
		FastThresholdSeconds int                  `json:"fast_threshold_seconds"`
	}
)

// BuildDashboard runs the aggregation pipeline over a study's submission
// summaries: filter, derive the suspicious/incomplete/fast subsets, the
// quality histogram, stats and per-participant rollups. Filter options are
// derived from the unfiltered set. Pure, so trivially testable and
// cacheable.
func BuildDashboard(summaries []SubmissionSummary, filter *DashboardFilter, fastThresholdSeconds int) Dashboard {
	filtered := applyFilter(summaries, filter)

	fast := make([]SubmissionSummary, 0)
	for _, item := range filtered {
		if item.TimeSpentSecs > 0 && item.TimeSpentSecs < fastThresholdSeconds {
			fast = append(fast, item)
		}
	}

	return Dashboard{
		Stats:                buildStats(filtered, len(fast)),
		Evaluations:          filtered,
		Suspicious:           filterByStatus(filtered, StatusSuspicious),
		Incomplete:           filterByStatus(filtered, StatusIncomplete),
		Fast:                 fast,
		QualityDistribution:  qualityDistribution(filtered),
		ParticipantSummaries: participantSummaries(filtered),
		FilterOptions:        buildFilterOptions(summaries),
		FastThresholdSeconds: fastThresholdSeconds,
	}
}

// applyFilter applies the caller's predicates conjunctively; every predicate
// is optional.
func applyFilter(summaries []SubmissionSummary, filter *DashboardFilter) []SubmissionSummary {
	filtered := make([]SubmissionSummary, 0, len(summaries))
	if filter == nil {
		return append(filtered, summaries...)
	}
	for _, item := range summaries {
		if filter.ParticipantID != nil && item.ParticipantID != *filter.ParticipantID {
			continue
		}
		if filter.ReviewerStatus != "" && item.ReviewerStatus.String != filter.ReviewerStatus {
			continue
		}
		if filter.TaskID != nil && item.TaskID != *filter.TaskID {
			continue
		}
		if filter.TaskType != "" && item.ArtifactType != filter.TaskType {
			continue
		}
		if !filter.SubmittedFrom.IsZero() && item.SubmittedAt.Before(filter.SubmittedFrom) {
			continue
		}
		if !filter.SubmittedTo.IsZero() && item.SubmittedAt.After(filter.SubmittedTo) {
			continue
		}
		if filter.QualityScore != nil && (!item.QualityScore.Valid || int(item.QualityScore.Int) != *filter.QualityScore) {
			continue
		}
		if filter.MinQualityScore != nil && (!item.QualityScore.Valid || int(item.QualityScore.Int) < *filter.MinQualityScore) {
			continue
		}
		if filter.MaxQualityScore != nil && (!item.QualityScore.Valid || int(item.QualityScore.Int) > *filter.MaxQualityScore) {
			continue
		}
		if filter.MinTimeSeconds != nil && item.TimeSpentSecs < *filter.MinTimeSeconds {
			continue
		}
		if filter.MaxTimeSeconds != nil && item.TimeSpentSecs > *filter.MaxTimeSeconds {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

func filterByStatus(summaries []SubmissionSummary, status string) []SubmissionSummary {
	matched := make([]SubmissionSummary, 0)
	for _, item := range summaries {
		if item.ReviewerStatus.String == status {
			matched = append(matched, item)
		}
	}
	return matched
}

// qualityDistribution buckets reviewer quality scores 1-5. All five buckets
// are always present, even when zero.
func qualityDistribution(summaries []SubmissionSummary) map[int]int {
	distribution := make(map[int]int, 5)
	for i := 1; i <= 5; i++ {
		distribution[i] = 0
	}
	for _, item := range summaries {
		if item.QualityScore.Valid {
			distribution[int(item.QualityScore.Int)]++
		}
	}
	return distribution
}

func buildStats(summaries []SubmissionSummary, fastCount int) Stats {
	stats := Stats{
		TotalEvaluations: len(summaries),
		FastEvaluations:  fastCount,
	}
	scoreSum, scoreCount := 0, 0
	for _, item := range summaries {
		switch item.ReviewerStatus.String {
		case StatusValid:
			stats.ValidEvaluations++
		case StatusSuspicious:
			stats.SuspiciousEvaluations++
		case StatusIncomplete:
			stats.IncompleteEvaluations++
		}
		if item.QualityScore.Valid {
			scoreSum += int(item.QualityScore.Int)
			scoreCount++
		}
	}
	// absence of any score yields a null average, not zero
	if scoreCount > 0 {
		stats.AverageQualityScore = null.Float64From(float64(scoreSum) / float64(scoreCount))
	}
	return stats
}

func participantSummaries(summaries []SubmissionSummary) []ParticipantSummary {
	grouped := make(map[int][]SubmissionSummary)
	order := make([]int, 0)
	for _, item := range summaries {
		if _, seen := grouped[item.ParticipantID]; !seen {
			order = append(order, item.ParticipantID)
		}
		grouped[item.ParticipantID] = append(grouped[item.ParticipantID], item)
	}

	rollups := make([]ParticipantSummary, 0, len(order))
	for _, pid := range order {
		items := grouped[pid]
		summary := ParticipantSummary{
			ParticipantID:   pid,
			ParticipantName: items[0].ParticipantName,
			EvaluationCount: len(items),
		}
		scoreSum, scoreCount := 0, 0
		for _, item := range items {
			switch item.ReviewerStatus.String {
			case StatusSuspicious:
				summary.SuspiciousCount++
			case StatusIncomplete:
				summary.IncompleteCount++
			}
			if item.QualityScore.Valid {
				scoreSum += int(item.QualityScore.Int)
				scoreCount++
			}
		}
		if scoreCount > 0 {
			summary.AverageQualityScore = null.Float64From(float64(scoreSum) / float64(scoreCount))
		}
		rollups = append(rollups, summary)
	}
	return rollups
}

func buildFilterOptions(summaries []SubmissionSummary) FilterOptions {
	participants := make(map[int]string)
	tasks := make(map[int]string)
	taskTypes := make(map[string]struct{})
	qualityScores := make(map[int]struct{})
	for _, item := range summaries {
		if _, seen := participants[item.ParticipantID]; !seen {
			participants[item.ParticipantID] = item.ParticipantName
		}
		if _, seen := tasks[item.TaskID]; !seen {
			tasks[item.TaskID] = item.TaskTitle
		}
		if item.ArtifactType != "" {
			taskTypes[item.ArtifactType] = struct{}{}
		}
		if item.QualityScore.Valid {
			qualityScores[int(item.QualityScore.Int)] = struct{}{}
		}
	}

	options := FilterOptions{
		Participants:  sortedOptions(participants),
		Tasks:         sortedOptions(tasks),
		Statuses:      AllStatuses,
		TaskTypes:     make([]string, 0, len(taskTypes)),
		QualityScores: make([]int, 0, len(qualityScores)),
	}
	for t := range taskTypes {
		options.TaskTypes = append(options.TaskTypes, t)
	}
	sort.Strings(options.TaskTypes)
	for s := range qualityScores {
		options.QualityScores = append(options.QualityScores, s)
	}
	sort.Ints(options.QualityScores)
	return options
}

func sortedOptions(byID map[int]string) []FilterOption {
	options := make([]FilterOption, 0, len(byID))
	for id, label := range byID {
		options = append(options, FilterOption{ID: id, Label: label})
	}
	sort.Slice(options, func(i, j int) bool {
		li, lj := strings.ToLower(options[i].Label), strings.ToLower(options[j].Label)
		if li == lj {
			return options[i].ID < options[j].ID
		}
		return li < lj
	})
	return options
}
