package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/evaluation"
	"github.com/insightlab/insightlab/core/user"
)

// DefaultFastThresholdSeconds flags evaluations completed implausibly fast.
const DefaultFastThresholdSeconds = 20

var (
	// errors
	ErrReviewerAssignmentNotFound = errors.New("reviewer assignment not found")
	ErrNotAssigned                = errors.New("you are not assigned to this study as a reviewer")
	ErrAssignmentDeclined         = errors.New("reviewer assignment is declined for this study")
)

type (
	Repository interface {
		CreateReviewerAssignment(ra ReviewerAssignment) (ReviewerAssignment, error)
		GetReviewerAssignmentByID(id int) (ReviewerAssignment, error)
		// GetReviewerAssignment returns the reviewer's assignment for a study,
		// ErrReviewerAssignmentNotFound when none exists.
		GetReviewerAssignment(studyID, reviewerID int) (ReviewerAssignment, error)
		FilterReviewerAssignmentsByReviewer(reviewerID int) ([]ReviewerAssignment, error)
		FilterReviewerAssignmentsByStudy(studyID int) ([]ReviewerAssignment, error)
		UpdateReviewerAssignment(ra ReviewerAssignment) (ReviewerAssignment, error)
	}

	Service struct {
		repo          Repository
		evalRepo      evaluation.Repository
		usrRepo       user.Repository
		notifSvc      core.NotificationService
		logger        core.Logger
		fastThreshold int
	}
)

func NewService(
	repo Repository,
	evalRepo evaluation.Repository,
	usrRepo user.Repository,
	notifSvc core.NotificationService,
	logger core.Logger,
	fastThresholdSeconds int,
) *Service {
	if fastThresholdSeconds <= 0 {
		fastThresholdSeconds = DefaultFastThresholdSeconds
	}
	return &Service{
		repo:          repo,
		evalRepo:      evalRepo,
		usrRepo:       usrRepo,
		notifSvc:      notifSvc,
		logger:        logger,
		fastThreshold: fastThresholdSeconds,
	}
}

// ---------------------------------------------------------------------------
// Reviewer assignment lifecycle

// AssignResult reports the outcome of a bulk reviewer assignment.
type AssignResult struct {
	Assignments     []ReviewerAssignment `json:"assignments"`
	AssignedCount   int                  `json:"assigned_count"`
	AlreadyAssigned []string             `json:"already_assigned_reviewers"`
	Message         string               `json:"message"`
}

// AssignReviewers binds reviewers to a study. Reviewers that already hold a
// non-declined assignment are reported, not re-assigned.
func (svc *Service) AssignReviewers(studyID int, researcher user.User, reviewerIDs []int) (AssignResult, error) {
	study, err := svc.evalRepo.GetStudyByID(studyID)
	if err != nil {
		if errors.Is(err, evaluation.ErrStudyNotFound) {
			return AssignResult{}, core.NewNotFoundError(err.Error())
		}
		return AssignResult{}, err
	}
	if study.ResearcherID != researcher.ID && !researcher.IsAdmin() {
		return AssignResult{}, core.NewAuthorizationError("you can only assign reviewers to your own studies")
	}

	reviewers, err := svc.usrRepo.GetUsersByID(reviewerIDs)
	if err != nil {
		return AssignResult{}, err
	}
	if len(reviewers) != len(reviewerIDs) {
		return AssignResult{}, core.NewNotFoundError("some reviewer ids are invalid")
	}
	for _, reviewer := range reviewers {
		if !reviewer.IsReviewer() {
			return AssignResult{}, core.NewValidationError(
				errors.New("some selected users are not reviewers"),
				core.FieldError{Field: "reviewer_ids", Error: fmt.Sprintf("%s is not a reviewer", reviewer.DisplayName())},
			)
		}
	}

	submissions, err := svc.evalRepo.FilterSubmissionsByStudy(studyID)
	if err != nil {
		return AssignResult{}, err
	}

	var result AssignResult
	for _, reviewer := range reviewers {
		existing, err := svc.repo.GetReviewerAssignment(studyID, reviewer.ID)
		if err == nil && existing.Status != AssignmentDeclined {
			result.AlreadyAssigned = append(result.AlreadyAssigned, reviewer.DisplayName())
			continue
		}
		if err != nil && !errors.Is(err, ErrReviewerAssignmentNotFound) {
			return result, err
		}

		assignment, err := svc.repo.CreateReviewerAssignment(ReviewerAssignment{
			StudyID:          studyID,
			ReviewerID:       reviewer.ID,
			AssignedBy:       researcher.ID,
			Status:           AssignmentPending,
			AssignedAt:       time.Now().UTC(),
			TotalEvaluations: len(submissions),
		})
		if err != nil {
			return result, err
		}
		result.Assignments = append(result.Assignments, assignment)
		result.AssignedCount++

		svc.notify(reviewer, researcher, core.NotificationReviewAssigned,
			"New review assignment",
			fmt.Sprintf("%s assigned you to review evaluations for study %q.", researcher.DisplayName(), study.Name),
			studyID)
	}
	result.Message = fmt.Sprintf("%d reviewer(s) assigned successfully", result.AssignedCount)
	return result, nil
}

func (svc *Service) ReviewerAssignments(reviewerID int) ([]ReviewerAssignment, error) {
	return svc.repo.FilterReviewerAssignmentsByReviewer(reviewerID)
}

func (svc *Service) StudyAssignments(studyID int, researcher user.User) ([]ReviewerAssignment, error) {
	study, err := svc.evalRepo.GetStudyByID(studyID)
	if err != nil {
		if errors.Is(err, evaluation.ErrStudyNotFound) {
			return nil, core.NewNotFoundError(err.Error())
		}
		return nil, err
	}
	if study.ResearcherID != researcher.ID && !researcher.IsAdmin() {
		return nil, core.NewAuthorizationError("you can only view assignments for your own studies")
	}
	return svc.repo.FilterReviewerAssignmentsByStudy(studyID)
}

func (svc *Service) Accept(assignmentID int, reviewer user.User) (ReviewerAssignment, error) {
	assignment, err := svc.ownedAssignment(assignmentID, reviewer)
	if err != nil {
		return ReviewerAssignment{}, err
	}
	if err = assignment.Accept(); err != nil {
		return ReviewerAssignment{}, err
	}
	return svc.repo.UpdateReviewerAssignment(assignment)
}

func (svc *Service) Decline(assignmentID int, reviewer user.User, reason string) (ReviewerAssignment, error) {
	assignment, err := svc.ownedAssignment(assignmentID, reviewer)
	if err != nil {
		return ReviewerAssignment{}, err
	}
	if err = assignment.Decline(reason); err != nil {
		return ReviewerAssignment{}, err
	}
	return svc.repo.UpdateReviewerAssignment(assignment)
}

func (svc *Service) ownedAssignment(assignmentID int, reviewer user.User) (ReviewerAssignment, error) {
	assignment, err := svc.repo.GetReviewerAssignmentByID(assignmentID)
	if err != nil {
		if errors.Is(err, ErrReviewerAssignmentNotFound) {
			return ReviewerAssignment{}, core.NewNotFoundError(err.Error())
		}
		return ReviewerAssignment{}, err
	}
	if assignment.ReviewerID != reviewer.ID {
		return ReviewerAssignment{}, core.NewAuthorizationError("you can only act on your own assignments")
	}
	return assignment, nil
}

// ensureReviewerAssignment requires the reviewer to hold a non-declined
// assignment for the study.
func (svc *Service) ensureReviewerAssignment(studyID, reviewerID int) (ReviewerAssignment, error) {
	assignment, err := svc.repo.GetReviewerAssignment(studyID, reviewerID)
	if err != nil {
		if errors.Is(err, ErrReviewerAssignmentNotFound) {
			return ReviewerAssignment{}, core.NewAuthorizationError(ErrNotAssigned.Error())
		}
		return ReviewerAssignment{}, err
	}
	if assignment.Status == AssignmentDeclined {
		return ReviewerAssignment{}, core.NewAuthorizationError(ErrAssignmentDeclined.Error())
	}
	return assignment, nil
}

// ---------------------------------------------------------------------------
// Reviewer decision

// DecisionResult reports the recorded verdict.
type DecisionResult struct {
	AssignmentID   int         `json:"assignment_id"`
	SubmissionID   int         `json:"submission_id"`
	ReviewerStatus null.String `json:"reviewer_status"`
	QualityScore   null.Int    `json:"quality_score"`
	Notes          string      `json:"notes,omitempty"`
	ReviewedAt     null.Time   `json:"reviewed_at"`
	ReviewedBy     int         `json:"reviewed_by"`
	ReviewedByName string      `json:"reviewed_by_name"`
}

// RecordDecision stamps the reviewer's verdict on a submission, advances
// the participant's assignment to REVIEWED and the reviewer's study-level
// assignment from ACCEPTED to IN_PROGRESS on the first decision.
func (svc *Service) RecordDecision(assignmentID int, reviewer user.User, d Decision) (DecisionResult, error) {
	if err := d.Validate(); err != nil {
		return DecisionResult{}, err
	}

	assignment, err := svc.evalRepo.GetAssignmentByID(assignmentID)
	if err != nil {
		if errors.Is(err, evaluation.ErrAssignmentNotFound) {
			return DecisionResult{}, core.NewNotFoundError(err.Error())
		}
		return DecisionResult{}, err
	}
	task, err := svc.evalRepo.GetTaskByID(assignment.TaskID)
	if err != nil {
		return DecisionResult{}, err
	}

	reviewerAssignment, err := svc.ensureReviewerAssignment(task.StudyID, reviewer.ID)
	if err != nil {
		return DecisionResult{}, err
	}

	submission, err := svc.evalRepo.GetSubmissionByAssignment(assignmentID)
	if err != nil {
		if errors.Is(err, evaluation.ErrSubmissionNotFound) {
			return DecisionResult{}, core.NewNotFoundError(err.Error())
		}
		return DecisionResult{}, err
	}

	firstDecision := !submission.ReviewerStatus.Valid
	now := time.Now().UTC()
	submission.ReviewerStatus = null.StringFrom(d.Status)
	submission.QualityScore = d.QualityScore
	submission.ReviewerNotes = d.Notes
	submission.ReviewedBy = null.IntFrom(reviewer.ID)
	submission.ReviewedAt = null.TimeFrom(now)
	if submission, err = svc.evalRepo.UpdateSubmission(submission); err != nil {
		return DecisionResult{}, err
	}

	if assignment.Status != evaluation.AssignmentReviewed {
		assignment.Status = evaluation.AssignmentReviewed
		if _, err = svc.evalRepo.UpdateAssignment(assignment); err != nil {
			return DecisionResult{}, err
		}
	}

	reviewerAssignment.StartReviewing()
	if firstDecision {
		reviewerAssignment.ReviewedEvaluations++
		switch d.Status {
		case StatusValid:
			reviewerAssignment.AcceptedEvaluations++
		case StatusSuspicious:
			reviewerAssignment.FlaggedEvaluations++
		case StatusIncomplete:
			reviewerAssignment.RejectedEvaluations++
		}
		if reviewerAssignment.TotalEvaluations > 0 &&
			reviewerAssignment.ReviewedEvaluations >= reviewerAssignment.TotalEvaluations {
			reviewerAssignment.MarkCompleted()
		}
	}
	if _, err = svc.repo.UpdateReviewerAssignment(reviewerAssignment); err != nil {
		return DecisionResult{}, err
	}

	return DecisionResult{
		AssignmentID:   assignmentID,
		SubmissionID:   submission.ID,
		ReviewerStatus: submission.ReviewerStatus,
		QualityScore:   submission.QualityScore,
		Notes:          submission.ReviewerNotes,
		ReviewedAt:     submission.ReviewedAt,
		ReviewedBy:     reviewer.ID,
		ReviewedByName: reviewer.DisplayName(),
	}, nil
}

// ---------------------------------------------------------------------------
// Dashboard, comparison, history

// Dashboard aggregates a study's submissions for the reviewer. A zero or
// negative fast-threshold override is clamped to the configured default
// rather than rejected.
func (svc *Service) Dashboard(studyID int, reviewer user.User, filter *DashboardFilter, fastThresholdSeconds int) (Dashboard, error) {
	if _, err := svc.ensureReviewerAssignment(studyID, reviewer.ID); err != nil {
		return Dashboard{}, err
	}
	study, err := svc.evalRepo.GetStudyByID(studyID)
	if err != nil {
		return Dashboard{}, err
	}

	summaries, err := svc.studySummaries(studyID)
	if err != nil {
		return Dashboard{}, err
	}

	if fastThresholdSeconds <= 0 {
		fastThresholdSeconds = svc.fastThreshold
	}
	dashboard := BuildDashboard(summaries, filter, fastThresholdSeconds)
	dashboard.StudyID = studyID
	dashboard.StudyName = study.Name
	return dashboard, nil
}

// Comparison lists every submission of one task side by side, with
// participant identity anonymized when the task is blinded.
type (
	ComparisonRow struct {
		AssignmentID    int             `json:"assignment_id"`
		SubmissionID    int             `json:"submission_id"`
		ParticipantID   int             `json:"participant_id"`
		ParticipantName string          `json:"participant_name"`
		SubmittedAt     time.Time       `json:"submitted_at"`
		TimeSpentSecs   int             `json:"time_spent_seconds"`
		AnnotationCount int             `json:"annotation_count"`
		ReviewerStatus  null.String     `json:"reviewer_status,omitempty"`
		QualityScore    null.Int        `json:"quality_score,omitempty"`
		Submission      json.RawMessage `json:"submission_data,omitempty"`
	}

	Comparison struct {
		StudyID      int             `json:"study_id"`
		StudyName    string          `json:"study_name"`
		TaskID       int             `json:"task_id"`
		TaskTitle    string          `json:"task_title"`
		ArtifactType string          `json:"artifact_type"`
		Rows         []ComparisonRow `json:"rows"`
	}
)

func (svc *Service) Comparison(studyID, taskID int, reviewer user.User) (Comparison, error) {
	if _, err := svc.ensureReviewerAssignment(studyID, reviewer.ID); err != nil {
		return Comparison{}, err
	}
	study, err := svc.evalRepo.GetStudyByID(studyID)
	if err != nil {
		return Comparison{}, err
	}
	task, err := svc.evalRepo.GetTaskByID(taskID)
	if err != nil {
		if errors.Is(err, evaluation.ErrTaskNotFound) {
			return Comparison{}, core.NewNotFoundError(err.Error())
		}
		return Comparison{}, err
	}
	if task.StudyID != studyID {
		return Comparison{}, core.NewNotFoundError("task does not belong to the requested study")
	}

	submissions, err := svc.evalRepo.FilterSubmissionsByTask(taskID)
	if err != nil {
		return Comparison{}, err
	}

	comparison := Comparison{
		StudyID:      studyID,
		StudyName:    study.Name,
		TaskID:       taskID,
		TaskTitle:    task.Title,
		ArtifactType: task.ArtifactType,
		Rows:         make([]ComparisonRow, 0, len(submissions)),
	}
	for _, submission := range submissions {
		assignment, err := svc.evalRepo.GetAssignmentByID(submission.AssignmentID)
		if err != nil {
			return Comparison{}, err
		}
		annotations, err := svc.annotationCount(submission)
		if err != nil {
			return Comparison{}, err
		}
		comparison.Rows = append(comparison.Rows, ComparisonRow{
			AssignmentID:    assignment.ID,
			SubmissionID:    submission.ID,
			ParticipantID:   assignment.ParticipantID,
			ParticipantName: svc.participantLabel(&task, assignment.ParticipantID),
			SubmittedAt:     submission.SubmittedAt,
			TimeSpentSecs:   submission.TimeSpentSeconds,
			AnnotationCount: annotations,
			ReviewerStatus:  submission.ReviewerStatus,
			QualityScore:    submission.QualityScore,
			Submission:      submission.Snapshot,
		})
	}
	return comparison, nil
}

// HistoryItem summarizes one submission the reviewer has personally
// reviewed.
type HistoryItem struct {
	SubmissionID    int       `json:"submission_id"`
	AssignmentID    int       `json:"assignment_id"`
	StudyID         int       `json:"study_id"`
	StudyName       string    `json:"study_name"`
	ParticipantID   int       `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	ReviewDate      null.Time `json:"review_date"`
	Decision        string    `json:"decision"`
	QualityScore    null.Int  `json:"quality_score,omitempty"`
	IssuesFound     int       `json:"issues_found"`
	TimeSpent       string    `json:"time_spent"`
}

// History returns the reviewer's past decisions, newest first.
func (svc *Service) History(reviewer user.User) ([]HistoryItem, error) {
	submissions, err := svc.evalRepo.FilterSubmissionsByReviewer(reviewer.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(submissions, func(i, j int) bool {
		return submissions[i].ReviewedAt.Time.After(submissions[j].ReviewedAt.Time)
	})

	items := make([]HistoryItem, 0, len(submissions))
	for _, submission := range submissions {
		assignment, err := svc.evalRepo.GetAssignmentByID(submission.AssignmentID)
		if err != nil {
			return nil, err
		}
		task, err := svc.evalRepo.GetTaskByID(assignment.TaskID)
		if err != nil {
			return nil, err
		}
		study, err := svc.evalRepo.GetStudyByID(task.StudyID)
		if err != nil {
			return nil, err
		}
		annotations, err := svc.evalRepo.FilterAnnotationsByAssignment(assignment.ID)
		if err != nil {
			return nil, err
		}

		item := HistoryItem{
			SubmissionID:  submission.ID,
			AssignmentID:  assignment.ID,
			StudyID:       study.ID,
			StudyName:     study.Name,
			ParticipantID: assignment.ParticipantID,
			ReviewDate:    submission.ReviewedAt,
			Decision:      decisionLabel(submission.ReviewerStatus),
			QualityScore:  submission.QualityScore,
			IssuesFound:   len(annotations),
			TimeSpent:     formatTimeSpent(submission.TimeSpentSeconds),
		}
		if usr, err := svc.usrRepo.GetUserByID(assignment.ParticipantID); err == nil {
			item.ParticipantName = usr.DisplayName()
		}
		items = append(items, item)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// helpers

// studySummaries maps a study's submissions to flat dashboard rows.
func (svc *Service) studySummaries(studyID int) ([]SubmissionSummary, error) {
	submissions, err := svc.evalRepo.FilterSubmissionsByStudy(studyID)
	if err != nil {
		return nil, err
	}

	summaries := make([]SubmissionSummary, 0, len(submissions))
	for _, submission := range submissions {
		assignment, err := svc.evalRepo.GetAssignmentByID(submission.AssignmentID)
		if err != nil {
			return nil, err
		}
		task, err := svc.evalRepo.GetTaskByID(assignment.TaskID)
		if err != nil {
			return nil, err
		}
		annotations, err := svc.annotationCount(submission)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, SubmissionSummary{
			AssignmentID:    assignment.ID,
			SubmissionID:    submission.ID,
			ParticipantID:   assignment.ParticipantID,
			ParticipantName: svc.participantLabel(&task, assignment.ParticipantID),
			TaskID:          task.ID,
			TaskTitle:       task.Title,
			ArtifactType:    task.ArtifactType,
			SubmittedAt:     submission.SubmittedAt,
			TimeSpentSecs:   submission.TimeSpentSeconds,
			ReviewerStatus:  submission.ReviewerStatus,
			QualityScore:    submission.QualityScore,
			ReviewerNotes:   submission.ReviewerNotes,
			AnnotationCount: annotations,
		})
	}
	return summaries, nil
}

// annotationCount aggregates persisted annotations and any snapshot-embedded
// ones.
func (svc *Service) annotationCount(submission evaluation.Submission) (int, error) {
	persisted, err := svc.evalRepo.FilterAnnotationsByAssignment(submission.AssignmentID)
	if err != nil {
		return 0, err
	}
	return len(persisted) + snapshotAnnotationCount(submission.Snapshot), nil
}

// snapshotAnnotationCount counts annotations embedded in a submission
// snapshot, whether stored as a bare array or under an "annotations" key.
func snapshotAnnotationCount(snapshot json.RawMessage) int {
	if len(snapshot) == 0 {
		return 0
	}
	var wrapped struct {
		Annotations json.RawMessage `json:"annotations"`
	}
	payload := snapshot
	if err := json.Unmarshal(snapshot, &wrapped); err == nil && len(wrapped.Annotations) > 0 {
		payload = wrapped.Annotations
	}
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return 0
	}
	return len(items)
}

// participantLabel masks participant identity when the task is blinded.
func (svc *Service) participantLabel(task *evaluation.Task, participantID int) string {
	name := fmt.Sprintf("Participant #%d", participantID)
	if usr, err := svc.usrRepo.GetUserByID(participantID); err == nil {
		name = usr.DisplayName()
	}
	return evaluation.ParticipantAlias(task, participantID, name)
}

func decisionLabel(status null.String) string {
	switch status.String {
	case StatusValid:
		return "approved"
	case StatusSuspicious:
		return "flagged"
	case StatusIncomplete:
		return "incomplete"
	}
	return ""
}

// formatTimeSpent renders a human-readable duration: "Ns" under a minute,
// "Mm SSs" otherwise.
func formatTimeSpent(seconds int) string {
	if seconds <= 0 {
		return "—"
	}
	mins := seconds / 60
	if mins <= 0 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %02ds", mins, seconds%60)
}

func (svc *Service) notify(recipient, sender user.User, typ, title, message string, studyID int) {
	svc.notifSvc.Notify(&core.Notification{
		Recipient: core.NotificationRecipient{
			ID:    recipient.ID,
			Name:  recipient.DisplayName(),
			Email: recipient.Email,
		},
		Sender: core.NotificationRecipient{
			ID:    sender.ID,
			Name:  sender.DisplayName(),
			Email: sender.Email,
		},
		Type:              typ,
		Title:             title,
		Message:           message,
		RelatedEntityType: core.RelatedEntityStudy,
		RelatedEntityID:   studyID,
	})
}
