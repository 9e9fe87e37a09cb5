package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/user"
)

var (
	// errors
	ErrStudyNotFound      = errors.New("study not found")
	ErrTaskNotFound       = errors.New("evaluation task not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAssignmentExists   = errors.New("participant is already assigned to this task")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrSubmissionExists   = errors.New("assignment has already been submitted")
	ErrAnnotationNotFound = errors.New("annotation not found")
	ErrDraftNotFound      = errors.New("draft not found")
	ErrArtifactNotFound   = errors.New("artifact not found")
)

type (
	Repository interface {
		// studies
		CreateStudy(study Study) (Study, error)
		GetStudyByID(id int) (Study, error)
		QueryAllStudies() ([]Study, error)

		// artifacts
		CreateArtifact(a Artifact) (Artifact, error)
		GetArtifactByID(id uuid.UUID) (Artifact, error)
		FilterArtifactsByStudy(studyID int) ([]Artifact, error)

		// tasks
		CreateTask(task Task) (Task, error)
		GetTaskByID(id int) (Task, error)
		FilterTasksByStudy(studyID int) ([]Task, error)
		UpdateTask(task Task) (Task, error)
		// SetTaskBlindedOrder caches the permutation on the task only if none
		// is cached yet, and returns the winning value. Concurrent first
		// accesses must converge to one cached order.
		SetTaskBlindedOrder(taskID int, order []int) ([]int, error)

		// assignments
		CreateAssignment(a Assignment) (Assignment, error) // ErrAssignmentExists on (task, participant) duplicate
		GetAssignmentByID(id int) (Assignment, error)
		GetAssignment(taskID, participantID int) (Assignment, error)
		FilterAssignmentsByTask(taskID int) ([]Assignment, error)
		FilterAssignmentsByParticipant(participantID int) ([]Assignment, error)
		UpdateAssignment(a Assignment) (Assignment, error)

		// scores
		UpsertScore(s ScoreEntry) (ScoreEntry, error) // unique per (assignment, criterion)
		FilterScoresByAssignment(assignmentID int) ([]ScoreEntry, error)

		// annotations
		CreateAnnotation(an Annotation) (Annotation, error)
		GetAnnotationByID(id int) (Annotation, error)
		UpdateAnnotation(an Annotation) (Annotation, error)
		DeleteAnnotation(id int) error
		FilterAnnotationsByAssignment(assignmentID int) ([]Annotation, error)

		// drafts
		UpsertDraft(d Draft) (Draft, error) // at most one per assignment
		GetDraft(assignmentID int) (Draft, error)

		// submissions
		CreateSubmission(s Submission) (Submission, error) // ErrSubmissionExists on duplicate assignment
		GetSubmissionByAssignment(assignmentID int) (Submission, error)
		FilterSubmissionsByStudy(studyID int) ([]Submission, error)
		FilterSubmissionsByTask(taskID int) ([]Submission, error)
		FilterSubmissionsByReviewer(reviewerID int) ([]Submission, error)
		UpdateSubmission(s Submission) (Submission, error)
	}

	// EligibilityChecker is the quiz-completion gate consulted before a
	// participant can be assigned to a task.
	EligibilityChecker interface {
		IsEligible(studyID, participantID int, questionnaireType string) (bool, error)
	}

	Service struct {
		repo        Repository
		usrRepo     user.Repository
		eligibility EligibilityChecker
		notifSvc    core.NotificationService
		logger      core.Logger
	}
)

func NewService(
	repo Repository,
	usrRepo user.Repository,
	eligibility EligibilityChecker,
	notifSvc core.NotificationService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		usrRepo:     usrRepo,
		eligibility: eligibility,
		notifSvc:    notifSvc,
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// Studies & tasks

func (svc *Service) CreateStudy(study Study) (Study, error) {
	study.CreatedAt = time.Now().UTC()
	return svc.repo.CreateStudy(study)
}

func (svc *Service) Studies() ([]Study, error) {
	return svc.repo.QueryAllStudies()
}

func (svc *Service) GetStudy(id int) (Study, error) {
	study, err := svc.repo.GetStudyByID(id)
	if err != nil {
		if errors.Is(err, ErrStudyNotFound) {
			return Study{}, core.NewNotFoundError(err.Error())
		}
		return Study{}, err
	}
	return study, nil
}

func (svc *Service) CreateTask(researcher user.User, nt NewTask) (Task, error) {
	if err := nt.Validate(); err != nil {
		return Task{}, err
	}
	study, err := svc.GetStudy(nt.StudyID)
	if err != nil {
		return Task{}, err
	}
	if study.ResearcherID != researcher.ID && !researcher.IsAdmin() {
		return Task{}, core.NewAuthorizationError("only the study's researcher may create tasks")
	}

	now := time.Now().UTC()
	task := Task{
		StudyID:          nt.StudyID,
		Title:            nt.Title,
		Description:      nt.Description,
		Instructions:     nt.Instructions,
		ArtifactType:     nt.ArtifactType,
		LayoutMode:       nt.LayoutMode,
		BlindedMode:      nt.BlindedMode,
		Status:           TaskDraft,
		DueDate:          nt.DueDate,
		AllowAnnotations: nt.AllowAnnotations,
		AllowDraftSaving: nt.AllowDraftSaving,
		Artifacts:        nt.Artifacts,
		Criteria:         nt.Criteria,
		CreatedBy:        researcher.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return svc.repo.CreateTask(task)
}

func (svc *Service) GetTask(id int) (Task, error) {
	task, err := svc.repo.GetTaskByID(id)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return Task{}, core.NewNotFoundError(err.Error())
		}
		return Task{}, err
	}
	return task, nil
}

func (svc *Service) FilterTasks(studyID int) ([]Task, error) {
	return svc.repo.FilterTasksByStudy(studyID)
}

// AddCriteria appends criteria definitions to an existing task. Tasks are
// otherwise immutable after creation.
func (svc *Service) AddCriteria(taskID int, criteria ...CriterionDefinition) (Task, error) {
	task, err := svc.GetTask(taskID)
	if err != nil {
		return Task{}, err
	}
	task.Criteria = append(task.Criteria, criteria...)
	task.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTask(task)
}

// ---------------------------------------------------------------------------
// Artifacts

func (svc *Service) CreateArtifact(researcher user.User, artifact Artifact) (Artifact, error) {
	study, err := svc.GetStudy(artifact.StudyID)
	if err != nil {
		return Artifact{}, err
	}
	if study.ResearcherID != researcher.ID && !researcher.IsAdmin() {
		return Artifact{}, core.NewAuthorizationError("only the study's researcher may add artifacts")
	}
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	artifact.CreatedAt = time.Now().UTC()
	return svc.repo.CreateArtifact(artifact)
}

func (svc *Service) GetArtifact(id uuid.UUID) (Artifact, error) {
	artifact, err := svc.repo.GetArtifactByID(id)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return Artifact{}, core.NewNotFoundError(err.Error())
		}
		return Artifact{}, err
	}
	return artifact, nil
}

func (svc *Service) StudyArtifacts(studyID int) ([]Artifact, error) {
	return svc.repo.FilterArtifactsByStudy(studyID)
}

// ---------------------------------------------------------------------------
// Assignment state machine

// Assign creates a participant's assignment for a task, subject to the
// quiz-eligibility gate, and emits a "task assigned" notification.
// A duplicate (task, participant) pair fails with a ConflictError.
func (svc *Service) Assign(taskID, participantID int, assigner user.User, dueDate null.Time) (Assignment, error) {
	task, err := svc.GetTask(taskID)
	if err != nil {
		return Assignment{}, err
	}
	participant, err := svc.usrRepo.GetUserByID(participantID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Assignment{}, core.NewNotFoundError(fmt.Sprintf("participant %d not found", participantID))
		}
		return Assignment{}, err
	}

	study, err := svc.GetStudy(task.StudyID)
	if err != nil {
		return Assignment{}, err
	}
	if err = svc.enforceEligibility(study, participant); err != nil {
		return Assignment{}, err
	}

	assignment, err := svc.repo.CreateAssignment(Assignment{
		TaskID:        taskID,
		ParticipantID: participantID,
		AssignedBy:    assigner.ID,
		Status:        AssignmentPending,
		DueDate:       dueDate,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrAssignmentExists) {
			return Assignment{}, core.NewConflictError(err.Error())
		}
		return Assignment{}, err
	}

	// the first assignment activates a draft task
	if task.Status == TaskDraft {
		task.Status = TaskActive
		task.UpdatedAt = time.Now().UTC()
		if _, err = svc.repo.UpdateTask(task); err != nil {
			return Assignment{}, pkgerrors.Wrap(err, "activating task")
		}
	}

	svc.notifyTaskAssigned(task, participant, assigner)
	return assignment, nil
}

// AddParticipants bulk-assigns participants to a task. Participants already
// assigned are silently skipped, so repeated calls with overlapping lists
// converge to one assignment per participant. Returns the assignments
// actually created.
func (svc *Service) AddParticipants(taskID int, assigner user.User, participantIDs []int, dueDate null.Time) ([]Assignment, error) {
	created := make([]Assignment, 0, len(participantIDs))
	for _, pid := range participantIDs {
		assignment, err := svc.Assign(taskID, pid, assigner, dueDate)
		if err != nil {
			var conflictErr *core.ConflictError
			if errors.As(err, &conflictErr) {
				continue
			}
			return created, err
		}
		created = append(created, assignment)
	}
	return created, nil
}

// Start transitions a PENDING assignment to IN_PROGRESS and stamps
// startedAt. Any other state is a no-op, so repeated calls keep the
// original startedAt.
func (svc *Service) Start(assignmentID, participantID int) (Assignment, error) {
	assignment, err := svc.getParticipantAssignment(assignmentID, participantID)
	if err != nil {
		return Assignment{}, err
	}
	if assignment.Status != AssignmentPending {
		return assignment, nil
	}
	assignment.Status = AssignmentInProgress
	assignment.StartedAt = null.TimeFrom(time.Now().UTC())
	return svc.repo.UpdateAssignment(assignment)
}

func (svc *Service) GetAssignment(assignmentID, participantID int) (Assignment, error) {
	return svc.getParticipantAssignment(assignmentID, participantID)
}

func (svc *Service) FilterAssignments(taskID int) ([]Assignment, error) {
	return svc.repo.FilterAssignmentsByTask(taskID)
}

// ParticipantAssignments lists a participant's assignments, optionally
// narrowed to one status.
func (svc *Service) ParticipantAssignments(participantID int, status string) ([]Assignment, error) {
	assignments, err := svc.repo.FilterAssignmentsByParticipant(participantID)
	if err != nil || status == "" {
		return assignments, err
	}
	filtered := assignments[:0]
	for _, assignment := range assignments {
		if assignment.Status == status {
			filtered = append(filtered, assignment)
		}
	}
	return filtered, nil
}

// enforceEligibility requires a completed quiz assignment for the task's
// study; competency questionnaires must additionally be passed.
func (svc *Service) enforceEligibility(study Study, participant user.User) error {
	ok, err := svc.eligibility.IsEligible(study.ID, participant.ID, study.QuestionnaireType)
	if err != nil {
		return pkgerrors.Wrap(err, "checking quiz eligibility")
	}
	if !ok {
		return core.NewEligibilityError(
			participant.DisplayName(),
			fmt.Sprintf("participant %s has not completed the required questionnaire for this study", participant.DisplayName()),
		)
	}
	return nil
}

func (svc *Service) getParticipantAssignment(assignmentID, participantID int) (Assignment, error) {
	assignment, err := svc.repo.GetAssignmentByID(assignmentID)
	if err != nil {
		if errors.Is(err, ErrAssignmentNotFound) {
			return Assignment{}, core.NewNotFoundError(err.Error())
		}
		return Assignment{}, err
	}
	if assignment.ParticipantID != participantID {
		return Assignment{}, core.NewNotFoundError(ErrAssignmentNotFound.Error())
	}
	return assignment, nil
}

// ---------------------------------------------------------------------------
// Task detail (blinding-aware)

// TaskDetail is the participant/reviewer-facing view of a task with its
// artifacts routed through the blinding engine.
type TaskDetail struct {
	Task      Task                `json:"task"`
	Artifacts []PresentedArtifact `json:"artifacts"`
}

// GetTaskDetail returns the blinding-aware view of a task. For blinded
// tasks the presentation order is generated on first access and cached, so
// every caller sees the same order and labels.
func (svc *Service) GetTaskDetail(taskID int) (TaskDetail, error) {
	task, err := svc.GetTask(taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	if err = svc.ensureBlindedOrder(&task); err != nil {
		return TaskDetail{}, err
	}
	return TaskDetail{Task: task, Artifacts: PresentArtifacts(&task)}, nil
}

func (svc *Service) ensureBlindedOrder(task *Task) error {
	if !task.BlindedMode || len(task.Artifacts) == 0 || len(task.BlindedOrder) == len(task.Artifacts) {
		return nil
	}
	order, err := svc.repo.SetTaskBlindedOrder(task.ID, newBlindedOrder(len(task.Artifacts)))
	if err != nil {
		return pkgerrors.Wrap(err, "caching blinded order")
	}
	task.BlindedOrder = order
	return nil
}

// ---------------------------------------------------------------------------
// Scores, annotations, drafts

func (svc *Service) SaveScore(assignmentID, participantID int, ns NewScore) (ScoreEntry, error) {
	assignment, err := svc.getParticipantAssignment(assignmentID, participantID)
	if err != nil {
		return ScoreEntry{}, err
	}
	if assignment.IsTerminal() {
		return ScoreEntry{}, core.NewStateError("scores are frozen once the assignment is submitted")
	}
	if err = core.Validate.Struct(&ns); err != nil {
		return ScoreEntry{}, err
	}
	return svc.repo.UpsertScore(ScoreEntry{
		AssignmentID: assignmentID,
		CriterionID:  ns.CriterionID,
		Value:        ns.Value,
		Note:         ns.Note,
		UpdatedAt:    time.Now().UTC(),
	})
}

func (svc *Service) Scores(assignmentID int) ([]ScoreEntry, error) {
	return svc.repo.FilterScoresByAssignment(assignmentID)
}

func (svc *Service) SaveAnnotation(assignmentID, participantID int, na NewAnnotation) (Annotation, error) {
	assignment, err := svc.getParticipantAssignment(assignmentID, participantID)
	if err != nil {
		return Annotation{}, err
	}
	if assignment.IsTerminal() {
		return Annotation{}, core.NewStateError("annotations are frozen once the assignment is submitted")
	}
	if err = core.Validate.Struct(&na); err != nil {
		return Annotation{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateAnnotation(Annotation{
		AssignmentID:  assignmentID,
		ArtifactIndex: na.ArtifactIndex,
		Panel:         na.Panel,
		StartLine:     na.StartLine,
		EndLine:       na.EndLine,
		Type:          na.Type,
		Content:       na.Content,
		Color:         na.Color,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) DeleteAnnotation(annotationID, participantID int) error {
	annotation, err := svc.repo.GetAnnotationByID(annotationID)
	if err != nil {
		if errors.Is(err, ErrAnnotationNotFound) {
			return core.NewNotFoundError(err.Error())
		}
		return err
	}
	assignment, err := svc.getParticipantAssignment(annotation.AssignmentID, participantID)
	if err != nil {
		return err
	}
	if assignment.IsTerminal() {
		return core.NewStateError("annotations are frozen once the assignment is submitted")
	}
	return svc.repo.DeleteAnnotation(annotationID)
}

func (svc *Service) Annotations(assignmentID int) ([]Annotation, error) {
	return svc.repo.FilterAnnotationsByAssignment(assignmentID)
}

// SaveDraft overwrites the assignment's autosave buffer. Once the
// assignment is submitted the draft is no longer meaningful, so saves
// silently no-op instead of erroring.
func (svc *Service) SaveDraft(assignmentID, participantID int, content json.RawMessage) (Draft, error) {
	assignment, err := svc.getParticipantAssignment(assignmentID, participantID)
	if err != nil {
		return Draft{}, err
	}
	if assignment.IsTerminal() {
		return Draft{AssignmentID: assignmentID, Content: content}, nil
	}
	return svc.repo.UpsertDraft(Draft{
		AssignmentID: assignmentID,
		Content:      content,
		UpdatedAt:    time.Now().UTC(),
	})
}

func (svc *Service) GetDraft(assignmentID, participantID int) (Draft, error) {
	if _, err := svc.getParticipantAssignment(assignmentID, participantID); err != nil {
		return Draft{}, err
	}
	draft, err := svc.repo.GetDraft(assignmentID)
	if err != nil {
		if errors.Is(err, ErrDraftNotFound) {
			return Draft{}, core.NewNotFoundError(err.Error())
		}
		return Draft{}, err
	}
	return draft, nil
}

// ---------------------------------------------------------------------------
// Submission snapshot engine

// Submit validates the participant's answers against the task's criteria,
// freezes scores, annotations and answers into an immutable snapshot, and
// flips the assignment to SUBMITTED. Either everything is accepted and
// frozen or nothing is.
func (svc *Service) Submit(assignmentID, participantID int, req SubmissionRequest) (Submission, error) {
	assignment, err := svc.getParticipantAssignment(assignmentID, participantID)
	if err != nil {
		return Submission{}, err
	}
	if assignment.IsTerminal() {
		return Submission{}, core.NewConflictError(ErrSubmissionExists.Error())
	}
	task, err := svc.GetTask(assignment.TaskID)
	if err != nil {
		return Submission{}, err
	}
	if err = ValidateSubmission(&task, req); err != nil {
		return Submission{}, err
	}

	snapshot, err := svc.buildSnapshot(assignmentID, req)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	submission, err := svc.repo.CreateSubmission(Submission{
		AssignmentID:     assignmentID,
		Answers:          req.Answers,
		AdditionalData:   req.AdditionalData,
		Snapshot:         snapshot,
		TimeSpentSeconds: req.TimeSpentSeconds,
		IsLocked:         true,
		SubmittedAt:      now,
	})
	if err != nil {
		if errors.Is(err, ErrSubmissionExists) {
			return Submission{}, core.NewConflictError(err.Error())
		}
		return Submission{}, err
	}

	assignment.Status = AssignmentSubmitted
	assignment.SubmittedAt = null.TimeFrom(now)
	if _, err = svc.repo.UpdateAssignment(assignment); err != nil {
		return Submission{}, err
	}
	return submission, nil
}

func (svc *Service) GetSubmission(assignmentID int) (Submission, error) {
	submission, err := svc.repo.GetSubmissionByAssignment(assignmentID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return Submission{}, core.NewNotFoundError(err.Error())
		}
		return Submission{}, err
	}
	return submission, nil
}

// buildSnapshot copies the assignment's current scores and either the
// caller-supplied annotation payload or the persisted annotations into the
// point-in-time snapshot frozen on the submission.
func (svc *Service) buildSnapshot(assignmentID int, req SubmissionRequest) (json.RawMessage, error) {
	scores, err := svc.repo.FilterScoresByAssignment(assignmentID)
	if err != nil {
		return nil, err
	}

	snapshot := map[string]interface{}{"scores": scores}
	if len(req.Annotations) > 0 {
		snapshot["annotations"] = req.Annotations
	} else {
		annotations, err := svc.repo.FilterAnnotationsByAssignment(assignmentID)
		if err != nil {
			return nil, err
		}
		snapshot["annotations"] = annotations
	}
	if len(req.Answers) > 0 {
		snapshot["answers"] = req.Answers
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "marshalling submission snapshot")
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Export

// ExportRow is one flat line of a task's results; rendering to CSV/XLSX is
// a downstream formatting concern.
type ExportRow struct {
	AssignmentID     int                    `json:"assignment_id"`
	ParticipantID    int                    `json:"participant_id"`
	Participant      string                 `json:"participant"`
	Status           string                 `json:"status"`
	SubmittedAt      null.Time              `json:"submitted_at"`
	TimeSpentSeconds int                    `json:"time_spent_seconds"`
	Answers          map[string]interface{} `json:"answers,omitempty"`
	ReviewerStatus   null.String            `json:"reviewer_status,omitempty"`
	QualityScore     null.Int               `json:"quality_score,omitempty"`
}

// ExportRows flattens a task's assignments and submissions into plain
// structured rows. Participant identity is anonymized when the task is
// blinded.
func (svc *Service) ExportRows(taskID int, researcher user.User) ([]ExportRow, error) {
	task, err := svc.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.CreatedBy != researcher.ID && !researcher.IsAdmin() {
		return nil, core.NewAuthorizationError("only the task's researcher may export its results")
	}

	assignments, err := svc.repo.FilterAssignmentsByTask(taskID)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(assignments))
	for _, assignment := range assignments {
		row := ExportRow{
			AssignmentID:  assignment.ID,
			ParticipantID: assignment.ParticipantID,
			Status:        assignment.Status,
			SubmittedAt:   assignment.SubmittedAt,
		}

		name := fmt.Sprintf("Participant #%d", assignment.ParticipantID)
		if usr, err := svc.usrRepo.GetUserByID(assignment.ParticipantID); err == nil {
			name = usr.DisplayName()
		}
		row.Participant = ParticipantAlias(&task, assignment.ParticipantID, name)

		if submission, err := svc.repo.GetSubmissionByAssignment(assignment.ID); err == nil {
			row.TimeSpentSeconds = submission.TimeSpentSeconds
			row.Answers = submission.Answers
			row.ReviewerStatus = submission.ReviewerStatus
			row.QualityScore = submission.QualityScore
		} else if !errors.Is(err, ErrSubmissionNotFound) {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Notifications

func (svc *Service) notifyTaskAssigned(task Task, participant user.User, assigner user.User) {
	svc.notifSvc.Notify(&core.Notification{
		Recipient: core.NotificationRecipient{
			ID:    participant.ID,
			Name:  participant.DisplayName(),
			Email: participant.Email,
		},
		Sender: core.NotificationRecipient{
			ID:    assigner.ID,
			Name:  assigner.DisplayName(),
			Email: assigner.Email,
		},
		Type:              core.NotificationEvaluationTaskAssigned,
		Title:             "New evaluation task assigned",
		Message:           fmt.Sprintf("You have been assigned to the evaluation task %q.", task.Title),
		RelatedEntityType: core.RelatedEntityEvaluationTask,
		RelatedEntityID:   task.ID,
	})
}
