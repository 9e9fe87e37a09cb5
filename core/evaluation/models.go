package evaluation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
)

// Task statuses
const (
	TaskDraft     = "DRAFT"
	TaskActive    = "ACTIVE"
	TaskCompleted = "COMPLETED"
	TaskArchived  = "ARCHIVED"
)

// Layout modes
const (
	LayoutSingle     = "SINGLE"
	LayoutSideBySide = "SIDE_BY_SIDE"
	LayoutThreeWay   = "THREE_WAY"
)

// Assignment statuses
const (
	AssignmentPending    = "PENDING"
	AssignmentInProgress = "IN_PROGRESS"
	AssignmentSubmitted  = "SUBMITTED"
	AssignmentReviewed   = "REVIEWED"
)

// Criterion types
const (
	CriterionRating    = "rating"
	CriterionText      = "text"
	CriterionSelection = "selection"
	CriterionBoolean   = "boolean"
)

// Annotation types
const (
	AnnotationHighlight = "HIGHLIGHT"
	AnnotationNote      = "NOTE"
	AnnotationTag       = "TAG"
)

type (
	// Study groups evaluation tasks and links the questionnaire gating
	// participant eligibility.
	Study struct {
		ID                int       `json:"id"`
		Name              string    `json:"name"`
		Description       string    `json:"description"`
		ResearcherID      int       `json:"researcher_id"`
		QuestionnaireType string    `json:"questionnaire_type"`
		CreatedAt         time.Time `json:"created_at"` // UTC
	}

	// ArtifactReference binds an artifact to a task with its presentation
	// settings. Owned by value inside the task, not joined rows.
	ArtifactReference struct {
		ArtifactID   uuid.UUID         `json:"artifact_id"`
		DisplayLabel string            `json:"display_label"`
		DisplayOrder int               `json:"display_order"`
		Blinded      bool              `json:"blinded"`
		Metadata     map[string]string `json:"metadata,omitempty"`
		Tags         []string          `json:"tags,omitempty"`
	}

	// CriterionDefinition is one question/rating dimension participants answer.
	CriterionDefinition struct {
		ID       string       `json:"id"`
		Name     string       `json:"name"`
		Type     string       `json:"type"`
		Required bool         `json:"required"`
		ScaleMin null.Float64 `json:"scale_min,omitempty"`
		ScaleMax null.Float64 `json:"scale_max,omitempty"`
		Options  []string     `json:"options,omitempty"`
	}

	// Task is a configured unit of evaluation work binding artifacts to
	// criteria. Immutable after creation except for participant/criteria
	// additions and lazy blinded-order initialization.
	Task struct {
		ID           int    `json:"id"`
		StudyID      int    `json:"study_id"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		Instructions string `json:"instructions"`
		ArtifactType string `json:"artifact_type"`
		LayoutMode   string `json:"layout_mode"`
		BlindedMode  bool   `json:"blinded_mode"`
		// BlindedOrder is the cached permutation of artifact positions,
		// generated once on first blinded access and reused for every
		// participant and reviewer. Nil until then.
		BlindedOrder     []int                 `json:"blinded_order,omitempty"`
		Status           string                `json:"status"`
		DueDate          null.Time             `json:"due_date,omitempty"`
		AllowAnnotations bool                  `json:"allow_annotations"`
		AllowDraftSaving bool                  `json:"allow_draft_saving"`
		Artifacts        []ArtifactReference   `json:"artifacts"`
		Criteria         []CriterionDefinition `json:"criteria"`
		CreatedBy        int                   `json:"created_by"`
		CreatedAt        time.Time             `json:"created_at"` // UTC
		UpdatedAt        time.Time             `json:"updated_at"` // UTC
	}

	// Assignment is one participant's instance of a task.
	Assignment struct {
		ID            int       `json:"id"`
		TaskID        int       `json:"task_id"`
		ParticipantID int       `json:"participant_id"`
		AssignedBy    int       `json:"assigned_by"`
		Status        string    `json:"status"`
		DueDate       null.Time `json:"due_date,omitempty"`
		StartedAt     null.Time `json:"started_at,omitempty"`
		SubmittedAt   null.Time `json:"submitted_at,omitempty"`
		CreatedAt     time.Time `json:"created_at"` // UTC
	}

	// ScoreEntry is one (assignment, criterion) rating. Unique per pair;
	// frozen once the assignment is submitted.
	ScoreEntry struct {
		ID           int         `json:"id"`
		AssignmentID int         `json:"assignment_id"`
		CriterionID  string      `json:"criterion_id"`
		Value        interface{} `json:"value"`
		Note         string      `json:"note,omitempty"`
		UpdatedAt    time.Time   `json:"updated_at"` // UTC
	}

	// Annotation is a highlight/note/tag attached to an artifact panel or
	// line range within an assignment.
	Annotation struct {
		ID            int       `json:"id"`
		AssignmentID  int       `json:"assignment_id"`
		ArtifactIndex int       `json:"artifact_index"`
		Panel         string    `json:"panel,omitempty"`
		StartLine     int       `json:"start_line,omitempty"`
		EndLine       int       `json:"end_line,omitempty"`
		Type          string    `json:"type"`
		Content       string    `json:"content"`
		Color         string    `json:"color,omitempty"`
		CreatedAt     time.Time `json:"created_at"` // UTC
		UpdatedAt     time.Time `json:"updated_at"` // UTC
	}

	// Draft is the per-assignment autosave buffer, overwritten on every save.
	Draft struct {
		AssignmentID int             `json:"assignment_id"`
		Content      json.RawMessage `json:"content"`
		UpdatedAt    time.Time       `json:"updated_at"` // UTC
	}

	// Submission is the immutable frozen result of an assignment. Created
	// once at submit time; only reviewer fields mutate thereafter.
	Submission struct {
		ID               int                    `json:"id"`
		AssignmentID     int                    `json:"assignment_id"`
		Answers          map[string]interface{} `json:"answers,omitempty"`
		AdditionalData   map[string]interface{} `json:"additional_data,omitempty"`
		Snapshot         json.RawMessage        `json:"snapshot"`
		TimeSpentSeconds int                    `json:"time_spent_seconds"`
		IsLocked         bool                   `json:"is_locked"`
		SubmittedAt      time.Time              `json:"submitted_at"` // UTC

		// reviewer verdict fields, set by recordDecision
		ReviewerStatus null.String `json:"reviewer_status,omitempty"`
		QualityScore   null.Int    `json:"quality_score,omitempty"`
		ReviewerNotes  string      `json:"reviewer_notes,omitempty"`
		ReviewedBy     null.Int    `json:"reviewed_by,omitempty"`
		ReviewedAt     null.Time   `json:"reviewed_at,omitempty"`
	}
)

func (t *Task) IsBlinded() bool { return t.BlindedMode }

// PairCount returns the number of side-by-side pairs for the task's artifacts.
func (t *Task) PairCount() int { return (len(t.Artifacts) + 1) / 2 }

// TripletCount returns the number of three-way groups for the task's artifacts.
func (t *Task) TripletCount() int { return (len(t.Artifacts) + 2) / 3 }

func (a *Assignment) IsTerminal() bool {
	return a.Status == AssignmentSubmitted || a.Status == AssignmentReviewed
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	StudyID          int                   `json:"study_id" validate:"required"`
	Title            string                `json:"title" validate:"required"`
	Description      string                `json:"description"`
	Instructions     string                `json:"instructions"`
	ArtifactType     string                `json:"artifact_type" validate:"required,oneof=BUG_REPORT CODE_CLONE SOLID_VIOLATION SNAPSHOT"`
	LayoutMode       string                `json:"layout_mode" validate:"required,oneof=SINGLE SIDE_BY_SIDE THREE_WAY"`
	BlindedMode      bool                  `json:"blinded_mode"`
	DueDate          null.Time             `json:"due_date"`
	AllowAnnotations bool                  `json:"allow_annotations"`
	AllowDraftSaving bool                  `json:"allow_draft_saving"`
	Artifacts        []ArtifactReference   `json:"artifacts"`
	Criteria         []CriterionDefinition `json:"criteria"`
}

func (nt *NewTask) Validate() error {
	nt.Title = core.CleanString(nt.Title)
	return core.Validate.Struct(nt)
}

// SubmissionRequest is a participant's proposed submission payload.
type SubmissionRequest struct {
	Answers          map[string]interface{} `json:"answers"`
	AdditionalData   map[string]interface{} `json:"additional_data"`
	Annotations      json.RawMessage        `json:"annotations,omitempty"`
	TimeSpentSeconds int                    `json:"time_spent_seconds"`
}

// NewScore carries a score save/update for one criterion.
type NewScore struct {
	CriterionID string      `json:"criterion_id" validate:"required"`
	Value       interface{} `json:"value"`
	Note        string      `json:"note"`
}

// NewAnnotation carries an annotation save for one artifact panel.
type NewAnnotation struct {
	ArtifactIndex int    `json:"artifact_index"`
	Panel         string `json:"panel"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Type          string `json:"type" validate:"required,oneof=HIGHLIGHT NOTE TAG"`
	Content       string `json:"content"`
	Color         string `json:"color"`
}
