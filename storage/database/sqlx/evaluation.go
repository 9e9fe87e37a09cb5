package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core/evaluation"
)

type evaluationRepository struct {
	db *sqlx.DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *sqlx.DB) evaluation.Repository {
	return &evaluationRepository{db: db}
}

// ---------------------------------------------------------------------------
// studies

func (repo *evaluationRepository) CreateStudy(study evaluation.Study) (evaluation.Study, error) {
	query := `
INSERT INTO study (name, description, researcher_id, questionnaire_type, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.QueryRow(query, study.Name, study.Description, study.ResearcherID, study.QuestionnaireType, study.CreatedAt).
		Scan(&study.ID)
	if err != nil {
		return evaluation.Study{}, errors.Wrap(err, "creating study")
	}
	return study, nil
}

func (repo *evaluationRepository) GetStudyByID(id int) (evaluation.Study, error) {
	var study evaluation.Study
	err := repo.db.QueryRow(`SELECT id, name, description, researcher_id, questionnaire_type, created_at FROM study WHERE id = $1`, id).
		Scan(&study.ID, &study.Name, &study.Description, &study.ResearcherID, &study.QuestionnaireType, &study.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Study{}, evaluation.ErrStudyNotFound
		}
		return evaluation.Study{}, errors.Wrap(err, "getting study")
	}
	return study, nil
}

func (repo *evaluationRepository) QueryAllStudies() ([]evaluation.Study, error) {
	rows, err := repo.db.Query(`SELECT id, name, description, researcher_id, questionnaire_type, created_at FROM study ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying studies")
	}
	defer func() { _ = rows.Close() }()

	studies := make([]evaluation.Study, 0)
	for rows.Next() {
		var study evaluation.Study
		if err = rows.Scan(&study.ID, &study.Name, &study.Description, &study.ResearcherID, &study.QuestionnaireType, &study.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning study")
		}
		studies = append(studies, study)
	}
	return studies, rows.Err()
}

// ---------------------------------------------------------------------------
// artifacts

func (repo *evaluationRepository) CreateArtifact(a evaluation.Artifact) (evaluation.Artifact, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return evaluation.Artifact{}, errors.Wrap(err, "marshalling artifact payload")
	}
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return evaluation.Artifact{}, errors.Wrap(err, "marshalling artifact metadata")
	}

	query := `
INSERT INTO artifact (id, study_id, name, "order", type, metadata, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = repo.db.Exec(query, a.ID, a.StudyID, a.Name, a.Order, a.Type(), metadata, payload, a.CreatedAt); err != nil {
		return evaluation.Artifact{}, errors.Wrap(err, "creating artifact")
	}
	return a, nil
}

func (repo *evaluationRepository) GetArtifactByID(id uuid.UUID) (evaluation.Artifact, error) {
	row := repo.db.QueryRow(`SELECT id, study_id, name, "order", type, metadata, payload, created_at FROM artifact WHERE id = $1`, id)
	artifact, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Artifact{}, evaluation.ErrArtifactNotFound
		}
		return evaluation.Artifact{}, errors.Wrap(err, "getting artifact")
	}
	return artifact, nil
}

func (repo *evaluationRepository) FilterArtifactsByStudy(studyID int) ([]evaluation.Artifact, error) {
	rows, err := repo.db.Query(`SELECT id, study_id, name, "order", type, metadata, payload, created_at FROM artifact WHERE study_id = $1 ORDER BY "order"`, studyID)
	if err != nil {
		return nil, errors.Wrap(err, "filtering artifacts")
	}
	defer func() { _ = rows.Close() }()

	artifacts := make([]evaluation.Artifact, 0)
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning artifact")
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanArtifact reassembles the stored columns into the artifact's tagged
// JSON form and lets the model's own unmarshalling pick the payload variant.
func scanArtifact(row rowScanner) (evaluation.Artifact, error) {
	var (
		id        uuid.UUID
		studyID   int
		name      string
		order     int
		typ       string
		metadata  []byte
		payload   []byte
		createdAt time.Time
	)
	if err := row.Scan(&id, &studyID, &name, &order, &typ, &metadata, &payload, &createdAt); err != nil {
		return evaluation.Artifact{}, err
	}

	doc, err := json.Marshal(map[string]interface{}{
		"id":         id,
		"study_id":   studyID,
		"name":       name,
		"order":      order,
		"type":       typ,
		"metadata":   json.RawMessage(metadata),
		"payload":    json.RawMessage(payload),
		"created_at": createdAt,
	})
	if err != nil {
		return evaluation.Artifact{}, err
	}
	var artifact evaluation.Artifact
	if err = json.Unmarshal(doc, &artifact); err != nil {
		return evaluation.Artifact{}, err
	}
	return artifact, nil
}

// ---------------------------------------------------------------------------
// tasks

type taskRow struct {
	ID               int       `db:"id"`
	StudyID          int       `db:"study_id"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Instructions     string    `db:"instructions"`
	ArtifactType     string    `db:"artifact_type"`
	LayoutMode       string    `db:"layout_mode"`
	BlindedMode      bool      `db:"blinded_mode"`
	BlindedOrder     null.JSON `db:"blinded_order"`
	Status           string    `db:"status"`
	DueDate          null.Time `db:"due_date"`
	AllowAnnotations bool      `db:"allow_annotations"`
	AllowDrafts      bool      `db:"allow_drafts"`
	Artifacts        []byte    `db:"artifacts"`
	Criteria         []byte    `db:"criteria"`
	CreatedBy        int       `db:"created_by"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row taskRow) toTask() (evaluation.Task, error) {
	task := evaluation.Task{
		ID:               row.ID,
		StudyID:          row.StudyID,
		Title:            row.Title,
		Description:      row.Description,
		Instructions:     row.Instructions,
		ArtifactType:     row.ArtifactType,
		LayoutMode:       row.LayoutMode,
		BlindedMode:      row.BlindedMode,
		Status:           row.Status,
		DueDate:          row.DueDate,
		AllowAnnotations: row.AllowAnnotations,
		AllowDraftSaving: row.AllowDrafts,
		CreatedBy:        row.CreatedBy,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.BlindedOrder.Valid {
		if err := json.Unmarshal(row.BlindedOrder.JSON, &task.BlindedOrder); err != nil {
			return evaluation.Task{}, errors.Wrap(err, "unmarshalling blinded order")
		}
	}
	if len(row.Artifacts) > 0 {
		if err := json.Unmarshal(row.Artifacts, &task.Artifacts); err != nil {
			return evaluation.Task{}, errors.Wrap(err, "unmarshalling task artifacts")
		}
	}
	if len(row.Criteria) > 0 {
		if err := json.Unmarshal(row.Criteria, &task.Criteria); err != nil {
			return evaluation.Task{}, errors.Wrap(err, "unmarshalling task criteria")
		}
	}
	return task, nil
}

func (repo *evaluationRepository) CreateTask(task evaluation.Task) (evaluation.Task, error) {
	artifacts, err := json.Marshal(task.Artifacts)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "marshalling task artifacts")
	}
	criteria, err := json.Marshal(task.Criteria)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "marshalling task criteria")
	}

	query := `
INSERT INTO evaluation_task (study_id, title, description, instructions, artifact_type, layout_mode,
                             blinded_mode, status, due_date, allow_annotations, allow_drafts,
                             artifacts, criteria, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id`
	err = repo.db.QueryRow(
		query,
		task.StudyID, task.Title, task.Description, task.Instructions, task.ArtifactType, task.LayoutMode,
		task.BlindedMode, task.Status, task.DueDate, task.AllowAnnotations, task.AllowDraftSaving,
		artifacts, criteria, task.CreatedBy, task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "creating task")
	}
	return task, nil
}

func (repo *evaluationRepository) GetTaskByID(id int) (evaluation.Task, error) {
	var row taskRow
	if err := repo.db.Get(&row, `SELECT * FROM evaluation_task WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Task{}, evaluation.ErrTaskNotFound
		}
		return evaluation.Task{}, errors.Wrap(err, "getting task")
	}
	return row.toTask()
}

func (repo *evaluationRepository) FilterTasksByStudy(studyID int) ([]evaluation.Task, error) {
	var rows []taskRow
	if err := repo.db.Select(&rows, `SELECT * FROM evaluation_task WHERE study_id = $1 ORDER BY id`, studyID); err != nil {
		return nil, errors.Wrap(err, "filtering tasks")
	}
	tasks := make([]evaluation.Task, 0, len(rows))
	for _, row := range rows {
		task, err := row.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (repo *evaluationRepository) UpdateTask(task evaluation.Task) (evaluation.Task, error) {
	artifacts, err := json.Marshal(task.Artifacts)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "marshalling task artifacts")
	}
	criteria, err := json.Marshal(task.Criteria)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "marshalling task criteria")
	}

	query := `
UPDATE evaluation_task
SET status = $2, due_date = $3, artifacts = $4, criteria = $5, updated_at = $6
WHERE id = $1`
	res, err := repo.db.Exec(query, task.ID, task.Status, task.DueDate, artifacts, criteria, task.UpdatedAt)
	if err != nil {
		return evaluation.Task{}, errors.Wrap(err, "updating task")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Task{}, evaluation.ErrTaskNotFound
	}
	return repo.GetTaskByID(task.ID)
}

// SetTaskBlindedOrder stores the permutation only when the task has none
// yet; concurrent racers read back the winning value.
func (repo *evaluationRepository) SetTaskBlindedOrder(taskID int, order []int) ([]int, error) {
	encoded, err := json.Marshal(order)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling blinded order")
	}

	if _, err = repo.db.Exec(
		`UPDATE evaluation_task SET blinded_order = $2 WHERE id = $1 AND blinded_order IS NULL`,
		taskID, encoded,
	); err != nil {
		return nil, errors.Wrap(err, "caching blinded order")
	}

	var stored null.JSON
	if err = repo.db.QueryRow(`SELECT blinded_order FROM evaluation_task WHERE id = $1`, taskID).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, evaluation.ErrTaskNotFound
		}
		return nil, errors.Wrap(err, "reading blinded order")
	}
	var winner []int
	if err = json.Unmarshal(stored.JSON, &winner); err != nil {
		return nil, errors.Wrap(err, "unmarshalling blinded order")
	}
	return winner, nil
}

// ---------------------------------------------------------------------------
// assignments

func (repo *evaluationRepository) CreateAssignment(a evaluation.Assignment) (evaluation.Assignment, error) {
	query := `
INSERT INTO participant_task_assignment (task_id, participant_id, assigned_by, status, due_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRow(query, a.TaskID, a.ParticipantID, a.AssignedBy, a.Status, a.DueDate, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return evaluation.Assignment{}, evaluation.ErrAssignmentExists
		}
		return evaluation.Assignment{}, errors.Wrap(err, "creating assignment")
	}
	return a, nil
}

const assignmentColumns = `id, task_id, participant_id, assigned_by, status, due_date, started_at, submitted_at, created_at`

func (repo *evaluationRepository) GetAssignmentByID(id int) (evaluation.Assignment, error) {
	return repo.getAssignment(`SELECT `+assignmentColumns+` FROM participant_task_assignment WHERE id = $1`, id)
}

func (repo *evaluationRepository) GetAssignment(taskID, participantID int) (evaluation.Assignment, error) {
	return repo.getAssignment(
		`SELECT `+assignmentColumns+` FROM participant_task_assignment WHERE task_id = $1 AND participant_id = $2`,
		taskID, participantID,
	)
}

func (repo *evaluationRepository) getAssignment(query string, args ...interface{}) (evaluation.Assignment, error) {
	var a evaluation.Assignment
	err := repo.db.QueryRow(query, args...).Scan(
		&a.ID, &a.TaskID, &a.ParticipantID, &a.AssignedBy, &a.Status, &a.DueDate, &a.StartedAt, &a.SubmittedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Assignment{}, evaluation.ErrAssignmentNotFound
		}
		return evaluation.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return a, nil
}

func (repo *evaluationRepository) FilterAssignmentsByTask(taskID int) ([]evaluation.Assignment, error) {
	return repo.selectAssignments(`SELECT `+assignmentColumns+` FROM participant_task_assignment WHERE task_id = $1 ORDER BY id`, taskID)
}

func (repo *evaluationRepository) FilterAssignmentsByParticipant(participantID int) ([]evaluation.Assignment, error) {
	return repo.selectAssignments(`SELECT `+assignmentColumns+` FROM participant_task_assignment WHERE participant_id = $1 ORDER BY id`, participantID)
}

func (repo *evaluationRepository) selectAssignments(query string, args ...interface{}) ([]evaluation.Assignment, error) {
	rows, err := repo.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering assignments")
	}
	defer func() { _ = rows.Close() }()

	assignments := make([]evaluation.Assignment, 0)
	for rows.Next() {
		var a evaluation.Assignment
		if err = rows.Scan(
			&a.ID, &a.TaskID, &a.ParticipantID, &a.AssignedBy, &a.Status, &a.DueDate, &a.StartedAt, &a.SubmittedAt, &a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scanning assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (repo *evaluationRepository) UpdateAssignment(a evaluation.Assignment) (evaluation.Assignment, error) {
	query := `
UPDATE participant_task_assignment
SET status = $2, due_date = $3, started_at = $4, submitted_at = $5
WHERE id = $1`
	res, err := repo.db.Exec(query, a.ID, a.Status, a.DueDate, a.StartedAt, a.SubmittedAt)
	if err != nil {
		return evaluation.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Assignment{}, evaluation.ErrAssignmentNotFound
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// scores

func (repo *evaluationRepository) UpsertScore(s evaluation.ScoreEntry) (evaluation.ScoreEntry, error) {
	value, err := json.Marshal(s.Value)
	if err != nil {
		return evaluation.ScoreEntry{}, errors.Wrap(err, "marshalling score value")
	}

	query := `
INSERT INTO score_entry (assignment_id, criterion_id, value, note, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (assignment_id, criterion_id)
    DO UPDATE SET value = EXCLUDED.value, note = EXCLUDED.note, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err = repo.db.QueryRow(query, s.AssignmentID, s.CriterionID, value, s.Note, s.UpdatedAt).Scan(&s.ID); err != nil {
		return evaluation.ScoreEntry{}, errors.Wrap(err, "upserting score")
	}
	return s, nil
}

func (repo *evaluationRepository) FilterScoresByAssignment(assignmentID int) ([]evaluation.ScoreEntry, error) {
	rows, err := repo.db.Query(`SELECT id, assignment_id, criterion_id, value, note, updated_at FROM score_entry WHERE assignment_id = $1 ORDER BY id`, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "filtering scores")
	}
	defer func() { _ = rows.Close() }()

	scores := make([]evaluation.ScoreEntry, 0)
	for rows.Next() {
		var (
			s     evaluation.ScoreEntry
			value []byte
		)
		if err = rows.Scan(&s.ID, &s.AssignmentID, &s.CriterionID, &value, &s.Note, &s.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning score")
		}
		if len(value) > 0 {
			if err = json.Unmarshal(value, &s.Value); err != nil {
				return nil, errors.Wrap(err, "unmarshalling score value")
			}
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// ---------------------------------------------------------------------------
// annotations

func (repo *evaluationRepository) CreateAnnotation(an evaluation.Annotation) (evaluation.Annotation, error) {
	query := `
INSERT INTO evaluation_annotation (assignment_id, artifact_index, panel, start_line, end_line, type, content, color, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`
	err := repo.db.QueryRow(
		query,
		an.AssignmentID, an.ArtifactIndex, an.Panel, an.StartLine, an.EndLine, an.Type, an.Content, an.Color, an.CreatedAt, an.UpdatedAt,
	).Scan(&an.ID)
	if err != nil {
		return evaluation.Annotation{}, errors.Wrap(err, "creating annotation")
	}
	return an, nil
}

const annotationColumns = `id, assignment_id, artifact_index, panel, start_line, end_line, type, content, color, created_at, updated_at`

func (repo *evaluationRepository) GetAnnotationByID(id int) (evaluation.Annotation, error) {
	var an evaluation.Annotation
	err := repo.db.QueryRow(`SELECT `+annotationColumns+` FROM evaluation_annotation WHERE id = $1`, id).Scan(
		&an.ID, &an.AssignmentID, &an.ArtifactIndex, &an.Panel, &an.StartLine, &an.EndLine,
		&an.Type, &an.Content, &an.Color, &an.CreatedAt, &an.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Annotation{}, evaluation.ErrAnnotationNotFound
		}
		return evaluation.Annotation{}, errors.Wrap(err, "getting annotation")
	}
	return an, nil
}

func (repo *evaluationRepository) UpdateAnnotation(an evaluation.Annotation) (evaluation.Annotation, error) {
	query := `
UPDATE evaluation_annotation
SET panel = $2, start_line = $3, end_line = $4, type = $5, content = $6, color = $7, updated_at = $8
WHERE id = $1`
	res, err := repo.db.Exec(query, an.ID, an.Panel, an.StartLine, an.EndLine, an.Type, an.Content, an.Color, an.UpdatedAt)
	if err != nil {
		return evaluation.Annotation{}, errors.Wrap(err, "updating annotation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Annotation{}, evaluation.ErrAnnotationNotFound
	}
	return an, nil
}

func (repo *evaluationRepository) DeleteAnnotation(id int) error {
	res, err := repo.db.Exec(`DELETE FROM evaluation_annotation WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting annotation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.ErrAnnotationNotFound
	}
	return nil
}

func (repo *evaluationRepository) FilterAnnotationsByAssignment(assignmentID int) ([]evaluation.Annotation, error) {
	rows, err := repo.db.Query(`SELECT `+annotationColumns+` FROM evaluation_annotation WHERE assignment_id = $1 ORDER BY id`, assignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "filtering annotations")
	}
	defer func() { _ = rows.Close() }()

	annotations := make([]evaluation.Annotation, 0)
	for rows.Next() {
		var an evaluation.Annotation
		if err = rows.Scan(
			&an.ID, &an.AssignmentID, &an.ArtifactIndex, &an.Panel, &an.StartLine, &an.EndLine,
			&an.Type, &an.Content, &an.Color, &an.CreatedAt, &an.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scanning annotation")
		}
		annotations = append(annotations, an)
	}
	return annotations, rows.Err()
}

// ---------------------------------------------------------------------------
// drafts

func (repo *evaluationRepository) UpsertDraft(d evaluation.Draft) (evaluation.Draft, error) {
	query := `
INSERT INTO evaluation_draft (assignment_id, content, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (assignment_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`
	if _, err := repo.db.Exec(query, d.AssignmentID, []byte(d.Content), d.UpdatedAt); err != nil {
		return evaluation.Draft{}, errors.Wrap(err, "upserting draft")
	}
	return d, nil
}

func (repo *evaluationRepository) GetDraft(assignmentID int) (evaluation.Draft, error) {
	var (
		d       evaluation.Draft
		content []byte
	)
	err := repo.db.QueryRow(`SELECT assignment_id, content, updated_at FROM evaluation_draft WHERE assignment_id = $1`, assignmentID).
		Scan(&d.AssignmentID, &content, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Draft{}, evaluation.ErrDraftNotFound
		}
		return evaluation.Draft{}, errors.Wrap(err, "getting draft")
	}
	d.Content = content
	return d, nil
}

// ---------------------------------------------------------------------------
// submissions

type submissionRow struct {
	ID               int         `db:"id"`
	AssignmentID     int         `db:"assignment_id"`
	Answers          null.JSON   `db:"answers"`
	AdditionalData   null.JSON   `db:"additional_data"`
	Snapshot         []byte      `db:"snapshot"`
	TimeSpentSeconds int         `db:"time_spent_seconds"`
	IsLocked         bool        `db:"is_locked"`
	SubmittedAt      time.Time   `db:"submitted_at"`
	ReviewerStatus   null.String `db:"reviewer_status"`
	QualityScore     null.Int    `db:"quality_score"`
	ReviewerNotes    string      `db:"reviewer_notes"`
	ReviewedBy       null.Int    `db:"reviewed_by"`
	ReviewedAt       null.Time   `db:"reviewed_at"`
}

func (row submissionRow) toSubmission() (evaluation.Submission, error) {
	s := evaluation.Submission{
		ID:               row.ID,
		AssignmentID:     row.AssignmentID,
		Snapshot:         row.Snapshot,
		TimeSpentSeconds: row.TimeSpentSeconds,
		IsLocked:         row.IsLocked,
		SubmittedAt:      row.SubmittedAt,
		ReviewerStatus:   row.ReviewerStatus,
		QualityScore:     row.QualityScore,
		ReviewerNotes:    row.ReviewerNotes,
		ReviewedBy:       row.ReviewedBy,
		ReviewedAt:       row.ReviewedAt,
	}
	if row.Answers.Valid {
		if err := json.Unmarshal(row.Answers.JSON, &s.Answers); err != nil {
			return evaluation.Submission{}, errors.Wrap(err, "unmarshalling submission answers")
		}
	}
	if row.AdditionalData.Valid {
		if err := json.Unmarshal(row.AdditionalData.JSON, &s.AdditionalData); err != nil {
			return evaluation.Submission{}, errors.Wrap(err, "unmarshalling submission data")
		}
	}
	return s, nil
}

func (repo *evaluationRepository) CreateSubmission(s evaluation.Submission) (evaluation.Submission, error) {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return evaluation.Submission{}, errors.Wrap(err, "marshalling submission answers")
	}
	additional, err := json.Marshal(s.AdditionalData)
	if err != nil {
		return evaluation.Submission{}, errors.Wrap(err, "marshalling submission data")
	}

	query := `
INSERT INTO evaluation_submission (assignment_id, answers, additional_data, snapshot, time_spent_seconds,
                                   is_locked, submitted_at, reviewer_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err = repo.db.QueryRow(
		query,
		s.AssignmentID, answers, additional, []byte(s.Snapshot), s.TimeSpentSeconds, s.IsLocked, s.SubmittedAt, s.ReviewerNotes,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return evaluation.Submission{}, evaluation.ErrSubmissionExists
		}
		return evaluation.Submission{}, errors.Wrap(err, "creating submission")
	}
	return s, nil
}

func (repo *evaluationRepository) GetSubmissionByAssignment(assignmentID int) (evaluation.Submission, error) {
	var row submissionRow
	if err := repo.db.Get(&row, `SELECT * FROM evaluation_submission WHERE assignment_id = $1`, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluation.Submission{}, evaluation.ErrSubmissionNotFound
		}
		return evaluation.Submission{}, errors.Wrap(err, "getting submission")
	}
	return row.toSubmission()
}

func (repo *evaluationRepository) FilterSubmissionsByStudy(studyID int) ([]evaluation.Submission, error) {
	query := `
SELECT s.*
FROM evaluation_submission s
         JOIN participant_task_assignment a ON a.id = s.assignment_id
         JOIN evaluation_task t ON t.id = a.task_id
WHERE t.study_id = $1
ORDER BY s.id`
	return repo.selectSubmissions(query, studyID)
}

func (repo *evaluationRepository) FilterSubmissionsByTask(taskID int) ([]evaluation.Submission, error) {
	query := `
SELECT s.*
FROM evaluation_submission s
         JOIN participant_task_assignment a ON a.id = s.assignment_id
WHERE a.task_id = $1
ORDER BY s.id`
	return repo.selectSubmissions(query, taskID)
}

func (repo *evaluationRepository) FilterSubmissionsByReviewer(reviewerID int) ([]evaluation.Submission, error) {
	return repo.selectSubmissions(`SELECT * FROM evaluation_submission WHERE reviewed_by = $1 ORDER BY reviewed_at DESC`, reviewerID)
}

func (repo *evaluationRepository) selectSubmissions(query string, args ...interface{}) ([]evaluation.Submission, error) {
	var rows []submissionRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering submissions")
	}
	submissions := make([]evaluation.Submission, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSubmission()
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}
	return submissions, nil
}

func (repo *evaluationRepository) UpdateSubmission(s evaluation.Submission) (evaluation.Submission, error) {
	query := `
UPDATE evaluation_submission
SET reviewer_status = $2, quality_score = $3, reviewer_notes = $4, reviewed_by = $5, reviewed_at = $6
WHERE id = $1`
	res, err := repo.db.Exec(query, s.ID, s.ReviewerStatus, s.QualityScore, s.ReviewerNotes, s.ReviewedBy, s.ReviewedAt)
	if err != nil {
		return evaluation.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return evaluation.Submission{}, evaluation.ErrSubmissionNotFound
	}
	return s, nil
}
