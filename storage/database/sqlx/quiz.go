package sqlxrepos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/insightlab/insightlab/core/quiz"
)

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *sqlx.DB) quiz.Repository {
	return &quizRepository{db: db}
}

func (repo *quizRepository) CreateQuizAssignment(qa quiz.Assignment) (quiz.Assignment, error) {
	query := `
INSERT INTO quiz_assignment (study_id, participant_id, questionnaire_id, completed, passed, score, completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '0001-01-01 00:00:00+00'::timestamptz), $8)
RETURNING id`
	err := repo.db.QueryRow(
		query,
		qa.StudyID, qa.ParticipantID, qa.QuestionnaireID, qa.Completed, qa.Passed, qa.Score, qa.CompletedAt, qa.CreatedAt,
	).Scan(&qa.ID)
	if err != nil {
		return quiz.Assignment{}, errors.Wrap(err, "creating quiz assignment")
	}
	return qa, nil
}

func (repo *quizRepository) GetQuizAssignment(studyID, participantID int) (quiz.Assignment, error) {
	var qa quiz.Assignment
	query := `
SELECT id, study_id, participant_id, questionnaire_id, completed, passed, score,
       COALESCE(completed_at, '0001-01-01 00:00:00+00'::timestamptz) AS completed_at, created_at
FROM quiz_assignment
WHERE study_id = $1 AND participant_id = $2`
	err := repo.db.QueryRow(query, studyID, participantID).Scan(
		&qa.ID, &qa.StudyID, &qa.ParticipantID, &qa.QuestionnaireID,
		&qa.Completed, &qa.Passed, &qa.Score, &qa.CompletedAt, &qa.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Assignment{}, quiz.ErrNotFound
		}
		return quiz.Assignment{}, errors.Wrap(err, "getting quiz assignment")
	}
	return qa, nil
}

func (repo *quizRepository) FilterQuizAssignmentsByStudy(studyID int) ([]quiz.Assignment, error) {
	query := `
SELECT id, study_id, participant_id, questionnaire_id, completed, passed, score,
       COALESCE(completed_at, '0001-01-01 00:00:00+00'::timestamptz) AS completed_at, created_at
FROM quiz_assignment
WHERE study_id = $1
ORDER BY id`
	rows, err := repo.db.Query(query, studyID)
	if err != nil {
		return nil, errors.Wrap(err, "filtering quiz assignments")
	}
	defer func() { _ = rows.Close() }()

	assignments := make([]quiz.Assignment, 0)
	for rows.Next() {
		var qa quiz.Assignment
		if err = rows.Scan(
			&qa.ID, &qa.StudyID, &qa.ParticipantID, &qa.QuestionnaireID,
			&qa.Completed, &qa.Passed, &qa.Score, &qa.CompletedAt, &qa.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scanning quiz assignment")
		}
		assignments = append(assignments, qa)
	}
	return assignments, rows.Err()
}

func (repo *quizRepository) UpdateQuizAssignment(qa quiz.Assignment) (quiz.Assignment, error) {
	query := `
UPDATE quiz_assignment
SET completed = $2, passed = $3, score = $4, completed_at = NULLIF($5, '0001-01-01 00:00:00+00'::timestamptz)
WHERE id = $1`
	res, err := repo.db.Exec(query, qa.ID, qa.Completed, qa.Passed, qa.Score, qa.CompletedAt)
	if err != nil {
		return quiz.Assignment{}, errors.Wrap(err, "updating quiz assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return quiz.Assignment{}, quiz.ErrNotFound
	}
	return qa, nil
}
