package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core/review"
)

type reviewRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *sqlx.DB) review.Repository {
	return &reviewRepository{db: db}
}

type reviewerRow struct {
	ID            int       `db:"id"`
	StudyID       int       `db:"study_id"`
	ReviewerID    int       `db:"reviewer_id"`
	AssignedBy    int       `db:"assigned_by"`
	Status        string    `db:"status"`
	AssignedAt    time.Time `db:"assigned_at"`
	AcceptedAt    null.Time `db:"accepted_at"`
	DeclinedAt    null.Time `db:"declined_at"`
	CompletedAt   null.Time `db:"completed_at"`
	DeclineReason string    `db:"decline_reason"`
	ReviewerNotes string    `db:"reviewer_notes"`

	TotalEvaluations    int `db:"total_evaluations"`
	ReviewedEvaluations int `db:"reviewed_evaluations"`
	AcceptedEvaluations int `db:"accepted_evaluations"`
	RejectedEvaluations int `db:"rejected_evaluations"`
	FlaggedEvaluations  int `db:"flagged_evaluations"`
}

func (row reviewerRow) toAssignment() review.ReviewerAssignment {
	return review.ReviewerAssignment{
		ID:                  row.ID,
		StudyID:             row.StudyID,
		ReviewerID:          row.ReviewerID,
		AssignedBy:          row.AssignedBy,
		Status:              row.Status,
		AssignedAt:          row.AssignedAt,
		AcceptedAt:          row.AcceptedAt,
		DeclinedAt:          row.DeclinedAt,
		CompletedAt:         row.CompletedAt,
		DeclineReason:       row.DeclineReason,
		ReviewerNotes:       row.ReviewerNotes,
		TotalEvaluations:    row.TotalEvaluations,
		ReviewedEvaluations: row.ReviewedEvaluations,
		AcceptedEvaluations: row.AcceptedEvaluations,
		RejectedEvaluations: row.RejectedEvaluations,
		FlaggedEvaluations:  row.FlaggedEvaluations,
	}
}

func (repo *reviewRepository) CreateReviewerAssignment(ra review.ReviewerAssignment) (review.ReviewerAssignment, error) {
	query := `
INSERT INTO reviewer_assignment (study_id, reviewer_id, assigned_by, status, assigned_at, total_evaluations)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRow(query, ra.StudyID, ra.ReviewerID, ra.AssignedBy, ra.Status, ra.AssignedAt, ra.TotalEvaluations).
		Scan(&ra.ID)
	if err != nil {
		return review.ReviewerAssignment{}, errors.Wrap(err, "creating reviewer assignment")
	}
	return ra, nil
}

func (repo *reviewRepository) GetReviewerAssignmentByID(id int) (review.ReviewerAssignment, error) {
	return repo.getAssignment(`SELECT * FROM reviewer_assignment WHERE id = $1`, id)
}

// GetReviewerAssignment returns the latest assignment for the pair, so a
// fresh assignment supersedes an earlier declined one.
func (repo *reviewRepository) GetReviewerAssignment(studyID, reviewerID int) (review.ReviewerAssignment, error) {
	return repo.getAssignment(
		`SELECT * FROM reviewer_assignment WHERE study_id = $1 AND reviewer_id = $2 ORDER BY id DESC LIMIT 1`,
		studyID, reviewerID,
	)
}

func (repo *reviewRepository) getAssignment(query string, args ...interface{}) (review.ReviewerAssignment, error) {
	var row reviewerRow
	if err := repo.db.Get(&row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return review.ReviewerAssignment{}, review.ErrReviewerAssignmentNotFound
		}
		return review.ReviewerAssignment{}, errors.Wrap(err, "getting reviewer assignment")
	}
	return row.toAssignment(), nil
}

func (repo *reviewRepository) FilterReviewerAssignmentsByReviewer(reviewerID int) ([]review.ReviewerAssignment, error) {
	return repo.selectAssignments(
		`SELECT * FROM reviewer_assignment WHERE reviewer_id = $1 ORDER BY assigned_at DESC, id DESC`,
		reviewerID,
	)
}

func (repo *reviewRepository) FilterReviewerAssignmentsByStudy(studyID int) ([]review.ReviewerAssignment, error) {
	return repo.selectAssignments(
		`SELECT * FROM reviewer_assignment WHERE study_id = $1 ORDER BY assigned_at DESC, id DESC`,
		studyID,
	)
}

func (repo *reviewRepository) selectAssignments(query string, args ...interface{}) ([]review.ReviewerAssignment, error) {
	var rows []reviewerRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering reviewer assignments")
	}
	assignments := make([]review.ReviewerAssignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.toAssignment())
	}
	return assignments, nil
}

func (repo *reviewRepository) UpdateReviewerAssignment(ra review.ReviewerAssignment) (review.ReviewerAssignment, error) {
	query := `
UPDATE reviewer_assignment
SET status               = $2,
    accepted_at          = $3,
    declined_at          = $4,
    completed_at         = $5,
    decline_reason       = $6,
    reviewer_notes       = $7,
    total_evaluations    = $8,
    reviewed_evaluations = $9,
    accepted_evaluations = $10,
    rejected_evaluations = $11,
    flagged_evaluations  = $12
WHERE id = $1`
	res, err := repo.db.Exec(
		query,
		ra.ID, ra.Status, ra.AcceptedAt, ra.DeclinedAt, ra.CompletedAt, ra.DeclineReason, ra.ReviewerNotes,
		ra.TotalEvaluations, ra.ReviewedEvaluations, ra.AcceptedEvaluations, ra.RejectedEvaluations, ra.FlaggedEvaluations,
	)
	if err != nil {
		return review.ReviewerAssignment{}, errors.Wrap(err, "updating reviewer assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return review.ReviewerAssignment{}, review.ErrReviewerAssignmentNotFound
	}
	return ra, nil
}
