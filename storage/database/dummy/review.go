package dummydb

import (
	"sort"

	"github.com/insightlab/insightlab/core/review"
)

type reviewRepository struct {
	db *reviewerTable
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db.reviewer}
}

func (repo *reviewRepository) CreateReviewerAssignment(ra review.ReviewerAssignment) (review.ReviewerAssignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	ra.ID = repo.db.pk
	repo.db.table[ra.ID] = &ra
	return ra, nil
}

func (repo *reviewRepository) GetReviewerAssignmentByID(id int) (review.ReviewerAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ra, ok := repo.db.table[id]; ok {
		return *ra, nil
	}
	return review.ReviewerAssignment{}, review.ErrReviewerAssignmentNotFound
}

func (repo *reviewRepository) GetReviewerAssignment(studyID, reviewerID int) (review.ReviewerAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found *review.ReviewerAssignment
	for _, ra := range repo.db.table {
		if ra.StudyID == studyID && ra.ReviewerID == reviewerID {
			// prefer the latest assignment when a declined one was replaced
			if found == nil || ra.ID > found.ID {
				found = ra
			}
		}
	}
	if found == nil {
		return review.ReviewerAssignment{}, review.ErrReviewerAssignmentNotFound
	}
	return *found, nil
}

func (repo *reviewRepository) FilterReviewerAssignmentsByReviewer(reviewerID int) ([]review.ReviewerAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]review.ReviewerAssignment, 0)
	for _, ra := range repo.db.table {
		if ra.ReviewerID == reviewerID {
			assignments = append(assignments, *ra)
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].AssignedAt.After(assignments[j].AssignedAt)
	})
	return assignments, nil
}

func (repo *reviewRepository) FilterReviewerAssignmentsByStudy(studyID int) ([]review.ReviewerAssignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]review.ReviewerAssignment, 0)
	for _, ra := range repo.db.table {
		if ra.StudyID == studyID {
			assignments = append(assignments, *ra)
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].AssignedAt.After(assignments[j].AssignedAt)
	})
	return assignments, nil
}

func (repo *reviewRepository) UpdateReviewerAssignment(ra review.ReviewerAssignment) (review.ReviewerAssignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[ra.ID]; !ok {
		return review.ReviewerAssignment{}, review.ErrReviewerAssignmentNotFound
	}
	repo.db.table[ra.ID] = &ra
	return ra, nil
}
