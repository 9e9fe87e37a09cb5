package dummydb

import "github.com/insightlab/insightlab/core/quiz"

type quizRepository struct {
	db *quizTable
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db.quiz}
}

func (repo *quizRepository) CreateQuizAssignment(qa quiz.Assignment) (quiz.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	qa.ID = repo.db.pk
	repo.db.table[qa.ID] = &qa
	return qa, nil
}

func (repo *quizRepository) GetQuizAssignment(studyID, participantID int) (quiz.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, qa := range repo.db.table {
		if qa.StudyID == studyID && qa.ParticipantID == participantID {
			return *qa, nil
		}
	}
	return quiz.Assignment{}, quiz.ErrNotFound
}

func (repo *quizRepository) FilterQuizAssignmentsByStudy(studyID int) ([]quiz.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]quiz.Assignment, 0)
	for _, qa := range repo.db.table {
		if qa.StudyID == studyID {
			assignments = append(assignments, *qa)
		}
	}
	return assignments, nil
}

func (repo *quizRepository) UpdateQuizAssignment(qa quiz.Assignment) (quiz.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[qa.ID]; !ok {
		return quiz.Assignment{}, quiz.ErrNotFound
	}
	repo.db.table[qa.ID] = &qa
	return qa, nil
}
