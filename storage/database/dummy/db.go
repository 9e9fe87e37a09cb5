package dummydb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/insightlab/insightlab/core/evaluation"
	"github.com/insightlab/insightlab/core/quiz"
	"github.com/insightlab/insightlab/core/review"
	"github.com/insightlab/insightlab/core/user"
)

// DB is an in-memory database for tests and local development.
type (
	DB struct {
		user       *userTable
		quiz       *quizTable
		study      *studyTable
		artifact   *artifactTable
		task       *taskTable
		assignment *assignmentTable
		score      *scoreTable
		annotation *annotationTable
		draft      *draftTable
		submission *submissionTable
		reviewer   *reviewerTable
	}

	userTable struct {
		sync.RWMutex
		pk    int
		table map[int]*user.User
	}

	quizTable struct {
		sync.RWMutex
		pk    int
		table map[int]*quiz.Assignment
	}

	studyTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.Study
	}

	artifactTable struct {
		sync.RWMutex
		table map[uuid.UUID]*evaluation.Artifact
	}

	taskTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.Task
	}

	assignmentTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.Assignment
	}

	scoreTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.ScoreEntry
	}

	annotationTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.Annotation
	}

	draftTable struct {
		sync.RWMutex
		table map[int]*evaluation.Draft // keyed by assignment id
	}

	submissionTable struct {
		sync.RWMutex
		pk    int
		table map[int]*evaluation.Submission
	}

	reviewerTable struct {
		sync.RWMutex
		pk    int
		table map[int]*review.ReviewerAssignment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[int]*user.User)},
		quiz:       &quizTable{table: make(map[int]*quiz.Assignment)},
		study:      &studyTable{table: make(map[int]*evaluation.Study)},
		artifact:   &artifactTable{table: make(map[uuid.UUID]*evaluation.Artifact)},
		task:       &taskTable{table: make(map[int]*evaluation.Task)},
		assignment: &assignmentTable{table: make(map[int]*evaluation.Assignment)},
		score:      &scoreTable{table: make(map[int]*evaluation.ScoreEntry)},
		annotation: &annotationTable{table: make(map[int]*evaluation.Annotation)},
		draft:      &draftTable{table: make(map[int]*evaluation.Draft)},
		submission: &submissionTable{table: make(map[int]*evaluation.Submission)},
		reviewer:   &reviewerTable{table: make(map[int]*review.ReviewerAssignment)},
	}
	return db, nil
}
