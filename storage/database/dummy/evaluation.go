package dummydb

import (
	"sort"

	"github.com/google/uuid"

	"github.com/insightlab/insightlab/core/evaluation"
)

type evaluationRepository struct {
	study      *studyTable
	artifact   *artifactTable
	task       *taskTable
	assignment *assignmentTable
	score      *scoreTable
	annotation *annotationTable
	draft      *draftTable
	submission *submissionTable
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *DB) evaluation.Repository {
	return &evaluationRepository{
		study:      db.study,
		artifact:   db.artifact,
		task:       db.task,
		assignment: db.assignment,
		score:      db.score,
		annotation: db.annotation,
		draft:      db.draft,
		submission: db.submission,
	}
}

// ---------------------------------------------------------------------------
// studies

func (repo *evaluationRepository) CreateStudy(study evaluation.Study) (evaluation.Study, error) {
	repo.study.Lock()
	defer repo.study.Unlock()

	repo.study.pk++
	study.ID = repo.study.pk
	repo.study.table[study.ID] = &study
	return study, nil
}

func (repo *evaluationRepository) GetStudyByID(id int) (evaluation.Study, error) {
	repo.study.RLock()
	defer repo.study.RUnlock()

	if study, ok := repo.study.table[id]; ok {
		return *study, nil
	}
	return evaluation.Study{}, evaluation.ErrStudyNotFound
}

func (repo *evaluationRepository) QueryAllStudies() ([]evaluation.Study, error) {
	repo.study.RLock()
	defer repo.study.RUnlock()

	studies := make([]evaluation.Study, 0, len(repo.study.table))
	for _, study := range repo.study.table {
		studies = append(studies, *study)
	}
	sort.Slice(studies, func(i, j int) bool { return studies[i].ID < studies[j].ID })
	return studies, nil
}

// ---------------------------------------------------------------------------
// artifacts

func (repo *evaluationRepository) CreateArtifact(a evaluation.Artifact) (evaluation.Artifact, error) {
	repo.artifact.Lock()
	defer repo.artifact.Unlock()

	repo.artifact.table[a.ID] = &a
	return a, nil
}

func (repo *evaluationRepository) GetArtifactByID(id uuid.UUID) (evaluation.Artifact, error) {
	repo.artifact.RLock()
	defer repo.artifact.RUnlock()

	if a, ok := repo.artifact.table[id]; ok {
		return *a, nil
	}
	return evaluation.Artifact{}, evaluation.ErrArtifactNotFound
}

func (repo *evaluationRepository) FilterArtifactsByStudy(studyID int) ([]evaluation.Artifact, error) {
	repo.artifact.RLock()
	defer repo.artifact.RUnlock()

	artifacts := make([]evaluation.Artifact, 0)
	for _, a := range repo.artifact.table {
		if a.StudyID == studyID {
			artifacts = append(artifacts, *a)
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Order < artifacts[j].Order })
	return artifacts, nil
}

// ---------------------------------------------------------------------------
// tasks

func (repo *evaluationRepository) CreateTask(task evaluation.Task) (evaluation.Task, error) {
	repo.task.Lock()
	defer repo.task.Unlock()

	repo.task.pk++
	task.ID = repo.task.pk
	repo.task.table[task.ID] = &task
	return task, nil
}

func (repo *evaluationRepository) GetTaskByID(id int) (evaluation.Task, error) {
	repo.task.RLock()
	defer repo.task.RUnlock()

	if task, ok := repo.task.table[id]; ok {
		return *task, nil
	}
	return evaluation.Task{}, evaluation.ErrTaskNotFound
}

func (repo *evaluationRepository) FilterTasksByStudy(studyID int) ([]evaluation.Task, error) {
	repo.task.RLock()
	defer repo.task.RUnlock()

	tasks := make([]evaluation.Task, 0)
	for _, task := range repo.task.table {
		if task.StudyID == studyID {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (repo *evaluationRepository) UpdateTask(task evaluation.Task) (evaluation.Task, error) {
	repo.task.Lock()
	defer repo.task.Unlock()

	if _, ok := repo.task.table[task.ID]; !ok {
		return evaluation.Task{}, evaluation.ErrTaskNotFound
	}
	repo.task.table[task.ID] = &task
	return task, nil
}

// SetTaskBlindedOrder caches the permutation only when none is stored yet;
// a losing racer gets the winner's order back.
func (repo *evaluationRepository) SetTaskBlindedOrder(taskID int, order []int) ([]int, error) {
	repo.task.Lock()
	defer repo.task.Unlock()

	task, ok := repo.task.table[taskID]
	if !ok {
		return nil, evaluation.ErrTaskNotFound
	}
	if len(task.BlindedOrder) > 0 {
		return task.BlindedOrder, nil
	}
	task.BlindedOrder = order
	return order, nil
}

// ---------------------------------------------------------------------------
// assignments

func (repo *evaluationRepository) CreateAssignment(a evaluation.Assignment) (evaluation.Assignment, error) {
	repo.assignment.Lock()
	defer repo.assignment.Unlock()

	for _, existing := range repo.assignment.table {
		if existing.TaskID == a.TaskID && existing.ParticipantID == a.ParticipantID {
			return evaluation.Assignment{}, evaluation.ErrAssignmentExists
		}
	}

	repo.assignment.pk++
	a.ID = repo.assignment.pk
	repo.assignment.table[a.ID] = &a
	return a, nil
}

func (repo *evaluationRepository) GetAssignmentByID(id int) (evaluation.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	if a, ok := repo.assignment.table[id]; ok {
		return *a, nil
	}
	return evaluation.Assignment{}, evaluation.ErrAssignmentNotFound
}

func (repo *evaluationRepository) GetAssignment(taskID, participantID int) (evaluation.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	for _, a := range repo.assignment.table {
		if a.TaskID == taskID && a.ParticipantID == participantID {
			return *a, nil
		}
	}
	return evaluation.Assignment{}, evaluation.ErrAssignmentNotFound
}

func (repo *evaluationRepository) FilterAssignmentsByTask(taskID int) ([]evaluation.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	assignments := make([]evaluation.Assignment, 0)
	for _, a := range repo.assignment.table {
		if a.TaskID == taskID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (repo *evaluationRepository) FilterAssignmentsByParticipant(participantID int) ([]evaluation.Assignment, error) {
	repo.assignment.RLock()
	defer repo.assignment.RUnlock()

	assignments := make([]evaluation.Assignment, 0)
	for _, a := range repo.assignment.table {
		if a.ParticipantID == participantID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (repo *evaluationRepository) UpdateAssignment(a evaluation.Assignment) (evaluation.Assignment, error) {
	repo.assignment.Lock()
	defer repo.assignment.Unlock()

	if _, ok := repo.assignment.table[a.ID]; !ok {
		return evaluation.Assignment{}, evaluation.ErrAssignmentNotFound
	}
	repo.assignment.table[a.ID] = &a
	return a, nil
}

// ---------------------------------------------------------------------------
// scores

func (repo *evaluationRepository) UpsertScore(s evaluation.ScoreEntry) (evaluation.ScoreEntry, error) {
	repo.score.Lock()
	defer repo.score.Unlock()

	for _, existing := range repo.score.table {
		if existing.AssignmentID == s.AssignmentID && existing.CriterionID == s.CriterionID {
			s.ID = existing.ID
			repo.score.table[s.ID] = &s
			return s, nil
		}
	}

	repo.score.pk++
	s.ID = repo.score.pk
	repo.score.table[s.ID] = &s
	return s, nil
}

func (repo *evaluationRepository) FilterScoresByAssignment(assignmentID int) ([]evaluation.ScoreEntry, error) {
	repo.score.RLock()
	defer repo.score.RUnlock()

	scores := make([]evaluation.ScoreEntry, 0)
	for _, s := range repo.score.table {
		if s.AssignmentID == assignmentID {
			scores = append(scores, *s)
		}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].ID < scores[j].ID })
	return scores, nil
}

// ---------------------------------------------------------------------------
// annotations

func (repo *evaluationRepository) CreateAnnotation(an evaluation.Annotation) (evaluation.Annotation, error) {
	repo.annotation.Lock()
	defer repo.annotation.Unlock()

	repo.annotation.pk++
	an.ID = repo.annotation.pk
	repo.annotation.table[an.ID] = &an
	return an, nil
}

func (repo *evaluationRepository) GetAnnotationByID(id int) (evaluation.Annotation, error) {
	repo.annotation.RLock()
	defer repo.annotation.RUnlock()

	if an, ok := repo.annotation.table[id]; ok {
		return *an, nil
	}
	return evaluation.Annotation{}, evaluation.ErrAnnotationNotFound
}

func (repo *evaluationRepository) UpdateAnnotation(an evaluation.Annotation) (evaluation.Annotation, error) {
	repo.annotation.Lock()
	defer repo.annotation.Unlock()

	if _, ok := repo.annotation.table[an.ID]; !ok {
		return evaluation.Annotation{}, evaluation.ErrAnnotationNotFound
	}
	repo.annotation.table[an.ID] = &an
	return an, nil
}

func (repo *evaluationRepository) DeleteAnnotation(id int) error {
	repo.annotation.Lock()
	defer repo.annotation.Unlock()

	if _, ok := repo.annotation.table[id]; !ok {
		return evaluation.ErrAnnotationNotFound
	}
	delete(repo.annotation.table, id)
	return nil
}

func (repo *evaluationRepository) FilterAnnotationsByAssignment(assignmentID int) ([]evaluation.Annotation, error) {
	repo.annotation.RLock()
	defer repo.annotation.RUnlock()

	annotations := make([]evaluation.Annotation, 0)
	for _, an := range repo.annotation.table {
		if an.AssignmentID == assignmentID {
			annotations = append(annotations, *an)
		}
	}
	sort.Slice(annotations, func(i, j int) bool { return annotations[i].ID < annotations[j].ID })
	return annotations, nil
}

// ---------------------------------------------------------------------------
// drafts

func (repo *evaluationRepository) UpsertDraft(d evaluation.Draft) (evaluation.Draft, error) {
	repo.draft.Lock()
	defer repo.draft.Unlock()

	repo.draft.table[d.AssignmentID] = &d
	return d, nil
}

func (repo *evaluationRepository) GetDraft(assignmentID int) (evaluation.Draft, error) {
	repo.draft.RLock()
	defer repo.draft.RUnlock()

	if d, ok := repo.draft.table[assignmentID]; ok {
		return *d, nil
	}
	return evaluation.Draft{}, evaluation.ErrDraftNotFound
}

// ---------------------------------------------------------------------------
// submissions

func (repo *evaluationRepository) CreateSubmission(s evaluation.Submission) (evaluation.Submission, error) {
	repo.submission.Lock()
	defer repo.submission.Unlock()

	for _, existing := range repo.submission.table {
		if existing.AssignmentID == s.AssignmentID {
			return evaluation.Submission{}, evaluation.ErrSubmissionExists
		}
	}

	repo.submission.pk++
	s.ID = repo.submission.pk
	repo.submission.table[s.ID] = &s
	return s, nil
}

func (repo *evaluationRepository) GetSubmissionByAssignment(assignmentID int) (evaluation.Submission, error) {
	repo.submission.RLock()
	defer repo.submission.RUnlock()

	for _, s := range repo.submission.table {
		if s.AssignmentID == assignmentID {
			return *s, nil
		}
	}
	return evaluation.Submission{}, evaluation.ErrSubmissionNotFound
}

func (repo *evaluationRepository) FilterSubmissionsByStudy(studyID int) ([]evaluation.Submission, error) {
	taskIDs := make(map[int]struct{})
	repo.task.RLock()
	for _, task := range repo.task.table {
		if task.StudyID == studyID {
			taskIDs[task.ID] = struct{}{}
		}
	}
	repo.task.RUnlock()

	assignmentIDs := make(map[int]struct{})
	repo.assignment.RLock()
	for _, a := range repo.assignment.table {
		if _, ok := taskIDs[a.TaskID]; ok {
			assignmentIDs[a.ID] = struct{}{}
		}
	}
	repo.assignment.RUnlock()

	repo.submission.RLock()
	defer repo.submission.RUnlock()

	submissions := make([]evaluation.Submission, 0)
	for _, s := range repo.submission.table {
		if _, ok := assignmentIDs[s.AssignmentID]; ok {
			submissions = append(submissions, *s)
		}
	}
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].ID < submissions[j].ID })
	return submissions, nil
}

func (repo *evaluationRepository) FilterSubmissionsByTask(taskID int) ([]evaluation.Submission, error) {
	assignmentIDs := make(map[int]struct{})
	repo.assignment.RLock()
	for _, a := range repo.assignment.table {
		if a.TaskID == taskID {
			assignmentIDs[a.ID] = struct{}{}
		}
	}
	repo.assignment.RUnlock()

	repo.submission.RLock()
	defer repo.submission.RUnlock()

	submissions := make([]evaluation.Submission, 0)
	for _, s := range repo.submission.table {
		if _, ok := assignmentIDs[s.AssignmentID]; ok {
			submissions = append(submissions, *s)
		}
	}
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].ID < submissions[j].ID })
	return submissions, nil
}

func (repo *evaluationRepository) FilterSubmissionsByReviewer(reviewerID int) ([]evaluation.Submission, error) {
	repo.submission.RLock()
	defer repo.submission.RUnlock()

	submissions := make([]evaluation.Submission, 0)
	for _, s := range repo.submission.table {
		if s.ReviewedBy.Valid && int(s.ReviewedBy.Int) == reviewerID {
			submissions = append(submissions, *s)
		}
	}
	sort.Slice(submissions, func(i, j int) bool { return submissions[i].ID < submissions[j].ID })
	return submissions, nil
}

func (repo *evaluationRepository) UpdateSubmission(s evaluation.Submission) (evaluation.Submission, error) {
	repo.submission.Lock()
	defer repo.submission.Unlock()

	if _, ok := repo.submission.table[s.ID]; !ok {
		return evaluation.Submission{}, evaluation.ErrSubmissionNotFound
	}
	repo.submission.table[s.ID] = &s
	return s, nil
}
