package evaluation_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/evaluation"
	"github.com/insightlab/insightlab/core/quiz"
	"github.com/insightlab/insightlab/core/user"
	dummydb "github.com/insightlab/insightlab/storage/database/dummy"
)

type capturingNotifier struct {
	sync.Mutex
	notifications []*core.Notification
}

func (n *capturingNotifier) Notify(notifications ...*core.Notification) {
	n.Lock()
	defer n.Unlock()
	n.notifications = append(n.notifications, notifications...)
}

func (n *capturingNotifier) all() []*core.Notification {
	n.Lock()
	defer n.Unlock()
	return append([]*core.Notification(nil), n.notifications...)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})           {}
func (noopLogger) Info(string, ...interface{})            {}
func (noopLogger) Warn(string, ...interface{})            {}
func (noopLogger) Error(string, error, ...interface{})    {}
func (noopLogger) Critical(string, error, ...interface{}) {}

type testEnv struct {
	svc      *evaluation.Service
	usrRepo  user.Repository
	quizRepo quiz.Repository
	notifier *capturingNotifier

	researcher  user.User
	participant user.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() error = %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	quizRepo := dummydb.NewQuizRepository(db)
	evalRepo := dummydb.NewEvaluationRepository(db)

	notifier := new(capturingNotifier)
	svc := evaluation.NewService(evalRepo, usrRepo, quiz.NewService(quizRepo), notifier, noopLogger{})

	env := &testEnv{svc: svc, usrRepo: usrRepo, quizRepo: quizRepo, notifier: notifier}
	env.researcher = env.createUser(t, "Grace Hopper", "grace@test.insightlab.dev", user.RoleResearcher)
	env.participant = env.createUser(t, "Alan Kay", "alan@test.insightlab.dev", user.RoleParticipant)
	return env
}

func (env *testEnv) createUser(t *testing.T, name, email, role string) user.User {
	t.Helper()
	usr, err := env.usrRepo.CreateUser(user.User{Name: name, Email: email, IsActive: true, Role: role})
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", email, err)
	}
	return usr
}

func (env *testEnv) createStudy(t *testing.T, questionnaireType string) evaluation.Study {
	t.Helper()
	study, err := env.svc.CreateStudy(evaluation.Study{
		Name:              "Defect Perception",
		ResearcherID:      env.researcher.ID,
		QuestionnaireType: questionnaireType,
	})
	if err != nil {
		t.Fatalf("CreateStudy() error = %v", err)
	}
	return study
}

func (env *testEnv) createTask(t *testing.T, study evaluation.Study, blinded bool) evaluation.Task {
	t.Helper()
	task, err := env.svc.CreateTask(env.researcher, evaluation.NewTask{
		StudyID:      study.ID,
		Title:        "Rate bug report quality",
		ArtifactType: evaluation.ArtifactBugReport,
		LayoutMode:   evaluation.LayoutSingle,
		BlindedMode:  blinded,
		Artifacts:    []evaluation.ArtifactReference{{DisplayLabel: "Bug #1"}},
		Criteria: []evaluation.CriterionDefinition{
			{ID: "quality", Name: "Quality", Type: evaluation.CriterionRating, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return task
}

func (env *testEnv) completeQuiz(t *testing.T, studyID, participantID int, passed bool) {
	t.Helper()
	_, err := env.quizRepo.CreateQuizAssignment(quiz.Assignment{
		StudyID:       studyID,
		ParticipantID: participantID,
		Completed:     true,
		Passed:        passed,
		CompletedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateQuizAssignment() error = %v", err)
	}
}

func (env *testEnv) assign(t *testing.T, taskID int) evaluation.Assignment {
	t.Helper()
	assignment, err := env.svc.Assign(taskID, env.participant.ID, env.researcher, null.Time{})
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	return assignment
}

func validSubmissionRequest() evaluation.SubmissionRequest {
	return evaluation.SubmissionRequest{
		Answers: map[string]interface{}{"single_0_quality": 4},
		AdditionalData: map[string]interface{}{
			"bug_severity":     "Major",
			"bug_reproducible": "YES",
		},
		TimeSpentSeconds: 95,
	}
}

func TestService_Assign_eligibilityGate(t *testing.T) {
	tests := []struct {
		name              string
		questionnaireType string
		completed         bool
		passed            bool
		wantEligible      bool
	}{
		{name: "no quiz record", questionnaireType: quiz.QuestionnaireBackground},
		{name: "background completed", questionnaireType: quiz.QuestionnaireBackground, completed: true, wantEligible: true},
		{name: "competency completed but failed", questionnaireType: quiz.QuestionnaireCompetency, completed: true},
		{name: "competency passed", questionnaireType: quiz.QuestionnaireCompetency, completed: true, passed: true, wantEligible: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			study := env.createStudy(t, tt.questionnaireType)
			task := env.createTask(t, study, false)
			if tt.completed {
				env.completeQuiz(t, study.ID, env.participant.ID, tt.passed)
			}

			_, err := env.svc.Assign(task.ID, env.participant.ID, env.researcher, null.Time{})
			if tt.wantEligible {
				if err != nil {
					t.Fatalf("Assign() error = %v, want nil", err)
				}
				return
			}
			var eErr *core.EligibilityError
			if !errors.As(err, &eErr) {
				t.Fatalf("Assign() error = %v, want *core.EligibilityError", err)
			}
			if eErr.Participant != env.participant.Name {
				t.Errorf("EligibilityError.Participant = %s, want %s", eErr.Participant, env.participant.Name)
			}
		})
	}
}

func TestService_Assign(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)

	if task.Status != evaluation.TaskDraft {
		t.Errorf("new task Status = %s, want %s", task.Status, evaluation.TaskDraft)
	}

	assignment := env.assign(t, task.ID)
	if assignment.Status != evaluation.AssignmentPending {
		t.Errorf("Status = %s, want %s", assignment.Status, evaluation.AssignmentPending)
	}

	// the first assignment activates the draft task
	if activated, err := env.svc.GetTask(task.ID); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	} else if activated.Status != evaluation.TaskActive {
		t.Errorf("task Status after assign = %s, want %s", activated.Status, evaluation.TaskActive)
	}
	if assignment.AssignedBy != env.researcher.ID {
		t.Errorf("AssignedBy = %d, want %d", assignment.AssignedBy, env.researcher.ID)
	}

	// the participant is notified exactly once
	notifications := env.notifier.all()
	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}
	if notifications[0].Type != core.NotificationEvaluationTaskAssigned {
		t.Errorf("notification type = %s, want %s", notifications[0].Type, core.NotificationEvaluationTaskAssigned)
	}
	if notifications[0].Recipient.ID != env.participant.ID {
		t.Errorf("notification recipient = %d, want %d", notifications[0].Recipient.ID, env.participant.ID)
	}

	// a second assignment for the same (task, participant) pair must conflict
	_, err := env.svc.Assign(task.ID, env.participant.ID, env.researcher, null.Time{})
	var cErr *core.ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("duplicate Assign() error = %v, want *core.ConflictError", err)
	}
}

func TestService_AddParticipants_convergence(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	env.assign(t, task.ID)

	other := env.createUser(t, "Barbara Liskov", "barbara@test.insightlab.dev", user.RoleParticipant)
	env.completeQuiz(t, study.ID, other.ID, false)

	// overlapping list: the existing assignment is skipped, not an error
	created, err := env.svc.AddParticipants(task.ID, env.researcher, []int{env.participant.ID, other.ID}, null.Time{})
	if err != nil {
		t.Fatalf("AddParticipants() error = %v", err)
	}
	if len(created) != 1 || created[0].ParticipantID != other.ID {
		t.Fatalf("AddParticipants() created = %+v, want one assignment for participant %d", created, other.ID)
	}

	// repeating the same call converges to no new assignments
	created, err = env.svc.AddParticipants(task.ID, env.researcher, []int{env.participant.ID, other.ID}, null.Time{})
	if err != nil {
		t.Fatalf("repeated AddParticipants() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("repeated AddParticipants() created %d assignments, want 0", len(created))
	}

	assignments, err := env.svc.FilterAssignments(task.ID)
	if err != nil {
		t.Fatalf("FilterAssignments() error = %v", err)
	}
	if len(assignments) != 2 {
		t.Errorf("task has %d assignments, want 2", len(assignments))
	}
}

func TestService_Start_idempotent(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	assignment := env.assign(t, task.ID)

	started, err := env.svc.Start(assignment.ID, env.participant.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != evaluation.AssignmentInProgress {
		t.Errorf("Status = %s, want %s", started.Status, evaluation.AssignmentInProgress)
	}
	if !started.StartedAt.Valid {
		t.Fatal("StartedAt not stamped")
	}

	again, err := env.svc.Start(assignment.ID, env.participant.ID)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !again.StartedAt.Time.Equal(started.StartedAt.Time) {
		t.Errorf("second Start() moved StartedAt from %v to %v", started.StartedAt.Time, again.StartedAt.Time)
	}

	// the status filter narrows the participant's listing
	inProgress, err := env.svc.ParticipantAssignments(env.participant.ID, evaluation.AssignmentInProgress)
	if err != nil {
		t.Fatalf("ParticipantAssignments() error = %v", err)
	}
	if len(inProgress) != 1 {
		t.Errorf("got %d IN_PROGRESS assignments, want 1", len(inProgress))
	}
	if pending, _ := env.svc.ParticipantAssignments(env.participant.ID, evaluation.AssignmentPending); len(pending) != 0 {
		t.Errorf("got %d PENDING assignments, want 0", len(pending))
	}

	// assignments are only visible to their participant
	_, err = env.svc.Start(assignment.ID, env.researcher.ID)
	var nfErr *core.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Errorf("Start() by another user error = %v, want *core.NotFoundError", err)
	}
}

func TestService_Submit(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	assignment := env.assign(t, task.ID)

	if _, err := env.svc.Start(assignment.ID, env.participant.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := env.svc.SaveScore(assignment.ID, env.participant.ID, evaluation.NewScore{CriterionID: "quality", Value: 4}); err != nil {
		t.Fatalf("SaveScore() error = %v", err)
	}
	if _, err := env.svc.SaveAnnotation(assignment.ID, env.participant.ID, evaluation.NewAnnotation{
		Type: evaluation.AnnotationNote, Content: "stack trace is truncated",
	}); err != nil {
		t.Fatalf("SaveAnnotation() error = %v", err)
	}

	submission, err := env.svc.Submit(assignment.ID, env.participant.ID, validSubmissionRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !submission.IsLocked {
		t.Error("submission is not locked")
	}
	if submission.SubmittedAt.IsZero() {
		t.Error("SubmittedAt not stamped")
	}
	if submission.TimeSpentSeconds != 95 {
		t.Errorf("TimeSpentSeconds = %d, want 95", submission.TimeSpentSeconds)
	}

	// the snapshot freezes scores, annotations and answers in one document
	var snapshot map[string]json.RawMessage
	if err = json.Unmarshal(submission.Snapshot, &snapshot); err != nil {
		t.Fatalf("unmarshalling snapshot: %v", err)
	}
	for _, key := range []string{"scores", "annotations", "answers"} {
		if _, ok := snapshot[key]; !ok {
			t.Errorf("snapshot is missing %q", key)
		}
	}

	updated, err := env.svc.GetAssignment(assignment.ID, env.participant.ID)
	if err != nil {
		t.Fatalf("GetAssignment() error = %v", err)
	}
	if updated.Status != evaluation.AssignmentSubmitted {
		t.Errorf("Status = %s, want %s", updated.Status, evaluation.AssignmentSubmitted)
	}
	if !updated.SubmittedAt.Valid {
		t.Error("assignment SubmittedAt not stamped")
	}
}

func TestService_Submit_immutability(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	assignment := env.assign(t, task.ID)

	annotation, err := env.svc.SaveAnnotation(assignment.ID, env.participant.ID, evaluation.NewAnnotation{
		Type: evaluation.AnnotationHighlight, Content: "line 12",
	})
	if err != nil {
		t.Fatalf("SaveAnnotation() error = %v", err)
	}
	if _, err = env.svc.Submit(assignment.ID, env.participant.ID, validSubmissionRequest()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var stateErr *core.StateError
	if _, err = env.svc.SaveScore(assignment.ID, env.participant.ID, evaluation.NewScore{CriterionID: "quality", Value: 5}); !errors.As(err, &stateErr) {
		t.Errorf("SaveScore() after submit error = %v, want *core.StateError", err)
	}
	if _, err = env.svc.SaveAnnotation(assignment.ID, env.participant.ID, evaluation.NewAnnotation{
		Type: evaluation.AnnotationNote, Content: "too late",
	}); !errors.As(err, &stateErr) {
		t.Errorf("SaveAnnotation() after submit error = %v, want *core.StateError", err)
	}
	if err = env.svc.DeleteAnnotation(annotation.ID, env.participant.ID); !errors.As(err, &stateErr) {
		t.Errorf("DeleteAnnotation() after submit error = %v, want *core.StateError", err)
	}

	var cErr *core.ConflictError
	if _, err = env.svc.Submit(assignment.ID, env.participant.ID, validSubmissionRequest()); !errors.As(err, &cErr) {
		t.Errorf("second Submit() error = %v, want *core.ConflictError", err)
	}
}

func TestService_SaveDraft(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, false)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	assignment := env.assign(t, task.ID)

	content := json.RawMessage(`{"single_0_quality":3}`)
	if _, err := env.svc.SaveDraft(assignment.ID, env.participant.ID, content); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	draft, err := env.svc.GetDraft(assignment.ID, env.participant.ID)
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if string(draft.Content) != string(content) {
		t.Errorf("draft content = %s, want %s", draft.Content, content)
	}

	// saves after submission silently no-op instead of erroring
	if _, err = env.svc.Submit(assignment.ID, env.participant.ID, validSubmissionRequest()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err = env.svc.SaveDraft(assignment.ID, env.participant.ID, json.RawMessage(`{"single_0_quality":5}`)); err != nil {
		t.Fatalf("SaveDraft() after submit error = %v, want nil", err)
	}
	draft, err = env.svc.GetDraft(assignment.ID, env.participant.ID)
	if err != nil {
		t.Fatalf("GetDraft() after submit error = %v", err)
	}
	if string(draft.Content) != string(content) {
		t.Errorf("draft content overwritten after submit: %s", draft.Content)
	}
}

func TestService_GetTaskDetail_blindedOrderStable(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)

	task, err := env.svc.CreateTask(env.researcher, evaluation.NewTask{
		StudyID:      study.ID,
		Title:        "Compare clone candidates",
		ArtifactType: evaluation.ArtifactCodeClone,
		LayoutMode:   evaluation.LayoutSideBySide,
		BlindedMode:  true,
		Artifacts: []evaluation.ArtifactReference{
			{DisplayLabel: "Original"},
			{DisplayLabel: "Clone"},
			{DisplayLabel: "Refactor"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	first, err := env.svc.GetTaskDetail(task.ID)
	if err != nil {
		t.Fatalf("GetTaskDetail() error = %v", err)
	}
	if len(first.Task.BlindedOrder) != 3 {
		t.Fatalf("BlindedOrder = %v, want a 3-element permutation", first.Task.BlindedOrder)
	}
	for i, pa := range first.Artifacts {
		if !pa.Blinded {
			t.Errorf("artifacts[%d] not blinded", i)
		}
	}

	// every subsequent access sees the cached order
	second, err := env.svc.GetTaskDetail(task.ID)
	if err != nil {
		t.Fatalf("second GetTaskDetail() error = %v", err)
	}
	for i := range first.Artifacts {
		if first.Artifacts[i].ArtifactID != second.Artifacts[i].ArtifactID {
			t.Fatalf("artifact order changed between accesses: %v vs %v", first.Artifacts, second.Artifacts)
		}
	}
}

func TestService_ExportRows(t *testing.T) {
	env := newTestEnv(t)
	study := env.createStudy(t, quiz.QuestionnaireBackground)
	task := env.createTask(t, study, true /* blinded */)
	env.completeQuiz(t, study.ID, env.participant.ID, false)
	assignment := env.assign(t, task.ID)
	if _, err := env.svc.Submit(assignment.ID, env.participant.ID, validSubmissionRequest()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rows, err := env.svc.ExportRows(task.ID, env.researcher)
	if err != nil {
		t.Fatalf("ExportRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if want := evaluation.ParticipantAlias(&task, env.participant.ID, env.participant.Name); row.Participant != want {
		t.Errorf("Participant = %s, want anonymized %s", row.Participant, want)
	}
	if row.Status != evaluation.AssignmentSubmitted {
		t.Errorf("Status = %s, want %s", row.Status, evaluation.AssignmentSubmitted)
	}
	if row.TimeSpentSeconds != 95 {
		t.Errorf("TimeSpentSeconds = %d, want 95", row.TimeSpentSeconds)
	}
	if row.Answers == nil {
		t.Error("Answers not exported")
	}

	// only the task's researcher (or an admin) may export
	stranger := user.User{ID: env.researcher.ID + 100, Role: user.RoleResearcher}
	_, err = env.svc.ExportRows(task.ID, stranger)
	var authErr *core.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Errorf("ExportRows() by non-owner error = %v, want *core.AuthorizationError", err)
	}
}
