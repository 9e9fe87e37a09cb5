package quiz

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Questionnaire types
const (
	QuestionnaireCompetency = "COMPETENCY"
	QuestionnaireBackground = "BACKGROUND"
)

// Assignment is a participant's instance of a study questionnaire.
// The evaluation workflow only consumes its completion/passing facts.
type Assignment struct {
	ID              int          `json:"id"`
	StudyID         int          `json:"study_id"`
	ParticipantID   int          `json:"participant_id"`
	QuestionnaireID int          `json:"questionnaire_id"`
	Completed       bool         `json:"completed"`
	Passed          bool         `json:"passed"`
	Score           null.Float64 `json:"score"`
	CompletedAt     time.Time    `json:"completed_at"` // UTC; zero when not completed
	CreatedAt       time.Time    `json:"created_at"`   // UTC
}

// Standing summarizes a participant's questionnaire state for a study.
type Standing struct {
	Completed bool
	Passed    bool
}

// Satisfies reports whether the standing clears the eligibility gate for
// the given questionnaire type: competency questionnaires must be passed,
// any other type only needs completion.
func (s Standing) Satisfies(questionnaireType string) bool {
	if !s.Completed {
		return false
	}
	if questionnaireType == QuestionnaireCompetency {
		return s.Passed
	}
	return true
}
