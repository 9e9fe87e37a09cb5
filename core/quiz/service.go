package quiz

import "errors"

var ErrNotFound = errors.New("quiz assignment not found")

type (
	Repository interface {
		CreateQuizAssignment(qa Assignment) (Assignment, error)
		GetQuizAssignment(studyID, participantID int) (Assignment, error)
		FilterQuizAssignmentsByStudy(studyID int) ([]Assignment, error)
		UpdateQuizAssignment(qa Assignment) (Assignment, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(qa Assignment) (Assignment, error) {
	return svc.repo.CreateQuizAssignment(qa)
}

func (svc *Service) Get(studyID, participantID int) (Assignment, error) {
	return svc.repo.GetQuizAssignment(studyID, participantID)
}

// ParticipantStanding reports the participant's questionnaire standing for a study.
// A missing quiz assignment yields a zero Standing, not an error.
func (svc *Service) ParticipantStanding(studyID, participantID int) (Standing, error) {
	qa, err := svc.repo.GetQuizAssignment(studyID, participantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Standing{}, nil
		}
		return Standing{}, err
	}
	return Standing{Completed: qa.Completed, Passed: qa.Passed}, nil
}

// IsEligible is the quiz-completion gate consumed by task assignment.
func (svc *Service) IsEligible(studyID, participantID int, questionnaireType string) (bool, error) {
	standing, err := svc.ParticipantStanding(studyID, participantID)
	if err != nil {
		return false, err
	}
	return standing.Satisfies(questionnaireType), nil
}
