package evaluation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Artifact types
const (
	ArtifactBugReport      = "BUG_REPORT"
	ArtifactCodeClone      = "CODE_CLONE"
	ArtifactSolidViolation = "SOLID_VIOLATION"
	ArtifactSnapshot       = "SNAPSHOT"
)

// Snapshot decisions
const (
	SnapshotDecisionBug            = "BUG"
	SnapshotDecisionExpectedChange = "EXPECTED_CHANGE"
)

// Allowed values for the per-artifact-type submission fields.
var (
	CloneRelationships = []string{
		"EXACT_COPY",
		"RENAMED_COPY",
		"RESTRUCTURED_COPY",
		"DIFFERENT_IMPLEMENTATION",
		"NO_RELATION",
	}
	BugSeverities         = []string{"Critical", "Major", "Moderate", "Minor", "Trivial"}
	BugReproducibleValues = []string{"YES", "NO", "UNCLEAR"}
	BugCategories         = []string{
		"UI Bug",
		"Functional Bug",
		"Performance Issue",
		"Security Issue",
		"Compatibility Issue",
		"Other",
	}
	SolidPrinciples = []string{
		"Single Responsibility Principle (SRP)",
		"Open/Closed Principle (OCP)",
		"Liskov Substitution Principle (LSP)",
		"Interface Segregation Principle (ISP)",
		"Dependency Inversion Principle (DIP)",
		"None / No Violation",
	}
	SolidSeverities = []string{"Critical", "Major", "Moderate", "Minor", "Very Minor"}
)

type (
	// ArtifactPayload is the closed set of artifact content variants.
	// Each variant carries only its own fields; the Artifact envelope
	// holds what is common to all of them.
	ArtifactPayload interface {
		artifactType() string
	}

	// Artifact is a stored unit of content under evaluation.
	Artifact struct {
		ID        uuid.UUID         `json:"id"`
		StudyID   int               `json:"study_id"`
		Name      string            `json:"name"`
		Order     int               `json:"order"`
		Metadata  map[string]string `json:"metadata,omitempty"`
		Payload   ArtifactPayload   `json:"-"`
		CreatedAt time.Time         `json:"created_at"` // UTC
	}

	BugReport struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		StepsToRepr string `json:"steps_to_reproduce,omitempty"`
		Environment string `json:"environment,omitempty"`
	}

	CodeClone struct {
		LeftSource    string `json:"left_source"`
		RightSource   string `json:"right_source"`
		LeftLanguage  string `json:"left_language,omitempty"`
		RightLanguage string `json:"right_language,omitempty"`
	}

	SolidViolation struct {
		Source   string `json:"source"`
		Language string `json:"language,omitempty"`
	}

	// Snapshot is a before/after pair of visual captures.
	Snapshot struct {
		BeforeImageURL string `json:"before_image_url"`
		AfterImageURL  string `json:"after_image_url"`
		PageURL        string `json:"page_url,omitempty"`
	}
)

func (BugReport) artifactType() string      { return ArtifactBugReport }
func (CodeClone) artifactType() string      { return ArtifactCodeClone }
func (SolidViolation) artifactType() string { return ArtifactSolidViolation }
func (Snapshot) artifactType() string       { return ArtifactSnapshot }

// Type returns the artifact's variant tag, empty when no payload is set.
func (a *Artifact) Type() string {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.artifactType()
}

type artifactJSON struct {
	ID        uuid.UUID         `json:"id"`
	StudyID   int               `json:"study_id"`
	Name      string            `json:"name"`
	Order     int               `json:"order"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}

func (a Artifact) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling artifact payload")
	}
	return json.Marshal(artifactJSON{
		ID:        a.ID,
		StudyID:   a.StudyID,
		Name:      a.Name,
		Order:     a.Order,
		Metadata:  a.Metadata,
		Type:      a.Type(),
		Payload:   payload,
		CreatedAt: a.CreatedAt,
	})
}

func (a *Artifact) UnmarshalJSON(data []byte) error {
	var aj artifactJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	a.ID = aj.ID
	a.StudyID = aj.StudyID
	a.Name = aj.Name
	a.Order = aj.Order
	a.Metadata = aj.Metadata
	a.CreatedAt = aj.CreatedAt

	if len(aj.Payload) == 0 {
		a.Payload = nil
		return nil
	}
	switch aj.Type {
	case ArtifactBugReport:
		var p BugReport
		if err := json.Unmarshal(aj.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case ArtifactCodeClone:
		var p CodeClone
		if err := json.Unmarshal(aj.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case ArtifactSolidViolation:
		var p SolidViolation
		if err := json.Unmarshal(aj.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	case ArtifactSnapshot:
		var p Snapshot
		if err := json.Unmarshal(aj.Payload, &p); err != nil {
			return err
		}
		a.Payload = p
	default:
		return errors.Errorf("unknown artifact type %q", aj.Type)
	}
	return nil
}
