package evaluation

import (
	"fmt"
	"math/rand"
)

// PresentedArtifact is the participant/reviewer-facing view of one artifact
// slot. In blinded mode the real label, metadata and tags are withheld.
type PresentedArtifact struct {
	Position   int               `json:"position"`
	Label      string            `json:"label"`
	ArtifactID string            `json:"artifact_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Blinded    bool              `json:"blinded"`
}

// letterLabel converts a zero-based position into a spreadsheet-style
// letter sequence: A..Z, AA, AB, ...
func letterLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}

// newBlindedOrder generates an unbiased random permutation of n positions.
func newBlindedOrder(n int) []int {
	return rand.Perm(n)
}

// presentationOrder resolves the order artifacts are shown in: the stored
// display order, or the task's cached blinded permutation. The caller must
// have ensured BlindedOrder is populated for blinded tasks.
func presentationOrder(task *Task) []int {
	n := len(task.Artifacts)
	if task.BlindedMode && len(task.BlindedOrder) == n {
		return task.BlindedOrder
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// PresentArtifacts maps a task's artifact references into their presented
// views. Every participant and reviewer of the task gets the identical
// result, which is what makes cross-participant comparison valid.
func PresentArtifacts(task *Task) []PresentedArtifact {
	order := presentationOrder(task)
	presented := make([]PresentedArtifact, 0, len(order))
	for pos, idx := range order {
		ref := task.Artifacts[idx]
		pa := PresentedArtifact{
			Position:   pos,
			ArtifactID: ref.ArtifactID.String(),
			Blinded:    task.BlindedMode,
		}
		if task.BlindedMode {
			pa.Label = letterLabel(pos)
		} else {
			pa.Label = ref.DisplayLabel
			pa.Metadata = ref.Metadata
			pa.Tags = ref.Tags
		}
		presented = append(presented, pa)
	}
	return presented
}

// FallbackLabels produces positional labels for legacy single-content tasks
// that carry no artifact-reference list.
func FallbackLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = "Artifact " + letterLabel(i)
	}
	return labels
}

// ParticipantAlias masks a participant's identity in reviewer-facing views
// of a blinded task.
func ParticipantAlias(task *Task, participantID int, realName string) string {
	if task != nil && task.BlindedMode {
		return fmt.Sprintf("ReviewerParticipant #%d", participantID)
	}
	return realName
}
