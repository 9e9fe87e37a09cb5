package evaluation

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func Test_letterLabel(t *testing.T) {
	tests := []struct {
		pos  int
		want string
	}{
		{pos: 0, want: "A"},
		{pos: 1, want: "B"},
		{pos: 25, want: "Z"},
		{pos: 26, want: "AA"},
		{pos: 27, want: "AB"},
		{pos: 51, want: "AZ"},
		{pos: 52, want: "BA"},
		{pos: 701, want: "ZZ"},
		{pos: 702, want: "AAA"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := letterLabel(tt.pos); got != tt.want {
				t.Errorf("letterLabel(%d) = %s, want %s", tt.pos, got, tt.want)
			}
		})
	}
}

func TestFallbackLabels(t *testing.T) {
	want := []string{"Artifact A", "Artifact B", "Artifact C"}
	if got := FallbackLabels(3); !reflect.DeepEqual(got, want) {
		t.Errorf("FallbackLabels(3) = %v, want %v", got, want)
	}
}

func newTestTask(blinded bool) Task {
	return Task{
		ID:          1,
		BlindedMode: blinded,
		Artifacts: []ArtifactReference{
			{ArtifactID: uuid.New(), DisplayLabel: "Original", Metadata: map[string]string{"source": "repo-a"}, Tags: []string{"java"}},
			{ArtifactID: uuid.New(), DisplayLabel: "Clone", Metadata: map[string]string{"source": "repo-b"}, Tags: []string{"java"}},
			{ArtifactID: uuid.New(), DisplayLabel: "Refactor", Metadata: map[string]string{"source": "repo-c"}},
		},
	}
}

func TestPresentArtifacts(t *testing.T) {
	t.Run("unblinded keeps labels and metadata", func(t *testing.T) {
		task := newTestTask(false)
		presented := PresentArtifacts(&task)
		if len(presented) != 3 {
			t.Fatalf("len(presented) = %d, want 3", len(presented))
		}
		for i, pa := range presented {
			if pa.Blinded {
				t.Errorf("presented[%d].Blinded = true, want false", i)
			}
			if pa.Label != task.Artifacts[i].DisplayLabel {
				t.Errorf("presented[%d].Label = %s, want %s", i, pa.Label, task.Artifacts[i].DisplayLabel)
			}
			if pa.Metadata == nil {
				t.Errorf("presented[%d].Metadata stripped on unblinded task", i)
			}
		}
	})

	t.Run("blinded withholds identity", func(t *testing.T) {
		task := newTestTask(true)
		task.BlindedOrder = []int{2, 0, 1}

		presented := PresentArtifacts(&task)
		wantLabels := []string{"A", "B", "C"}
		wantIDs := []string{
			task.Artifacts[2].ArtifactID.String(),
			task.Artifacts[0].ArtifactID.String(),
			task.Artifacts[1].ArtifactID.String(),
		}
		for i, pa := range presented {
			if !pa.Blinded {
				t.Errorf("presented[%d].Blinded = false, want true", i)
			}
			if pa.Label != wantLabels[i] {
				t.Errorf("presented[%d].Label = %s, want %s", i, pa.Label, wantLabels[i])
			}
			if pa.ArtifactID != wantIDs[i] {
				t.Errorf("presented[%d].ArtifactID = %s, want %s", i, pa.ArtifactID, wantIDs[i])
			}
			if pa.Metadata != nil || pa.Tags != nil {
				t.Errorf("presented[%d] leaks metadata/tags on blinded task", i)
			}
		}
	})

	t.Run("blinded order is stable across calls", func(t *testing.T) {
		task := newTestTask(true)
		task.BlindedOrder = []int{1, 2, 0}

		first := PresentArtifacts(&task)
		second := PresentArtifacts(&task)
		if !reflect.DeepEqual(first, second) {
			t.Error("PresentArtifacts() is not stable for a cached blinded order")
		}
	})

	t.Run("stale cached order falls back to display order", func(t *testing.T) {
		task := newTestTask(true)
		task.BlindedOrder = []int{1, 0} // does not cover all 3 artifacts

		presented := PresentArtifacts(&task)
		for i, pa := range presented {
			if pa.ArtifactID != task.Artifacts[i].ArtifactID.String() {
				t.Errorf("presented[%d] did not fall back to display order", i)
			}
		}
	})
}

func TestParticipantAlias(t *testing.T) {
	blinded := newTestTask(true)
	open := newTestTask(false)

	tests := []struct {
		name string
		task *Task
		want string
	}{
		{name: "blinded task masks identity", task: &blinded, want: "ReviewerParticipant #42"},
		{name: "open task keeps real name", task: &open, want: "Jane Doe"},
		{name: "nil task keeps real name", task: nil, want: "Jane Doe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParticipantAlias(tt.task, 42, "Jane Doe"); got != tt.want {
				t.Errorf("ParticipantAlias() = %s, want %s", got, tt.want)
			}
		})
	}
}
