package evaluation

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/insightlab/insightlab/core"
)

func requireFieldErrors(t *testing.T, err error, wantFields ...string) []core.FieldError {
	t.Helper()
	if err == nil {
		t.Fatalf("ValidateSubmission() error = nil, want fields %v", wantFields)
	}
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("ValidateSubmission() error = %T, want *core.ValidationError", err)
	}
	if len(vErr.Fields) != len(wantFields) {
		t.Fatalf("got %d field errors %v, want %d: %v", len(vErr.Fields), vErr.Fields, len(wantFields), wantFields)
	}
	got := make(map[string]bool, len(vErr.Fields))
	for _, fErr := range vErr.Fields {
		got[fErr.Field] = true
	}
	for _, field := range wantFields {
		if !got[field] {
			t.Errorf("missing field error for %q in %v", field, vErr.Fields)
		}
	}
	return vErr.Fields
}

func TestValidateSubmission_requiredCriteria(t *testing.T) {
	task := Task{
		ArtifactType: ArtifactBugReport,
		LayoutMode:   LayoutSingle,
		Artifacts:    []ArtifactReference{{DisplayLabel: "Bug #1"}},
		Criteria: []CriterionDefinition{
			{ID: "clarity", Name: "Clarity", Type: CriterionRating, Required: true},
			{ID: "impact", Name: "Impact", Type: CriterionRating, Required: true},
			{ID: "notes", Name: "Notes", Type: CriterionText, Required: true},
		},
	}

	// all violations are collected in one pass, never short-circuited
	req := SubmissionRequest{
		Answers: map[string]interface{}{
			"single_0_clarity": 4,
			"single_0_impact":  "   ", // blank counts as not filled
		},
		AdditionalData: map[string]interface{}{
			"bug_severity":     "Major",
			"bug_reproducible": "YES",
		},
	}
	fields := requireFieldErrors(t, ValidateSubmission(&task, req), "single_0_impact", "single_0_notes")

	for _, fErr := range fields {
		if fErr.Field == "single_0_impact" && fErr.Error != "Required field not filled for artifact 1: Impact" {
			t.Errorf("unexpected message: %s", fErr.Error)
		}
	}
}

func TestValidateSubmission_pairKeyScoping(t *testing.T) {
	// 5 artifacts side by side -> 3 pairs; only pair 1 answered
	task := Task{
		ArtifactType: ArtifactCodeClone,
		LayoutMode:   LayoutSideBySide,
		Artifacts:    make([]ArtifactReference, 5),
		Criteria: []CriterionDefinition{
			{ID: "similarity", Name: "Similarity", Type: CriterionRating, Required: true},
		},
	}
	if got := task.PairCount(); got != 3 {
		t.Fatalf("PairCount() = %d, want 3", got)
	}

	req := SubmissionRequest{
		Answers: map[string]interface{}{
			"pair_1_similarity": 3,
		},
		AdditionalData: map[string]interface{}{
			"clone_relationship": "EXACT_COPY",
		},
	}
	fields := requireFieldErrors(t, ValidateSubmission(&task, req), "pair_0_similarity", "pair_2_similarity")

	want := map[string]string{
		"pair_0_similarity": "Required field not filled for pair 1: Similarity",
		"pair_2_similarity": "Required field not filled for pair 3: Similarity",
	}
	for _, fErr := range fields {
		if fErr.Error != want[fErr.Field] {
			t.Errorf("message for %s = %q, want %q", fErr.Field, fErr.Error, want[fErr.Field])
		}
	}
}

func TestValidateSubmission_tripletCount(t *testing.T) {
	task := Task{
		ArtifactType: ArtifactSolidViolation,
		LayoutMode:   LayoutThreeWay,
		Artifacts:    make([]ArtifactReference, 4), // -> 2 triplets
		Criteria: []CriterionDefinition{
			{ID: "severity", Name: "Severity", Type: CriterionSelection, Required: true},
		},
	}
	req := SubmissionRequest{
		AdditionalData: map[string]interface{}{
			"solid_principle": "Single Responsibility Principle (SRP)",
		},
	}
	requireFieldErrors(t, ValidateSubmission(&task, req), "triplet_0_severity", "triplet_1_severity")
}

func TestValidateSubmission_flatKeyFallback(t *testing.T) {
	// no artifact references: grouping degrades to plain criterion ids
	task := Task{
		ArtifactType: ArtifactBugReport,
		LayoutMode:   LayoutSingle,
		Criteria: []CriterionDefinition{
			{ID: "clarity", Name: "Clarity", Type: CriterionRating, Required: true},
		},
	}
	req := SubmissionRequest{
		AdditionalData: map[string]interface{}{
			"bug_severity":     "Minor",
			"bug_reproducible": "NO",
		},
	}
	fields := requireFieldErrors(t, ValidateSubmission(&task, req), "clarity")
	if fields[0].Error != "Required field not filled: Clarity" {
		t.Errorf("unexpected message: %s", fields[0].Error)
	}
}

func TestValidateSubmission_ratingBounds(t *testing.T) {
	newTask := func() Task {
		return Task{
			ArtifactType: ArtifactBugReport,
			LayoutMode:   LayoutSingle,
			Artifacts:    []ArtifactReference{{}},
			Criteria: []CriterionDefinition{
				{
					ID: "quality", Name: "Quality", Type: CriterionRating, Required: true,
					ScaleMin: null.Float64From(1), ScaleMax: null.Float64From(5),
				},
			},
		}
	}
	additional := map[string]interface{}{
		"bug_severity":     "Critical",
		"bug_reproducible": "UNCLEAR",
	}

	tests := []struct {
		name    string
		value   interface{}
		wantErr string
	}{
		{name: "below min", value: 0.5, wantErr: "Quality (artifact 1) must be >= 1"},
		{name: "above max", value: 6, wantErr: "Quality (artifact 1) must be <= 5"},
		{name: "min is inclusive", value: 1},
		{name: "max is inclusive", value: 5},
		{name: "non-numeric left alone", value: "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask()
			req := SubmissionRequest{
				Answers:        map[string]interface{}{"single_0_quality": tt.value},
				AdditionalData: additional,
			}
			err := ValidateSubmission(&task, req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateSubmission() error = %v, want nil", err)
				}
				return
			}
			fields := requireFieldErrors(t, err, "single_0_quality")
			if fields[0].Error != tt.wantErr {
				t.Errorf("message = %q, want %q", fields[0].Error, tt.wantErr)
			}
		})
	}
}

func TestValidateSubmission_additionalData(t *testing.T) {
	tests := []struct {
		name         string
		artifactType string
		data         map[string]interface{}
		wantFields   []string
	}{
		{
			name:         "snapshot decision required",
			artifactType: ArtifactSnapshot,
			data:         map[string]interface{}{},
			wantFields:   []string{"snapshot_decision"},
		},
		{
			name:         "snapshot decision invalid",
			artifactType: ArtifactSnapshot,
			data:         map[string]interface{}{"snapshot_decision": "MAYBE"},
			wantFields:   []string{"snapshot_decision"},
		},
		{
			name:         "snapshot decision valid",
			artifactType: ArtifactSnapshot,
			data:         map[string]interface{}{"snapshot_decision": SnapshotDecisionBug},
		},
		{
			name:         "clone relationship invalid",
			artifactType: ArtifactCodeClone,
			data:         map[string]interface{}{"clone_relationship": "SORT_OF_SIMILAR"},
			wantFields:   []string{"clone_relationship"},
		},
		{
			name:         "clone similarity out of range",
			artifactType: ArtifactCodeClone,
			data:         map[string]interface{}{"clone_relationship": "NO_RELATION", "clone_similarity": 101},
			wantFields:   []string{"clone_similarity"},
		},
		{
			name:         "clone similarity boundary ok",
			artifactType: ArtifactCodeClone,
			data:         map[string]interface{}{"clone_relationship": "RENAMED_COPY", "clone_similarity": 100},
		},
		{
			name:         "bug report requires severity and reproducibility",
			artifactType: ArtifactBugReport,
			data:         map[string]interface{}{},
			wantFields:   []string{"bug_severity", "bug_reproducible"},
		},
		{
			name:         "bug category optional but validated",
			artifactType: ArtifactBugReport,
			data: map[string]interface{}{
				"bug_severity":     "Trivial",
				"bug_reproducible": "YES",
				"bug_category":     "Cosmetic Bug",
			},
			wantFields: []string{"bug_category"},
		},
		{
			name:         "solid principle invalid",
			artifactType: ArtifactSolidViolation,
			data:         map[string]interface{}{"solid_principle": "SRP"},
			wantFields:   []string{"solid_principle"},
		},
		{
			name:         "solid no-violation option valid",
			artifactType: ArtifactSolidViolation,
			data:         map[string]interface{}{"solid_principle": "None / No Violation", "solid_severity": "Very Minor"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := Task{ArtifactType: tt.artifactType, LayoutMode: LayoutSingle}
			err := ValidateSubmission(&task, SubmissionRequest{AdditionalData: tt.data})
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateSubmission() error = %v, want nil", err)
				}
				return
			}
			requireFieldErrors(t, err, tt.wantFields...)
		})
	}
}
