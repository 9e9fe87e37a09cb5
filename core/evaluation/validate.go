package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/insightlab/insightlab/core"
)

var errSubmissionInvalid = errors.New("submission validation failed")

// ValidateSubmission checks a proposed submission against the task's
// criteria definitions and artifact type. All violations are collected,
// never short-circuited, so the caller can report every problem at once.
// Returns a core.ValidationError carrying one field error per violation.
func ValidateSubmission(task *Task, req SubmissionRequest) error {
	var fields []core.FieldError
	fields = append(fields, validateCriteria(task, req.Answers)...)
	fields = append(fields, validateAdditionalData(task.ArtifactType, req.AdditionalData)...)
	if len(fields) > 0 {
		return core.NewValidationError(errSubmissionInvalid, fields...)
	}
	return nil
}

// validateCriteria applies the layout-dependent answer key scheme: one key
// per artifact (SINGLE), per pair (SIDE_BY_SIDE) or per triplet (THREE_WAY),
// falling back to a flat criterion-id key when no grouping applies.
func validateCriteria(task *Task, answers map[string]interface{}) []core.FieldError {
	var fields []core.FieldError

	groupCount := 0
	keyPrefix := ""
	groupNoun := ""
	switch task.LayoutMode {
	case LayoutSingle:
		groupCount, keyPrefix, groupNoun = len(task.Artifacts), "single", "artifact"
	case LayoutSideBySide:
		groupCount, keyPrefix, groupNoun = task.PairCount(), "pair", "pair"
	case LayoutThreeWay:
		groupCount, keyPrefix, groupNoun = task.TripletCount(), "triplet", "triplet"
	}

	for _, criterion := range task.Criteria {
		if groupCount > 0 {
			for i := 0; i < groupCount; i++ {
				key := fmt.Sprintf("%s_%d_%s", keyPrefix, i, criterion.ID)
				value, ok := answers[key]
				if !ok || isEmptyValue(value) {
					if criterion.Required {
						fields = append(fields, core.FieldError{
							Field: key,
							Error: fmt.Sprintf("Required field not filled for %s %d: %s", groupNoun, i+1, criterion.Name),
						})
					}
					continue
				}
				fields = append(fields, checkRatingBounds(criterion, key,
					fmt.Sprintf("%s (%s %d)", criterion.Name, groupNoun, i+1), value)...)
			}
			continue
		}

		// flat key scheme
		value, ok := answers[criterion.ID]
		if !ok || isEmptyValue(value) {
			if criterion.Required {
				fields = append(fields, core.FieldError{
					Field: criterion.ID,
					Error: "Required field not filled: " + criterion.Name,
				})
			}
			continue
		}
		fields = append(fields, checkRatingBounds(criterion, criterion.ID, criterion.Name, value)...)
	}
	return fields
}

// checkRatingBounds enforces declared scale bounds, inclusive, on numeric
// rating answers. Non-numeric values are left to the criterion type's own
// semantics.
func checkRatingBounds(criterion CriterionDefinition, key, name string, value interface{}) []core.FieldError {
	if !strings.EqualFold(criterion.Type, CriterionRating) {
		return nil
	}
	num, ok := numericValue(value)
	if !ok {
		return nil
	}
	var fields []core.FieldError
	if criterion.ScaleMin.Valid && num < criterion.ScaleMin.Float64 {
		fields = append(fields, core.FieldError{
			Field: key,
			Error: fmt.Sprintf("%s must be >= %v", name, criterion.ScaleMin.Float64),
		})
	}
	if criterion.ScaleMax.Valid && num > criterion.ScaleMax.Float64 {
		fields = append(fields, core.FieldError{
			Field: key,
			Error: fmt.Sprintf("%s must be <= %v", name, criterion.ScaleMax.Float64),
		})
	}
	return fields
}

// validateAdditionalData enforces the per-artifact-type submission fields
// and their allowed value sets.
func validateAdditionalData(artifactType string, data map[string]interface{}) []core.FieldError {
	var fields []core.FieldError
	str := func(key string) string {
		s, _ := data[key].(string)
		return s
	}

	switch artifactType {
	case ArtifactSnapshot:
		switch decision := str("snapshot_decision"); {
		case strings.TrimSpace(decision) == "":
			fields = append(fields, core.FieldError{Field: "snapshot_decision", Error: "Snapshot decision is required"})
		case decision != SnapshotDecisionBug && decision != SnapshotDecisionExpectedChange:
			fields = append(fields, core.FieldError{Field: "snapshot_decision", Error: "Invalid snapshot decision value"})
		}

	case ArtifactCodeClone:
		switch relationship := str("clone_relationship"); {
		case strings.TrimSpace(relationship) == "":
			fields = append(fields, core.FieldError{Field: "clone_relationship", Error: "Clone relationship is required"})
		case !contains(CloneRelationships, relationship):
			fields = append(fields, core.FieldError{Field: "clone_relationship", Error: "Invalid clone relationship value"})
		}
		if similarity, ok := numericValue(data["clone_similarity"]); ok && (similarity < 0 || similarity > 100) {
			fields = append(fields, core.FieldError{Field: "clone_similarity", Error: "Similarity score must be between 0 and 100"})
		}

	case ArtifactBugReport:
		switch severity := str("bug_severity"); {
		case strings.TrimSpace(severity) == "":
			fields = append(fields, core.FieldError{Field: "bug_severity", Error: "Bug severity is required"})
		case !contains(BugSeverities, severity):
			fields = append(fields, core.FieldError{Field: "bug_severity", Error: "Invalid bug severity value"})
		}
		switch reproducible := str("bug_reproducible"); {
		case strings.TrimSpace(reproducible) == "":
			fields = append(fields, core.FieldError{Field: "bug_reproducible", Error: "Reproducibility selection is required"})
		case !contains(BugReproducibleValues, reproducible):
			fields = append(fields, core.FieldError{Field: "bug_reproducible", Error: "Invalid reproducibility value"})
		}
		if category := str("bug_category"); strings.TrimSpace(category) != "" && !contains(BugCategories, category) {
			fields = append(fields, core.FieldError{Field: "bug_category", Error: "Invalid bug category value"})
		}

	case ArtifactSolidViolation:
		switch principle := str("solid_principle"); {
		case strings.TrimSpace(principle) == "":
			fields = append(fields, core.FieldError{Field: "solid_principle", Error: "SOLID principle selection is required"})
		case !contains(SolidPrinciples, principle):
			fields = append(fields, core.FieldError{Field: "solid_principle", Error: "Invalid SOLID principle value"})
		}
		if severity := str("solid_severity"); strings.TrimSpace(severity) != "" && !contains(SolidSeverities, severity) {
			fields = append(fields, core.FieldError{Field: "solid_severity", Error: "Invalid SOLID violation severity"})
		}
	}
	return fields
}

// isEmptyValue reports whether an answer counts as not filled: null, blank
// string or empty collection.
func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

func numericValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
