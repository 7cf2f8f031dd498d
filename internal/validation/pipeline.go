// Package validation implements the three-phase ValidationPipeline
// (structural integrity, format consistency, semantic coherence) and the
// bounded, idempotent RepairEngine.
package validation

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dreamscapes/gateway/types"
)

// Error is one validation finding. Kind here is a validation-phase tag, not
// a types.ErrorKind — it names which rule produced the finding.
type Error struct {
	Kind       string        `json:"kind"`
	Field      string        `json:"field"`
	Message    string        `json:"message"`
	Severity   types.Severity `json:"severity"`
	RepairHint string        `json:"repair_hint,omitempty"`
}

// Report is the pipeline's output for one candidate.
type Report struct {
	Valid            bool
	Errors           []Error
	Warnings         []Error
	ProcessingTimeMs int64
}

// HasHighSeverity reports whether any error in the report is high or
// critical — the definition of validity.
func (r *Report) HasHighSeverity() bool {
	for _, e := range r.Errors {
		if e.Severity == types.SeverityHigh || e.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

const (
	titleMinLen = 5
	titleMaxLen = 200
	descMinLen  = 10
	descMaxLen  = 2000
)

// Pipeline validates dreamResponse candidates. It is stateless and safe for
// concurrent use.
type Pipeline struct {
	logger            *zap.Logger
	maxRepairAttempts int
}

// New constructs a Pipeline. maxRepairAttempts defaults to 3 when <=0.
func New(logger *zap.Logger, maxRepairAttempts int) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRepairAttempts <= 0 {
		maxRepairAttempts = 3
	}
	return &Pipeline{logger: logger, maxRepairAttempts: maxRepairAttempts}
}

// Validate runs all three phases against candidate without short-circuiting
// and returns the combined report.
func (p *Pipeline) Validate(candidate map[string]any) *Report {
	start := time.Now()
	var errs, warnings []Error

	errs = append(errs, structuralIntegrity(candidate)...)
	// Format and semantic checks only make sense once structural checks
	// confirm the fields exist with the right shape; run them regardless
	// (no short-circuiting) but guard individually against nil.
	errs = append(errs, formatConsistency(candidate)...)
	semErrs, semWarnings := semanticCoherence(candidate)
	errs = append(errs, semErrs...)
	warnings = append(warnings, semWarnings...)

	report := &Report{
		Errors:           errs,
		Warnings:         warnings,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	report.Valid = !report.HasHighSeverity()
	return report
}

// ValidateAndRepair validates candidate, and if it fails, runs the
// RepairEngine for up to maxRepairAttempts iterations, re-validating after
// each. It returns the final report, the (possibly repaired) candidate, and
// whether any repair was applied.
func (p *Pipeline) ValidateAndRepair(candidate map[string]any) (*Report, map[string]any, bool) {
	report := p.Validate(candidate)
	if report.Valid {
		return report, candidate, false
	}

	repaired := false
	current := candidate
	prevErrCount := len(report.Errors)

	for attempt := 0; attempt < p.maxRepairAttempts; attempt++ {
		result := p.Repair(current, report.Errors)
		if !result.Success {
			break
		}
		current = result.Repaired
		repaired = true

		report = p.Validate(current)
		if report.Valid {
			break
		}
		// Non-regression: a repair pass that doesn't shrink the error set
		// has converged (or is looping); stop rather than iterate further.
		if len(report.Errors) >= prevErrCount {
			break
		}
		prevErrCount = len(report.Errors)
	}

	return report, current, repaired
}

func structuralIntegrity(candidate map[string]any) []Error {
	var errs []Error

	requiredTop := []string{"id", "title", "description", "scenes"}
	for _, field := range requiredTop {
		if _, ok := candidate[field]; !ok {
			errs = append(errs, Error{
				Kind: "structural_integrity", Field: field,
				Message: field + " is required but missing", Severity: types.SeverityHigh,
				RepairHint: "fill_default",
			})
		}
	}

	if title, ok := candidate["title"]; ok {
		if _, ok := title.(string); !ok {
			errs = append(errs, Error{
				Kind: "structural_integrity", Field: "title",
				Message: "title must be a string", Severity: types.SeverityHigh,
				RepairHint: "coerce_type",
			})
		}
	}
	if desc, ok := candidate["description"]; ok {
		if _, ok := desc.(string); !ok {
			errs = append(errs, Error{
				Kind: "structural_integrity", Field: "description",
				Message: "description must be a string", Severity: types.SeverityHigh,
				RepairHint: "coerce_type",
			})
		}
	}

	scenesRaw, ok := candidate["scenes"]
	if !ok {
		return errs
	}
	scenes, ok := scenesRaw.([]any)
	if !ok {
		errs = append(errs, Error{
			Kind: "structural_integrity", Field: "scenes",
			Message: "scenes must be an array", Severity: types.SeverityHigh,
			RepairHint: "coerce_type",
		})
		return errs
	}
	for i, raw := range scenes {
		scene, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, Error{
				Kind: "structural_integrity", Field: sceneField(i, ""),
				Message: "scene must be an object", Severity: types.SeverityHigh,
			})
			continue
		}
		for _, field := range []string{"id", "description", "objects"} {
			if _, ok := scene[field]; !ok {
				errs = append(errs, Error{
					Kind: "structural_integrity", Field: sceneField(i, field),
					Message: field + " is required on every scene", Severity: types.SeverityHigh,
					RepairHint: "fill_default",
				})
			}
		}
	}
	return errs
}

func formatConsistency(candidate map[string]any) []Error {
	var errs []Error

	if title, ok := candidate["title"].(string); ok {
		if l := len(title); l < titleMinLen || l > titleMaxLen {
			errs = append(errs, Error{
				Kind: "format_consistency", Field: "title",
				Message: "title must be between 5 and 200 characters", Severity: types.SeverityHigh,
				RepairHint: "truncate_or_pad",
			})
		}
	}
	if desc, ok := candidate["description"].(string); ok {
		if l := len(desc); l < descMinLen || l > descMaxLen {
			errs = append(errs, Error{
				Kind: "format_consistency", Field: "description",
				Message: "description must be between 10 and 2000 characters", Severity: types.SeverityHigh,
				RepairHint: "truncate_or_pad",
			})
		}
	}

	scenes, ok := candidate["scenes"].([]any)
	if ok && len(scenes) == 0 {
		errs = append(errs, Error{
			Kind: "format_consistency", Field: "scenes",
			Message: "scenes must contain at least one entry", Severity: types.SeverityHigh,
			RepairHint: "fill_default",
		})
	}
	for i, raw := range scenes {
		scene, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if objs, ok := scene["objects"]; ok {
			if _, ok := objs.([]any); !ok {
				if _, isStr := objs.(string); isStr {
					errs = append(errs, Error{
						Kind: "format_consistency", Field: sceneField(i, "objects"),
						Message: "objects must be an array", Severity: types.SeverityHigh,
						RepairHint: "split_comma_list",
					})
				} else {
					errs = append(errs, Error{
						Kind: "format_consistency", Field: sceneField(i, "objects"),
						Message: "objects must be an array", Severity: types.SeverityHigh,
						RepairHint: "coerce_type",
					})
				}
			}
		}
	}
	return errs
}

// semanticCoherence checks cross-field invariants: every scene id must be
// unique (a duplicated id makes per-scene addressing by callers ambiguous).
func semanticCoherence(candidate map[string]any) ([]Error, []Error) {
	var errs, warnings []Error

	scenes, ok := candidate["scenes"].([]any)
	if !ok {
		return errs, warnings
	}

	seen := make(map[string]int, len(scenes))
	for i, raw := range scenes {
		scene, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := scene["id"].(string)
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			errs = append(errs, Error{
				Kind: "semantic_coherence", Field: sceneField(i, "id"),
				Message: "duplicate scene id shared with scene " + sceneField(first, "id"),
				Severity: types.SeverityMedium, RepairHint: "rename_duplicate",
			})
			continue
		}
		seen[id] = i
	}

	if title, ok := candidate["title"].(string); ok {
		if desc, ok := candidate["description"].(string); ok && title != "" && title == desc {
			warnings = append(warnings, Error{
				Kind: "semantic_coherence", Field: "description",
				Message: "description is identical to title", Severity: types.SeverityLow,
			})
		}
	}

	return errs, warnings
}

func sceneField(index int, sub string) string {
	base := "scenes[" + strconv.Itoa(index) + "]"
	if sub == "" {
		return base
	}
	return base + "." + sub
}
