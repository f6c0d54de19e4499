package pipeline_test

// ── Additional edge-case tests ────────────────────────────────────────────
//
// This file extends stages_test.go with input-hygiene cases around
// ParseStage. The ordered-sequence matrix is already covered there.

import (
	"testing"

	"talentflow/pipeline-service/internal/pipeline"
)

// ParseStage must be case-sensitive — lowercase variants must not be valid.
func TestParseStage_CaseSensitive(t *testing.T) {
	lowercase := []string{
		"sourced", "recommended", "reviewed", "shortlisted",
		"presented", "interview", "offer", "placed", "rejected",
	}
	for _, s := range lowercase {
		_, err := pipeline.ParseStage(s)
		if err == nil {
			t.Errorf("ParseStage(%q) should reject lowercase value, got nil error", s)
		}
	}
}

// ParseStage must reject whitespace-padded strings.
func TestParseStage_WithWhitespace(t *testing.T) {
	padded := []string{" INTERVIEW", "INTERVIEW ", " INTERVIEW "}
	for _, s := range padded {
		_, err := pipeline.ParseStage(s)
		if err == nil {
			t.Errorf("ParseStage(%q) should reject padded value, got nil error", s)
		}
	}
}

// All nine constants must round-trip through ParseStage without error.
func TestParseStage_AllConstantsRoundTrip(t *testing.T) {
	all := append(pipeline.OrderedStages(), pipeline.StageRejected)
	for _, s := range all {
		got, err := pipeline.ParseStage(string(s))
		if err != nil {
			t.Errorf("ParseStage(%q) unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseStage(%q) = %q, want %q", s, got, s)
		}
	}
}
