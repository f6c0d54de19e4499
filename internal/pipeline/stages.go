// Package pipeline defines the hiring-funnel taxonomy for pipeline candidates.
//
// Ordered stages:
//
//	SOURCED ─► RECOMMENDED ─► REVIEWED ─► SHORTLISTED ─► PRESENTED ─► INTERVIEW ─► OFFER ─► PLACED
//
// REJECTED sits outside the ordered sequence: a candidate may be rejected
// from any stage, and rejection carries no ordinal position. Recruiters may
// also move candidates backwards, so no transition graph is enforced —
// any stage may follow any other.
package pipeline

import "fmt"

// Stage values mirror the current_stage column in PostgreSQL.
type Stage string

const (
	StageSourced     Stage = "SOURCED"
	StageRecommended Stage = "RECOMMENDED"
	StageReviewed    Stage = "REVIEWED"
	StageShortlisted Stage = "SHORTLISTED"
	StagePresented   Stage = "PRESENTED"
	StageInterview   Stage = "INTERVIEW"
	StageOffer       Stage = "OFFER"
	StagePlaced      Stage = "PLACED"
	StageRejected    Stage = "REJECTED"
)

// orderedStages is the funnel sequence. REJECTED is deliberately absent —
// it is a valid stage but not an ordinal step.
var orderedStages = []Stage{
	StageSourced,
	StageRecommended,
	StageReviewed,
	StageShortlisted,
	StagePresented,
	StageInterview,
	StageOffer,
	StagePlaced,
}

var stageOrdinals = func() map[Stage]int {
	m := make(map[Stage]int, len(orderedStages))
	for i, s := range orderedStages {
		m[s] = i
	}
	return m
}()

// OrderedStages returns the funnel sequence in order. The returned slice is
// a copy; callers may not mutate the taxonomy.
func OrderedStages() []Stage {
	out := make([]Stage, len(orderedStages))
	copy(out, orderedStages)
	return out
}

// Ordinal returns a stage's position in the funnel sequence. ok is false
// for REJECTED and for values outside the taxonomy.
func Ordinal(s Stage) (int, bool) {
	i, ok := stageOrdinals[s]
	return i, ok
}

// ParseStage converts a raw string to a Stage, returning an error for
// unknown values. REJECTED is accepted: it is a member of the stage set
// even though it has no ordinal.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	switch st {
	case StageSourced, StageRecommended, StageReviewed, StageShortlisted,
		StagePresented, StageInterview, StageOffer, StagePlaced, StageRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown pipeline stage %q", s)
}

// IsPlaced returns true when stage is PLACED (triggers the placement event).
func IsPlaced(s Stage) bool { return s == StagePlaced }

// IsRejected returns true when stage is REJECTED.
func IsRejected(s Stage) bool { return s == StageRejected }
