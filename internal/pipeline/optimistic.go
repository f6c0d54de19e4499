package pipeline

import "sync"

// StageOverlay tracks at most one speculative stage per candidate while a
// transition request is in flight. A second request for the same candidate
// replaces (does not queue behind) the first, so reads always reflect the
// most recent user intent; the authoritative log reflects only confirmed
// transitions.
//
// Speculate returns a token. Confirm and Revert are no-ops unless called
// with the token of the value currently held, so a slow request resolving
// late cannot clear a newer speculation.
type StageOverlay struct {
	mu   sync.RWMutex
	seq  uint64
	spec map[string]speculation
}

type speculation struct {
	stage Stage
	token uint64
}

// NewStageOverlay returns an empty overlay.
func NewStageOverlay() *StageOverlay {
	return &StageOverlay{spec: make(map[string]speculation)}
}

// Speculate records target as the candidate's in-flight stage, replacing
// any previous speculative value.
func (o *StageOverlay) Speculate(candidateID string, target Stage) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.spec[candidateID] = speculation{stage: target, token: o.seq}
	return o.seq
}

// Confirm clears the speculative value once the transition is committed,
// provided it is still the value this token created.
func (o *StageOverlay) Confirm(candidateID string, token uint64) {
	o.clear(candidateID, token)
}

// Revert clears the speculative value after a failed transition, provided
// it is still the value this token created. Reads then fall back to the
// last confirmed stage.
func (o *StageOverlay) Revert(candidateID string, token uint64) {
	o.clear(candidateID, token)
}

func (o *StageOverlay) clear(candidateID string, token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.spec[candidateID]; ok && s.token == token {
		delete(o.spec, candidateID)
	}
}

// Effective returns the stage a board should display: the speculative
// value when one is pending, otherwise the confirmed stage.
func (o *StageOverlay) Effective(candidateID string, confirmed Stage) Stage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if s, ok := o.spec[candidateID]; ok {
		return s.stage
	}
	return confirmed
}

// Pending reports the speculative stage for a candidate, if any.
func (o *StageOverlay) Pending(candidateID string) (Stage, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.spec[candidateID]
	return s.stage, ok
}
