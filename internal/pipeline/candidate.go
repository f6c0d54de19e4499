package pipeline

import "time"

// StatusEvent is one entry in a candidate's status history. Entries are
// immutable once appended. The timestamp is carried as an RFC3339 string
// end-to-end so a malformed value degrades to "no dwell sample" on the
// read side instead of failing the whole report.
type StatusEvent struct {
	Stage Stage  `json:"stage"`
	At    string `json:"at"`
	Note  string `json:"note,omitempty"`
}

// StatusHistory is the append-only, chronologically ordered event log for
// one candidate. It may be empty: freshly added candidates have no
// transitions yet.
type StatusHistory []StatusEvent

// Candidate is the JSON shape returned to the Gateway / web clients.
//
// CurrentStage always reflects the most recent confirmed transition.
// EffectiveStage additionally folds in any in-flight speculative move so
// the board can render the most recent user intent; it equals CurrentStage
// whenever nothing is pending.
type Candidate struct {
	ID             string        `json:"id"`
	JobID          string        `json:"jobId"`
	FullName       string        `json:"fullName"`
	CurrentStage   Stage         `json:"currentStage"`
	EffectiveStage Stage         `json:"effectiveStage"`
	LastScore      *float64      `json:"lastScore"`
	History        StatusHistory `json:"history"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// ConfirmedState is the response to a transition request once the
// authoritative log has been updated.
//
// AppendedEvent is nil when the request was a replay of an already
// committed attempt (same request id); in that case Replayed is true and
// CurrentStage reports the confirmed state without a second append.
type ConfirmedState struct {
	CandidateID   string       `json:"candidateId"`
	CurrentStage  Stage        `json:"currentStage"`
	AppendedEvent *StatusEvent `json:"appendedEvent,omitempty"`
	Replayed      bool         `json:"replayed,omitempty"`
}
