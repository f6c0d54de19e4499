package pipeline

import "time"

// ─── Report types ────────────────────────────────────────────────────────────

// StageReport carries the per-stage funnel metrics for one ordered stage.
// TransitionsToNext and ConversionToNext describe the edge to the next
// stage in funnel order; both stay 0 for the final stage (PLACED).
type StageReport struct {
	Stage                Stage   `json:"stage"`
	Count                int     `json:"count"`
	AvgScore             float64 `json:"avgScore"`
	AvgDwellSeconds      float64 `json:"avgDwellSeconds"`
	HistoricalReach      int     `json:"historicalReach"`
	PercentageOfPipeline float64 `json:"percentageOfPipeline"`
	TransitionsToNext    int     `json:"transitionsToNext"`
	ConversionToNext     float64 `json:"conversionToNext"`
}

// OverallReport carries the whole-pipeline aggregates. RejectedCount
// covers the out-of-band REJECTED stage, so Count summed over the ordered
// stages plus RejectedCount equals TotalCandidates.
type OverallReport struct {
	TotalCandidates       int     `json:"totalCandidates"`
	PlacedCount           int     `json:"placedCount"`
	RejectedCount         int     `json:"rejectedCount"`
	ActiveCount           int     `json:"activeCount"`
	OverallConversionRate float64 `json:"overallConversionRate"`
}

// FunnelReport is the full read-side view over one job's candidate
// snapshot. BottleneckFound is false when no stage has a positive
// conversion rate — the pipeline is too young to name a bottleneck, which
// is distinct from a genuine bottleneck at the first stage.
type FunnelReport struct {
	JobID           string        `json:"jobId,omitempty"`
	GeneratedAt     time.Time     `json:"generatedAt"`
	Stages          []StageReport `json:"stages"`
	Overall         OverallReport `json:"overall"`
	Bottleneck      Stage         `json:"bottleneck"`
	BottleneckFound bool          `json:"bottleneckFound"`
}

// ─── Engine ──────────────────────────────────────────────────────────────────

// ComputeFunnel derives the funnel metrics for a snapshot of candidates.
// It is a pure function: it never mutates candidates, and for a fixed
// snapshot and now it always produces an identical report. now is an
// explicit argument so callers (and tests) control the dwell clock.
//
// Malformed data degrades per-candidate rather than failing the report: a
// history timestamp that does not parse simply yields no dwell sample.
func ComputeFunnel(candidates []Candidate, now time.Time) FunnelReport {
	stages := orderedStages
	report := FunnelReport{
		GeneratedAt: now,
		Stages:      make([]StageReport, 0, len(stages)),
	}

	total := len(candidates)
	for i, stage := range stages {
		sr := StageReport{Stage: stage}

		var (
			scoreSum     float64
			scored       int
			dwellSum     time.Duration
			dwellSamples int
		)
		for j := range candidates {
			c := &candidates[j]
			if c.CurrentStage == stage {
				sr.Count++
				if c.LastScore != nil {
					scoreSum += *c.LastScore
					scored++
				}
				if ts, ok := lastObservedAt(c); ok {
					dwellSum += now.Sub(ts)
					dwellSamples++
				}
			}
			if everReached(c, stage) {
				sr.HistoricalReach++
			}
		}

		if scored > 0 {
			sr.AvgScore = scoreSum / float64(scored)
		}
		if dwellSamples > 0 {
			sr.AvgDwellSeconds = dwellSum.Seconds() / float64(dwellSamples)
		}
		if total > 0 {
			sr.PercentageOfPipeline = float64(sr.Count) / float64(total) * 100
		}

		if i+1 < len(stages) {
			next := stages[i+1]
			for j := range candidates {
				if movedTo(&candidates[j], stage, next) {
					sr.TransitionsToNext++
				}
			}
			if sr.HistoricalReach > 0 {
				sr.ConversionToNext = float64(sr.TransitionsToNext) / float64(sr.HistoricalReach) * 100
			}
		}

		report.Stages = append(report.Stages, sr)
	}

	report.Overall = computeOverall(candidates)
	return report
}

func computeOverall(candidates []Candidate) OverallReport {
	o := OverallReport{TotalCandidates: len(candidates)}
	for i := range candidates {
		switch candidates[i].CurrentStage {
		case StagePlaced:
			o.PlacedCount++
		case StageRejected:
			o.RejectedCount++
		}
	}
	o.ActiveCount = o.TotalCandidates - o.RejectedCount
	if o.TotalCandidates > 0 {
		o.OverallConversionRate = float64(o.PlacedCount) / float64(o.TotalCandidates) * 100
	}
	return o
}

// lastObservedAt resolves the instant a candidate entered its current
// stage: the last history entry when present and parseable, otherwise the
// creation time when set. ok is false when neither yields a valid instant;
// such candidates contribute no dwell sample.
func lastObservedAt(c *Candidate) (time.Time, bool) {
	if n := len(c.History); n > 0 {
		if ts, err := time.Parse(time.RFC3339, c.History[n-1].At); err == nil {
			return ts, true
		}
	}
	if !c.CreatedAt.IsZero() {
		return c.CreatedAt, true
	}
	return time.Time{}, false
}

// everReached reports whether the candidate currently occupies stage or
// ever recorded it in history. This is the conversion denominator: "ever
// passed through", not "currently at".
func everReached(c *Candidate, stage Stage) bool {
	if c.CurrentStage == stage {
		return true
	}
	for _, ev := range c.History {
		if ev.Stage == stage {
			return true
		}
	}
	return false
}

// movedTo reports whether the candidate counts one from → to transition.
// Only the first qualifying adjacent history pair counts per candidate,
// even if the candidate oscillated through the same pair repeatedly.
// When no adjacent pair matches but the log's last entry is from and the
// live stage is already to (the log has not caught up with the current
// field), that counts as the transition instead. An empty history never
// contributes.
func movedTo(c *Candidate, from, to Stage) bool {
	n := len(c.History)
	if n == 0 {
		return false
	}
	for i := 0; i+1 < n; i++ {
		if c.History[i].Stage == from && c.History[i+1].Stage == to {
			return true
		}
	}
	return c.History[n-1].Stage == from && c.CurrentStage == to
}
