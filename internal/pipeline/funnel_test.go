package pipeline_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentflow/pipeline-service/internal/pipeline"
)

var funnelNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) string {
	return funnelNow.Add(-d).Format(time.RFC3339)
}

func score(v float64) *float64 { return &v }

func candidateAt(stage pipeline.Stage, history ...pipeline.StatusEvent) pipeline.Candidate {
	return pipeline.Candidate{
		ID:           "cand-" + string(stage),
		JobID:        "job-1",
		CurrentStage: stage,
		History:      history,
		CreatedAt:    funnelNow.Add(-24 * time.Hour),
	}
}

func stageRow(t *testing.T, report pipeline.FunnelReport, stage pipeline.Stage) pipeline.StageReport {
	t.Helper()
	for _, sr := range report.Stages {
		if sr.Stage == stage {
			return sr
		}
	}
	t.Fatalf("stage %s missing from report", stage)
	return pipeline.StageReport{}
}

// ── Empty snapshot ─────────────────────────────────────────────────────────

func TestComputeFunnel_EmptySnapshot(t *testing.T) {
	report := pipeline.ComputeFunnel(nil, funnelNow)

	require.Len(t, report.Stages, 8)
	for _, sr := range report.Stages {
		assert.Zero(t, sr.Count, "count(%s)", sr.Stage)
		assert.Zero(t, sr.HistoricalReach, "reach(%s)", sr.Stage)
		assert.Zero(t, sr.AvgScore, "avgScore(%s)", sr.Stage)
		assert.Zero(t, sr.AvgDwellSeconds, "avgDwell(%s)", sr.Stage)
		assert.Zero(t, sr.PercentageOfPipeline, "pct(%s)", sr.Stage)
		assert.Zero(t, sr.ConversionToNext, "conversion(%s)", sr.Stage)
	}
	assert.Zero(t, report.Overall.TotalCandidates)
	assert.Zero(t, report.Overall.OverallConversionRate)
}

// ── Occupancy invariants ───────────────────────────────────────────────────

func TestComputeFunnel_CountsSumToTotal(t *testing.T) {
	candidates := []pipeline.Candidate{
		candidateAt(pipeline.StageSourced),
		candidateAt(pipeline.StageSourced),
		candidateAt(pipeline.StageInterview),
		candidateAt(pipeline.StagePlaced),
		candidateAt(pipeline.StageRejected),
	}
	report := pipeline.ComputeFunnel(candidates, funnelNow)

	sum := report.Overall.RejectedCount
	for _, sr := range report.Stages {
		sum += sr.Count
	}
	assert.Equal(t, len(candidates), sum,
		"count summed over all stages including REJECTED must equal total")
	assert.Equal(t, 1, report.Overall.PlacedCount)
	assert.Equal(t, 1, report.Overall.RejectedCount)
	assert.Equal(t, 4, report.Overall.ActiveCount)
	assert.InDelta(t, 20.0, report.Overall.OverallConversionRate, 1e-9)
}

func TestComputeFunnel_ReachNeverBelowCount(t *testing.T) {
	candidates := []pipeline.Candidate{
		candidateAt(pipeline.StageShortlisted,
			pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(3 * time.Hour)},
			pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(time.Hour)},
		),
		candidateAt(pipeline.StageReviewed,
			pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(2 * time.Hour)},
		),
		candidateAt(pipeline.StageSourced),
	}
	report := pipeline.ComputeFunnel(candidates, funnelNow)

	for _, sr := range report.Stages {
		assert.GreaterOrEqual(t, sr.HistoricalReach, sr.Count,
			"historicalReach(%s) must cover current occupants", sr.Stage)
	}
	// Two candidates ever touched REVIEWED even though only one is there now.
	assert.Equal(t, 2, stageRow(t, report, pipeline.StageReviewed).HistoricalReach)
	assert.Equal(t, 1, stageRow(t, report, pipeline.StageReviewed).Count)
}

func TestComputeFunnel_PercentageOfPipeline(t *testing.T) {
	candidates := []pipeline.Candidate{
		candidateAt(pipeline.StageSourced),
		candidateAt(pipeline.StageInterview),
		candidateAt(pipeline.StageInterview),
		candidateAt(pipeline.StageRejected),
	}
	report := pipeline.ComputeFunnel(candidates, funnelNow)

	assert.InDelta(t, 25.0, stageRow(t, report, pipeline.StageSourced).PercentageOfPipeline, 1e-9)
	assert.InDelta(t, 50.0, stageRow(t, report, pipeline.StageInterview).PercentageOfPipeline, 1e-9)
}

// ── Scores ─────────────────────────────────────────────────────────────────

func TestComputeFunnel_AvgScoreSkipsNilScores(t *testing.T) {
	a := candidateAt(pipeline.StageRecommended)
	a.LastScore = score(80)
	b := candidateAt(pipeline.StageRecommended)
	b.LastScore = score(60)
	c := candidateAt(pipeline.StageRecommended) // no score

	report := pipeline.ComputeFunnel([]pipeline.Candidate{a, b, c}, funnelNow)

	rec := stageRow(t, report, pipeline.StageRecommended)
	assert.Equal(t, 3, rec.Count)
	assert.InDelta(t, 70.0, rec.AvgScore, 1e-9)
}

func TestComputeFunnel_AvgScoreZeroWhenNoneScored(t *testing.T) {
	report := pipeline.ComputeFunnel([]pipeline.Candidate{
		candidateAt(pipeline.StageOffer),
	}, funnelNow)
	assert.Zero(t, stageRow(t, report, pipeline.StageOffer).AvgScore)
}

// ── Dwell time ─────────────────────────────────────────────────────────────

func TestComputeFunnel_DwellFromLastHistoryEntry(t *testing.T) {
	c := candidateAt(pipeline.StageInterview,
		pipeline.StatusEvent{Stage: pipeline.StageOffer, At: ago(5 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageInterview, At: ago(time.Hour)},
	)
	report := pipeline.ComputeFunnel([]pipeline.Candidate{c}, funnelNow)

	assert.InDelta(t, 3600.0, stageRow(t, report, pipeline.StageInterview).AvgDwellSeconds, 1e-6)
}

func TestComputeFunnel_DwellFallsBackToCreatedAt(t *testing.T) {
	// Empty history: dwell runs from creation.
	fresh := candidateAt(pipeline.StageSourced)
	fresh.CreatedAt = funnelNow.Add(-2 * time.Hour)

	// Unparseable last timestamp: same fallback.
	garbled := candidateAt(pipeline.StageSourced,
		pipeline.StatusEvent{Stage: pipeline.StageSourced, At: "not-a-timestamp"},
	)
	garbled.CreatedAt = funnelNow.Add(-2 * time.Hour)

	report := pipeline.ComputeFunnel([]pipeline.Candidate{fresh, garbled}, funnelNow)
	assert.InDelta(t, 7200.0, stageRow(t, report, pipeline.StageSourced).AvgDwellSeconds, 1e-6)
}

func TestComputeFunnel_DwellZeroWhenNoValidSample(t *testing.T) {
	c := pipeline.Candidate{
		ID:           "cand-x",
		CurrentStage: pipeline.StageSourced,
		History: pipeline.StatusHistory{
			{Stage: pipeline.StageSourced, At: "garbage"},
		},
		// CreatedAt left zero: no fallback either.
	}
	report := pipeline.ComputeFunnel([]pipeline.Candidate{c}, funnelNow)

	sr := stageRow(t, report, pipeline.StageSourced)
	assert.Equal(t, 1, sr.Count, "malformed candidates still occupy their stage")
	assert.Zero(t, sr.AvgDwellSeconds)
}

// ── Transition counting ────────────────────────────────────────────────────

func TestComputeFunnel_EmptyHistoryContributesNoTransition(t *testing.T) {
	report := pipeline.ComputeFunnel([]pipeline.Candidate{
		candidateAt(pipeline.StageSourced),
	}, funnelNow)

	sr := stageRow(t, report, pipeline.StageSourced)
	assert.Equal(t, 1, sr.Count)
	assert.Equal(t, 1, sr.HistoricalReach)
	for _, row := range report.Stages {
		assert.Zero(t, row.TransitionsToNext, "transitions(%s)", row.Stage)
	}
}

func TestComputeFunnel_AdjacentPairCountsOnce(t *testing.T) {
	c := candidateAt(pipeline.StageShortlisted,
		pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(2 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(time.Hour)},
	)
	report := pipeline.ComputeFunnel([]pipeline.Candidate{c}, funnelNow)

	for _, sr := range report.Stages {
		want := 0
		if sr.Stage == pipeline.StageReviewed {
			want = 1
		}
		assert.Equal(t, want, sr.TransitionsToNext, "transitions(%s)", sr.Stage)
	}
}

func TestComputeFunnel_OscillationNotDoubleCounted(t *testing.T) {
	c := candidateAt(pipeline.StageShortlisted,
		pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(5 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(4 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(3 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(2 * time.Hour)},
	)
	report := pipeline.ComputeFunnel([]pipeline.Candidate{c}, funnelNow)

	assert.Equal(t, 1, stageRow(t, report, pipeline.StageReviewed).TransitionsToNext,
		"repeated REVIEWED→SHORTLISTED pairs count once per candidate")
}

func TestComputeFunnel_LiveStageCatchUpCountsTransition(t *testing.T) {
	// The log's last entry is REVIEWED but current_stage already moved on:
	// the not-yet-logged hop still counts.
	c := candidateAt(pipeline.StageShortlisted,
		pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(time.Hour)},
	)
	report := pipeline.ComputeFunnel([]pipeline.Candidate{c}, funnelNow)

	assert.Equal(t, 1, stageRow(t, report, pipeline.StageReviewed).TransitionsToNext)
}

func TestComputeFunnel_ConversionRateBounds(t *testing.T) {
	candidates := []pipeline.Candidate{
		candidateAt(pipeline.StageShortlisted,
			pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(2 * time.Hour)},
			pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(time.Hour)},
		),
		candidateAt(pipeline.StageReviewed),
		candidateAt(pipeline.StageRejected),
	}
	report := pipeline.ComputeFunnel(candidates, funnelNow)

	for _, sr := range report.Stages {
		assert.GreaterOrEqual(t, sr.ConversionToNext, 0.0, "conversion(%s)", sr.Stage)
		assert.LessOrEqual(t, sr.ConversionToNext, 100.0, "conversion(%s)", sr.Stage)
	}
	// Two candidates ever reached REVIEWED, one converted.
	assert.InDelta(t, 50.0, stageRow(t, report, pipeline.StageReviewed).ConversionToNext, 1e-9)
}

// ── Determinism & purity ───────────────────────────────────────────────────

func TestComputeFunnel_DeterministicForFixedSnapshot(t *testing.T) {
	candidates := []pipeline.Candidate{
		candidateAt(pipeline.StageShortlisted,
			pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(2 * time.Hour)},
			pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(time.Hour)},
		),
		candidateAt(pipeline.StagePlaced,
			pipeline.StatusEvent{Stage: pipeline.StageOffer, At: ago(48 * time.Hour)},
			pipeline.StatusEvent{Stage: pipeline.StagePlaced, At: ago(24 * time.Hour)},
		),
	}

	first := pipeline.ComputeFunnel(candidates, funnelNow)
	second := pipeline.ComputeFunnel(candidates, funnelNow)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "repeated computation must be byte-identical")
}

func TestComputeFunnel_DoesNotMutateSnapshot(t *testing.T) {
	c := candidateAt(pipeline.StageShortlisted,
		pipeline.StatusEvent{Stage: pipeline.StageReviewed, At: ago(2 * time.Hour)},
		pipeline.StatusEvent{Stage: pipeline.StageShortlisted, At: ago(time.Hour)},
	)
	candidates := []pipeline.Candidate{c}

	_ = pipeline.ComputeFunnel(candidates, funnelNow)

	require.Len(t, candidates[0].History, 2, "history must remain untouched")
	assert.Equal(t, pipeline.StageReviewed, candidates[0].History[0].Stage)
	assert.Equal(t, pipeline.StageShortlisted, candidates[0].CurrentStage)
}
