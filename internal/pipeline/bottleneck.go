package pipeline

// DetectBottleneck selects the stage with the lowest positive conversion
// rate to its successor — the point where the funnel leaks most.
//
// The scan is stable left-to-right with a strict < comparator, so ties
// keep the earliest stage. Stages with a zero rate are never selected:
// when no stage has a positive rate the second return value is false and
// the first ordered stage is returned as a placeholder. Callers must
// surface that case as "insufficient data", not as a bottleneck.
func DetectBottleneck(report FunnelReport) (Stage, bool) {
	var best *StageReport
	for i := range report.Stages {
		sr := &report.Stages[i]
		if sr.ConversionToNext <= 0 {
			continue
		}
		if best == nil || sr.ConversionToNext < best.ConversionToNext {
			best = sr
		}
	}
	if best == nil {
		if len(report.Stages) == 0 {
			return StageSourced, false
		}
		return report.Stages[0].Stage, false
	}
	return best.Stage, true
}
