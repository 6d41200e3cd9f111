package cindex

import (
	"gonum.org/v1/gonum/stat/distuv"

	"speccoh/domain/coherence"
)

// Grade maps a summary to the coarse quality band used in observing-run
// reports. A spectrum must be both coherent on average and uniformly so
// (low CV) to grade high.
func Grade(s coherence.Summary) coherence.QualityGrade {
	switch {
	case s.Mean > 0.85 && s.CV < 0.05:
		return coherence.GradeExcellent
	case s.Mean > 0.80 && s.CV < 0.10:
		return coherence.GradeGood
	case s.Mean > 0.70 && s.CV < 0.15:
		return coherence.GradeFair
	default:
		return coherence.GradePoor
	}
}

// SigmaThreshold derives an absolute anomaly threshold from a summary as
// mean minus nsigma standard deviations, clamped into [0,1] so it is always
// a valid detection threshold.
func SigmaThreshold(s coherence.Summary, nsigma float64) float64 {
	return clamp01(s.Mean - nsigma*s.Std)
}

// NormalQuantileThreshold fits a normal distribution to the summary and
// returns its q-quantile as a detection threshold, clamped into [0,1].
// With zero spread the fit degenerates and the mean is returned. q must be
// in (0,1); the conventional choice q=0.05 flags the worst 5% of windows.
func NormalQuantileThreshold(s coherence.Summary, q float64) float64 {
	if q <= 0 || q >= 1 || s.Std <= 0 {
		return clamp01(s.Mean)
	}
	dist := distuv.Normal{Mu: s.Mean, Sigma: s.Std}
	return clamp01(dist.Quantile(q))
}
