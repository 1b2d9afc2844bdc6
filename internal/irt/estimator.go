package irt

import (
	"math"

	"adaptive-testing-service/internal/domain"
)

const (
	maxIterations = 50
	tolerance     = 1e-6
)

// Estimator computes ability point estimates and their standard error from a
// response history. It is a Bayesian modal estimator: Fisher scoring on the
// log-posterior with a normal prior, which keeps the estimate finite even
// for all-correct and all-incorrect histories. A non-positive PriorSD drops
// the prior term and degenerates to clamped maximum likelihood.
type Estimator struct {
	Prior      float64
	PriorSD    float64
	AbilityMin float64
	AbilityMax float64
}

// NewEstimator builds an estimator from a session's settings snapshot.
func NewEstimator(s domain.Settings) Estimator {
	return Estimator{
		Prior:      s.Prior,
		PriorSD:    s.PriorSD,
		AbilityMin: s.AbilityMin,
		AbilityMax: s.AbilityMax,
	}
}

func (e Estimator) priorInfo() float64 {
	if e.PriorSD <= 0 {
		return 0
	}
	return 1 / (e.PriorSD * e.PriorSD)
}

// Estimate returns (ability, standard error) for the given history. items
// and correct are index-aligned; an empty history yields the prior and a
// standard error derived from the prior alone.
func (e Estimator) Estimate(items []domain.Item, correct []bool) (float64, float64) {
	if len(items) == 0 {
		return e.clamp(e.Prior), e.initialError()
	}

	theta := e.solve(items, correct)
	return theta, e.standardError(items, correct, theta)
}

// solve runs bounded Fisher scoring on the log-posterior. The posterior is
// strictly concave in theta whenever the prior term is present, so the
// iteration converges; the bound clamp covers the pure-likelihood case where
// a uniform response pattern pushes the maximum to infinity.
func (e Estimator) solve(items []domain.Item, correct []bool) float64 {
	priorInfo := e.priorInfo()

	if priorInfo == 0 && uniform(correct) {
		// Without a prior the likelihood for a uniform pattern is
		// monotone in theta; the maximum sits on the bound.
		if correct[0] {
			return e.AbilityMax
		}
		return e.AbilityMin
	}

	theta := e.clamp(e.Prior)
	for i := 0; i < maxIterations; i++ {
		score := priorInfo * (e.Prior - theta)
		info := priorInfo
		for j := range items {
			p := Probability(items[j], theta)
			u := 0.0
			if correct[j] {
				u = 1.0
			}
			a := items[j].Discrimination
			c := items[j].Guessing
			if c < 1 {
				score += a * (u - p) * (p - c) / (p * (1 - c))
			}
			info += Information(items[j], theta)
		}
		if info <= 0 {
			break
		}
		step := score / info
		theta = e.clamp(theta + step)
		if math.Abs(step) < tolerance {
			break
		}
	}
	return theta
}

// standardError derives the error from the local information at the
// estimate. Uniform histories carry unreliable test information, so only the
// single most informative administered item counts toward it then.
func (e Estimator) standardError(items []domain.Item, correct []bool, theta float64) float64 {
	var testInfo float64
	if uniform(correct) {
		for i := range items {
			if info := Information(items[i], theta); info > testInfo {
				testInfo = info
			}
		}
	} else {
		testInfo = TestInformation(items, theta)
	}

	total := testInfo + e.priorInfo()
	if total <= 0 {
		return e.initialError()
	}
	return 1 / math.Sqrt(total)
}

// initialError is the reported uncertainty before any usable information
// exists.
func (e Estimator) initialError() float64 {
	span := e.AbilityMax - e.AbilityMin
	if span <= 0 {
		span = 8
	}
	return span
}

func (e Estimator) clamp(theta float64) float64 {
	if theta < e.AbilityMin {
		return e.AbilityMin
	}
	if theta > e.AbilityMax {
		return e.AbilityMax
	}
	return theta
}

func uniform(correct []bool) bool {
	for i := 1; i < len(correct); i++ {
		if correct[i] != correct[0] {
			return false
		}
	}
	return len(correct) > 0
}
