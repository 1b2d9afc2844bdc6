// Package irt implements the three-parameter logistic item response model
// and the ability estimation built on it. Everything here is a pure function
// of its inputs: the same response history and item parameters always
// produce bit-identical results.
package irt

import (
	"math"

	"adaptive-testing-service/internal/domain"
)

// pFloor keeps probabilities away from 0/1 so the score and information
// terms stay finite for extreme parameter/ability combinations.
const pFloor = 1e-9

// Probability returns P(correct | ability) under the 3PL model:
// c + (1-c) / (1 + exp(-a(theta-b))). With c=0 this is the 2PL model.
func Probability(item domain.Item, theta float64) float64 {
	z := item.Discrimination * (theta - item.Difficulty)
	p := item.Guessing + (1-item.Guessing)/(1+math.Exp(-z))
	if p < pFloor {
		return pFloor
	}
	if p > 1-pFloor {
		return 1 - pFloor
	}
	return p
}

// Information returns the Fisher information the item carries at theta.
// For the 3PL model: a^2 * (q/p) * ((p-c)/(1-c))^2.
func Information(item domain.Item, theta float64) float64 {
	if item.Guessing >= 1 {
		return 0
	}
	p := Probability(item, theta)
	q := 1 - p
	ratio := (p - item.Guessing) / (1 - item.Guessing)
	return item.Discrimination * item.Discrimination * (q / p) * ratio * ratio
}

// TestInformation sums item information over an administered set.
func TestInformation(items []domain.Item, theta float64) float64 {
	total := 0.0
	for i := range items {
		total += Information(items[i], theta)
	}
	return total
}
