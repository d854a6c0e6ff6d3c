// Package logistic evaluates the severe-weather probability model, a fixed
// logistic regression over CAPE, CIN and helicity.
package logistic

import (
	"math"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
)

// ClampLimit bounds the linear predictor before exponentiation. Beyond about
// 36, 1/(1+e^-z) rounds to exactly 1 in float64, so 30 keeps every result
// strictly inside (0, 1).
const ClampLimit = 30.0

// Model holds the regression intercept and per-field coefficients.
type Model struct {
	Intercept float64
	CAPE      float64
	CIN       float64
	Helicity  float64
}

// DefaultModel is used when no coefficients are configured.
var DefaultModel = Model{
	Intercept: -6.0,
	CAPE:      0.0012,
	CIN:       0.004,
	Helicity:  0.01,
}

// Linear returns the clamped linear predictor. NaN field values count as 0;
// a NaN sum (e.g. +Inf and -Inf terms) also falls back to 0.
func (m Model) Linear(f domain.Fields) float64 {
	z := m.Intercept +
		m.CAPE*zeroNaN(f.CAPE) +
		m.CIN*zeroNaN(f.CIN) +
		m.Helicity*zeroNaN(f.Helicity)
	if math.IsNaN(z) {
		z = 0
	}
	return clamp(z)
}

// Probability returns sigmoid(Linear(f)).
func (m Model) Probability(f domain.Fields) float64 {
	return Sigmoid(m.Linear(f))
}

// Sigmoid is the logistic function with the argument clamped to
// [-ClampLimit, ClampLimit]. NaN maps to 0.5.
func Sigmoid(z float64) float64 {
	if math.IsNaN(z) {
		z = 0
	}
	return 1 / (1 + math.Exp(-clamp(z)))
}

func clamp(z float64) float64 {
	return math.Max(-ClampLimit, math.Min(ClampLimit, z))
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
