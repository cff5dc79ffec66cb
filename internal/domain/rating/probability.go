// Package rating implements the logistic win-probability model, binary
// entropy, and the information-weighted Elo update.
package rating

import "math"

// DefaultScale is the logistic spread: a 480 point gap gives 10:1 odds.
const DefaultScale = 480.0

// WinProbability returns the probability that an item rated a beats one
// rated b. Non-positive scales fall back to DefaultScale.
func WinProbability(a, b, scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) {
		scale = DefaultScale
	}
	p := 1 / (1 + math.Pow(10, (b-a)/scale))
	if math.IsNaN(p) {
		return 0.5
	}
	return clamp(p, 0, 1)
}

// Entropy returns the binary Shannon entropy of p in bits. The input is
// clamped into [0,1]; the endpoints and NaN carry no information.
func Entropy(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	p = clamp(p, 0, 1)
	if p == 0 || p == 1 {
		return 0
	}
	q := 1 - p
	return -p*math.Log2(p) - q*math.Log2(q)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
