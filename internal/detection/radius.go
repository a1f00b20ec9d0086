package detection

import "math"

// DefaultMinOverlap is the IoU a jittered box must keep with its ground
// truth for the Gaussian radius computation.
const DefaultMinOverlap = 0.7

// GaussianRadius returns the largest integer radius r such that moving the
// corners of a (height x width) box by up to r still yields a box with at
// least minOverlap IoU against the original.
//
// Three deformations are considered, each a quadratic in r:
//
//  1. One corner inside, one outside (shifted box):
//     r² - (w+h)r + wh(1-m)/(1+m) ≥ 0
//  2. Both corners inside (shrunk box):
//     4r² - 2(w+h)r + (1-m)wh ≥ 0
//  3. Both corners outside (enlarged box):
//     4m·r² + 2m(w+h)r + (m-1)wh ≤ 0
//
// The admissible r of each case is bounded by the smallest positive root;
// the result is the minimum of the three bounds, floored and clamped to 0.
func GaussianRadius(height, width, minOverlap float64) int {
	h := math.Max(height, 0)
	w := math.Max(width, 0)
	m := minOverlap
	if h == 0 || w == 0 || m <= 0 || m >= 1 {
		return 0
	}

	// Case 1
	b1 := w + h
	c1 := w * h * (1 - m) / (1 + m)
	r1 := smallerRoot(1, -b1, c1)

	// Case 2
	b2 := 2 * (w + h)
	c2 := (1 - m) * w * h
	r2 := smallerRoot(4, -b2, c2)

	// Case 3
	a3 := 4 * m
	b3 := 2 * m * (w + h)
	c3 := (m - 1) * w * h
	r3 := largerRoot(a3, b3, c3)

	r := math.Min(r1, math.Min(r2, r3))
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return int(math.Floor(r))
}

// smallerRoot returns the smaller real root of a·x² + b·x + c = 0, or +Inf
// when there is none (the inequality then holds for every x).
func smallerRoot(a, b, c float64) float64 {
	disc := b*b - 4*a*c
	if disc < 0 {
		return math.Inf(1)
	}
	return (-b - math.Sqrt(disc)) / (2 * a)
}

func largerRoot(a, b, c float64) float64 {
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0
	}
	return (-b + math.Sqrt(disc)) / (2 * a)
}

// gaussianSigma maps a radius to the Gaussian standard deviation: the
// kernel diameter 2r+1 spans six sigmas.
func gaussianSigma(radius int) float64 {
	return float64(2*radius+1) / 6
}
