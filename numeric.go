// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"math"
	"sort"
)

func nanMean(x []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// nanCov is the pairwise-complete empirical covariance of x and y:
// only index positions where both are finite contribute. Fewer than
// two complete pairs yields NaN.
func nanCov(x, y []float64) float64 {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	n := len(xs)
	if n < 2 {
		return math.NaN()
	}
	mx, my := nanMean(xs), nanMean(ys)
	sum := 0.0
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(n-1)
}

// stoufferZ combines Z-statistics with the given weights:
// Σ wᵢZᵢ / sqrt(Σ wᵢ²). NaN inputs are dropped along with their
// weights; all-NaN input yields NaN.
func stoufferZ(z, w []float64) float64 {
	num, den := 0.0, 0.0
	for i, zi := range z {
		if math.IsNaN(zi) {
			continue
		}
		num += w[i] * zi
		den += w[i] * w[i]
	}
	if den == 0 {
		return math.NaN()
	}
	return num / math.Sqrt(den)
}

// AdjustFDR applies the Benjamini-Hochberg step-up adjustment and
// returns the adjusted p-values in input order. NaN entries stay NaN
// and do not count toward the number of tests.
func AdjustFDR(p []float64) []float64 {
	type ip struct {
		i int
		p float64
	}
	var finite []ip
	for i, v := range p {
		if !math.IsNaN(v) {
			finite = append(finite, ip{i, v})
		}
	}
	out := make([]float64, len(p))
	for i := range out {
		out[i] = math.NaN()
	}
	sort.Slice(finite, func(a, b int) bool { return finite[a].p < finite[b].p })
	m := float64(len(finite))
	running := math.Inf(1)
	for k := len(finite) - 1; k >= 0; k-- {
		q := finite[k].p * m / float64(k+1)
		if q < running {
			running = q
		}
		if running > 1 {
			out[finite[k].i] = 1
		} else {
			out[finite[k].i] = running
		}
	}
	return out
}
