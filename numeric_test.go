// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"math"

	"gopkg.in/check.v1"
)

type numericSuite struct{}

var _ = check.Suite(&numericSuite{})

func (s *numericSuite) TestNanMean(c *check.C) {
	c.Check(nanMean([]float64{1, 2, 3}), check.Equals, 2.0)
	c.Check(nanMean([]float64{1, math.NaN(), 3}), check.Equals, 2.0)
	c.Check(math.IsNaN(nanMean([]float64{math.NaN()})), check.Equals, true)
	c.Check(math.IsNaN(nanMean(nil)), check.Equals, true)
}

func (s *numericSuite) TestNanCov(c *check.C) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	v := nanCov(x, x)
	c.Check(math.Abs(v-5.0/3) < 1e-12, check.Equals, true)
	c.Check(math.Abs(nanCov(x, y)-10.0/3) < 1e-12, check.Equals, true)

	// Pairwise-complete: a NaN in either series drops the pair.
	x2 := []float64{1, math.NaN(), 3, 4}
	c.Check(math.Abs(nanCov(x2, y)-nanCov([]float64{1, 3, 4}, []float64{2, 6, 8})) < 1e-12, check.Equals, true)

	c.Check(math.IsNaN(nanCov([]float64{1, math.NaN()}, []float64{math.NaN(), 2})), check.Equals, true)
}

func (s *numericSuite) TestAdjustFDR(c *check.C) {
	adj := AdjustFDR([]float64{0.01, 0.02, 0.03, 0.04})
	// BH: p_(k) * m / k with a running minimum from the top.
	c.Check(math.Abs(adj[0]-0.04) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[1]-0.04) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[2]-0.04) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[3]-0.04) < 1e-12, check.Equals, true)

	adj = AdjustFDR([]float64{0.005, 0.04, 0.9})
	c.Check(math.Abs(adj[0]-0.015) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[1]-0.06) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[2]-0.9) < 1e-12, check.Equals, true)

	// NaN entries stay NaN and do not count as tests.
	adj = AdjustFDR([]float64{0.02, math.NaN(), 0.5})
	c.Check(math.IsNaN(adj[1]), check.Equals, true)
	c.Check(math.Abs(adj[0]-0.04) < 1e-12, check.Equals, true)
	c.Check(math.Abs(adj[2]-0.5) < 1e-12, check.Equals, true)
}
