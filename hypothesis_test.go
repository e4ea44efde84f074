// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"context"
	"errors"
	"math"

	"gopkg.in/check.v1"
)

type hypothesisSuite struct{}

var _ = check.Suite(&hypothesisSuite{})

func (s *hypothesisSuite) fitPair(c *check.C, st *Store, term string) (*FitSet, *FitSet) {
	spec := DesignSpec{Intercept: true, Terms: st.Covars().Names()}
	full, err := spec.Resolve(st)
	c.Assert(err, check.IsNil)
	restricted, err := spec.Drop(term).Resolve(st)
	c.Assert(err, check.IsNil)
	ff, err := Fit(context.Background(), st, full, FitOptions{})
	c.Assert(err, check.IsNil)
	fr, err := Fit(context.Background(), st, restricted, FitOptions{})
	c.Assert(err, check.IsNil)
	return ff, fr
}

func (s *hypothesisSuite) TestLRTSelf(c *check.C) {
	st := testStore(c, 5, 20, 0.2, nil, 20)
	design, err := DesignSpec{Intercept: true, Terms: []string{"group"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	fs, err := Fit(context.Background(), st, design, FitOptions{})
	c.Assert(err, check.IsNil)

	results, err := LRT(fs, fs)
	c.Assert(err, check.IsNil)
	c.Assert(len(results), check.Equals, 5)
	for _, r := range results {
		if math.IsNaN(r.Hurdle.Chi2) {
			continue
		}
		c.Check(r.Hurdle.Chi2, check.Equals, 0.0)
		c.Check(r.Hurdle.DF, check.Equals, 0)
		c.Check(r.Hurdle.P, check.Equals, 1.0)
	}
}

func (s *hypothesisSuite) TestLRTShiftScenario(c *check.C) {
	// 10 features × 20 samples in two groups of 10; feature 1 is
	// shifted by 3 between groups with no dropout anywhere. The
	// discrete channel carries no signal; the continuous channel
	// must light up.
	st := testStore(c, 10, 20, 0, map[int]float64{1: 3}, 21)
	full, restricted := s.fitPair(c, st, "group")

	results, err := LRT(full, restricted)
	c.Assert(err, check.IsNil)
	var hit TestResult
	for _, r := range results {
		if r.Feature.ID == "gene1" {
			hit = r
		}
	}
	c.Check(hit.Discrete.Chi2, check.Equals, 0.0)
	c.Check(hit.Discrete.P, check.Equals, 1.0)
	c.Check(hit.Continuous.P < 1e-4, check.Equals, true)
	c.Check(hit.Hurdle.P < 1e-3, check.Equals, true)

	// Unshifted features should not dominate the ranking.
	sorted := SortByP(results)
	c.Check(sorted[0].Feature.ID, check.Equals, "gene1")
}

func (s *hypothesisSuite) TestLRTUnidentifiableKeepsDiscrete(c *check.C) {
	values := [][]float64{
		{1.2, 0, 0, 0, 0, 2.5, 0, 0, 1.1, 0, 0, 0, 0, 2.0, 0, 0},
	}
	covars := NewCovarTable(16)
	group := make([]float64, 16)
	sampleIDs := make([]string, 16)
	for j := range group {
		sampleIDs[j] = "s" + itoa(j)
		if j >= 8 {
			group[j] = 1
		}
	}
	c.Assert(covars.Add("group", group), check.IsNil)
	st, err := NewStore(values, []Feature{{ID: "g"}}, sampleIDs, covars)
	c.Assert(err, check.IsNil)

	fullDesign, err := DesignSpec{Intercept: true, Terms: []string{"group"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	full, err := Fit(context.Background(), st, fullDesign, FitOptions{})
	c.Assert(err, check.IsNil)
	m, _ := full.Model("g")
	c.Assert(m.Continuous.Status, check.Equals, StatusOK) // 4 detected, rank 2

	// Dropping two detected samples pushes the feature under the
	// rank+1 boundary: continuous and combined go NaN, discrete stays.
	st2 := st.SubsetSamples(func(id string, i int) bool { return i != 0 && i != 8 })
	full2Design, err := DesignSpec{Intercept: true, Terms: []string{"group"}}.Resolve(st2)
	c.Assert(err, check.IsNil)
	restricted2Design, err := DesignSpec{Intercept: true}.Resolve(st2)
	c.Assert(err, check.IsNil)
	full2, err := Fit(context.Background(), st2, full2Design, FitOptions{})
	c.Assert(err, check.IsNil)
	restricted2, err := Fit(context.Background(), st2, restricted2Design, FitOptions{})
	c.Assert(err, check.IsNil)
	m2, _ := full2.Model("g")
	c.Assert(m2.Continuous.Status, check.Equals, StatusUnidentifiable)

	results, err := LRT(full2, restricted2)
	c.Assert(err, check.IsNil)
	c.Assert(len(results), check.Equals, 1)
	c.Check(math.IsNaN(results[0].Continuous.Chi2), check.Equals, true)
	c.Check(math.IsNaN(results[0].Hurdle.Chi2), check.Equals, true)
	c.Check(math.IsNaN(results[0].Discrete.Chi2), check.Equals, false)
}

func (s *hypothesisSuite) TestLRTNotNested(c *check.C) {
	st := testStore(c, 3, 12, 0.2, nil, 22)
	c.Assert(st.AttachSampleCovar("batch", []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}), check.IsNil)
	dA, err := DesignSpec{Intercept: true, Terms: []string{"group"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	dB, err := DesignSpec{Intercept: true, Terms: []string{"batch"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	fA, err := Fit(context.Background(), st, dA, FitOptions{})
	c.Assert(err, check.IsNil)
	fB, err := Fit(context.Background(), st, dB, FitOptions{})
	c.Assert(err, check.IsNil)
	_, err = LRT(fA, fB)
	c.Check(err, check.NotNil)
}

func (s *hypothesisSuite) TestWald(c *check.C) {
	st := testStore(c, 10, 40, 0.2, map[int]float64{3: 2}, 23)
	design, err := DesignSpec{Intercept: true, Terms: []string{"group"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	fs, err := Fit(context.Background(), st, design, FitOptions{})
	c.Assert(err, check.IsNil)

	results, err := Wald(fs, Contrast{"group": 1})
	c.Assert(err, check.IsNil)
	c.Assert(len(results), check.Equals, 10)

	var hit TestResult
	for _, r := range results {
		if r.Feature.ID == "gene3" {
			hit = r
		}
	}
	c.Check(hit.Continuous.DF, check.Equals, 1)
	c.Check(hit.Continuous.P < 1e-3, check.Equals, true)

	_, err = Wald(fs, Contrast{"condition": 1})
	c.Check(errors.Is(err, ErrInvalidContrast), check.Equals, true)
	_, err = Wald(fs, Contrast{})
	c.Check(errors.Is(err, ErrInvalidContrast), check.Equals, true)
}

func (s *hypothesisSuite) TestInputOrderPreserved(c *check.C) {
	st := testStore(c, 6, 20, 0.2, nil, 24)
	full, restricted := s.fitPair(c, st, "group")
	results, err := LRT(full, restricted)
	c.Assert(err, check.IsNil)
	for i, r := range results {
		c.Check(r.Feature.ID, check.Equals, "gene"+itoa(i))
	}
}
