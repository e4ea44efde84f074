// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"errors"

	"gopkg.in/check.v1"
)

type designSuite struct{}

var _ = check.Suite(&designSuite{})

func (s *designSuite) TestResolve(c *check.C) {
	st := testStore(c, 2, 10, 0, nil, 4)
	c.Assert(st.AttachSampleCovar("batch", []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}), check.IsNil)

	spec := DesignSpec{
		Intercept:    true,
		Terms:        []string{"group", "batch"},
		Interactions: [][2]string{{"group", "batch"}},
	}
	d, err := spec.Resolve(st)
	c.Assert(err, check.IsNil)
	c.Check(d.Names(), check.DeepEquals, []string{"(Intercept)", "group", "batch", "group:batch"})
	c.Check(d.NSamples(), check.Equals, 10)
	c.Check(d.Rank(), check.Equals, 4)

	_, err = DesignSpec{Intercept: true, Terms: []string{"nope"}}.Resolve(st)
	c.Check(errors.Is(err, ErrUnknownCovariate), check.Equals, true)

	_, err = DesignSpec{}.Resolve(st)
	c.Check(err, check.NotNil)
}

func (s *designSuite) TestRankDeficient(c *check.C) {
	st := testStore(c, 2, 8, 0, nil, 5)
	grp, _ := st.Covars().Col("group")
	c.Assert(st.AttachSampleCovar("group2", grp), check.IsNil)

	d, err := DesignSpec{Intercept: true, Terms: []string{"group", "group2"}}.Resolve(st)
	c.Assert(err, check.IsNil)
	c.Check(d.NCoef(), check.Equals, 3)
	c.Check(d.Rank(), check.Equals, 2)
}

func (s *designSuite) TestDrop(c *check.C) {
	spec := DesignSpec{
		Intercept:    true,
		Terms:        []string{"group", "batch"},
		Interactions: [][2]string{{"group", "batch"}},
	}
	r := spec.Drop("group")
	c.Check(r.Terms, check.DeepEquals, []string{"batch"})
	c.Check(len(r.Interactions), check.Equals, 0)
	c.Check(r.Intercept, check.Equals, true)
}
