// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

var ErrInvalidContrast = errors.New("invalid contrast")

// Stat is one test statistic with its degrees of freedom and p-value.
type Stat struct {
	Chi2 float64
	DF   int
	P    float64
}

// TestResult holds the per-feature discrete, continuous, and combined
// hurdle statistics for one test. When the continuous component of a
// feature is not estimable, Continuous and Hurdle are NaN and Discrete
// is still reported.
type TestResult struct {
	Feature    Feature
	Discrete   Stat
	Continuous Stat
	Hurdle     Stat
}

func chi2P(x float64, df int) float64 {
	if df == 0 {
		return 1
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(x)
}

func nanStat(df int) Stat {
	return Stat{Chi2: math.NaN(), DF: df, P: math.NaN()}
}

// LRT computes per-feature likelihood-ratio tests between two fits of
// the same features under nested designs: full must include every
// coefficient of restricted. The statistic per component is
// 2(logLik_full − logLik_restricted), chi-square with df equal to the
// coefficient-count difference; the hurdle statistic sums the two
// components. Results preserve full's feature order.
func LRT(full, restricted *FitSet) ([]TestResult, error) {
	df := full.Design.NCoef() - restricted.Design.NCoef()
	if df < 0 {
		return nil, fmt.Errorf("restricted design has more coefficients (%d) than full (%d)", restricted.Design.NCoef(), full.Design.NCoef())
	}
	have := map[string]bool{}
	for _, nm := range full.Design.Names() {
		have[nm] = true
	}
	for _, nm := range restricted.Design.Names() {
		if !have[nm] {
			return nil, fmt.Errorf("designs are not nested: restricted term %q missing from full", nm)
		}
	}

	var out []TestResult
	for _, f := range full.Features() {
		mf, _ := full.Model(f.ID)
		mr, ok := restricted.Model(f.ID)
		if !ok {
			return nil, fmt.Errorf("feature %q missing from restricted fit", f.ID)
		}
		r := TestResult{Feature: f}

		r.Discrete = lrtStat(mf.Discrete, mr.Discrete, df)
		r.Continuous = lrtStat(mf.Continuous, mr.Continuous, df)

		if !math.IsNaN(r.Discrete.Chi2) && !math.IsNaN(r.Continuous.Chi2) {
			r.Hurdle = Stat{
				Chi2: r.Discrete.Chi2 + r.Continuous.Chi2,
				DF:   r.Discrete.DF + r.Continuous.DF,
			}
			r.Hurdle.P = chi2P(r.Hurdle.Chi2, r.Hurdle.DF)
		} else {
			r.Hurdle = nanStat(2 * df)
		}
		out = append(out, r)
	}
	return out, nil
}

func lrtStat(full, restricted Component, df int) Stat {
	switch {
	case full.Status == StatusDegenerate && restricted.Status == StatusDegenerate:
		// Constant outcome: both designs are saturated, no signal.
		return Stat{Chi2: 0, DF: df, P: chi2P(0, df)}
	case full.Status != StatusOK || restricted.Status != StatusOK:
		return nanStat(df)
	}
	chi2 := 2 * (full.LogLik - restricted.LogLik)
	if chi2 < 0 {
		// Solver noise on equal designs; the deviance cannot be
		// negative for truly nested fits.
		chi2 = 0
	}
	return Stat{Chi2: chi2, DF: df, P: chi2P(chi2, df)}
}

// Contrast is a linear combination over the design's named
// coefficients, tested against zero. The same contrast is applied to
// the discrete and the continuous coefficient block; the combined
// covariance being block-diagonal, the two quadratic forms separate.
type Contrast map[string]float64

// Wald computes per-feature Wald tests of contrast'·β = 0. Each
// defined component contributes a 1-df chi-square
// (c'β)²/(c'Σc); the hurdle statistic is their sum.
func Wald(fit *FitSet, contrast Contrast) ([]TestResult, error) {
	if len(contrast) == 0 {
		return nil, fmt.Errorf("empty contrast: %w", ErrInvalidContrast)
	}
	idx := make(map[int]float64, len(contrast))
	for name, w := range contrast {
		i := fit.Design.coefIndex(name)
		if i < 0 {
			return nil, fmt.Errorf("contrast names coefficient %q not in design: %w", name, ErrInvalidContrast)
		}
		idx[i] = w
	}

	var out []TestResult
	for _, f := range fit.Features() {
		m, _ := fit.Model(f.ID)
		r := TestResult{Feature: f}
		r.Discrete = waldStat(m.Discrete, idx)
		r.Continuous = waldStat(m.Continuous, idx)
		if !math.IsNaN(r.Discrete.Chi2) && !math.IsNaN(r.Continuous.Chi2) {
			r.Hurdle = Stat{Chi2: r.Discrete.Chi2 + r.Continuous.Chi2, DF: 2}
			r.Hurdle.P = chi2P(r.Hurdle.Chi2, 2)
		} else {
			r.Hurdle = nanStat(2)
		}
		out = append(out, r)
	}
	return out, nil
}

func waldStat(c Component, contrast map[int]float64) Stat {
	if c.Status != StatusOK {
		return nanStat(1)
	}
	est, v := 0.0, 0.0
	for i, wi := range contrast {
		est += wi * c.Coef[i]
		for j, wj := range contrast {
			v += wi * wj * c.covAt(i, j)
		}
	}
	if v <= 0 || math.IsNaN(v) {
		return nanStat(1)
	}
	chi2 := est * est / v
	return Stat{Chi2: chi2, DF: 1, P: chi2P(chi2, 1)}
}

// SortByP returns a copy of results ordered by ascending hurdle
// p-value, NaN last. The raw slice keeps the input feature order;
// ordering for reporting is the caller's concern.
func SortByP(results []TestResult) []TestResult {
	out := append([]TestResult(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Hurdle.P, out[j].Hurdle.P
		if math.IsNaN(pj) {
			return !math.IsNaN(pi)
		}
		if math.IsNaN(pi) {
			return false
		}
		return pi < pj
	})
	return out
}
