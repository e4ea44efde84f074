// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrUnknownCovariate = errors.New("unknown covariate")

// DesignSpec is an explicit, typed description of a model design:
// an optional intercept, main-effect covariate terms, and pairwise
// interaction terms, in order. It replaces runtime formula parsing;
// the caller resolves it once against a store to obtain the numeric
// design matrix and its coefficient name table.
type DesignSpec struct {
	Intercept    bool
	Terms        []string
	Interactions [][2]string
}

// Drop returns a copy of the spec with the named term (and any
// interaction touching it) removed. Useful for building the restricted
// design of a likelihood-ratio test.
func (ds DesignSpec) Drop(term string) DesignSpec {
	out := DesignSpec{Intercept: ds.Intercept}
	for _, t := range ds.Terms {
		if t != term {
			out.Terms = append(out.Terms, t)
		}
	}
	for _, ia := range ds.Interactions {
		if ia[0] != term && ia[1] != term {
			out.Interactions = append(out.Interactions, ia)
		}
	}
	return out
}

// Design is a resolved numeric design matrix with named coefficients.
type Design struct {
	names []string
	cols  [][]float64 // one per coefficient, each len n
	n     int
	rank  int
}

// Resolve expands the spec against st's sample covariates.
func (ds DesignSpec) Resolve(st *Store) (*Design, error) {
	n := st.NSamples()
	d := &Design{n: n}
	if ds.Intercept {
		ones := make([]float64, n)
		for i := range ones {
			ones[i] = 1
		}
		d.names = append(d.names, "(Intercept)")
		d.cols = append(d.cols, ones)
	}
	for _, t := range ds.Terms {
		col, ok := st.Covars().Col(t)
		if !ok {
			return nil, fmt.Errorf("design term %q: %w", t, ErrUnknownCovariate)
		}
		d.names = append(d.names, t)
		d.cols = append(d.cols, append([]float64(nil), col...))
	}
	for _, ia := range ds.Interactions {
		a, ok := st.Covars().Col(ia[0])
		if !ok {
			return nil, fmt.Errorf("interaction term %q: %w", ia[0], ErrUnknownCovariate)
		}
		b, ok := st.Covars().Col(ia[1])
		if !ok {
			return nil, fmt.Errorf("interaction term %q: %w", ia[1], ErrUnknownCovariate)
		}
		col := make([]float64, n)
		for i := range col {
			col[i] = a[i] * b[i]
		}
		d.names = append(d.names, ia[0]+":"+ia[1])
		d.cols = append(d.cols, col)
	}
	if len(d.names) == 0 {
		return nil, errors.New("empty design")
	}
	d.rank = matrixRank(d.cols, n)
	return d, nil
}

func (d *Design) Names() []string { return append([]string(nil), d.names...) }
func (d *Design) NCoef() int      { return len(d.names) }
func (d *Design) NSamples() int   { return d.n }
func (d *Design) Rank() int       { return d.rank }

func (d *Design) coefIndex(name string) int {
	for i, nm := range d.names {
		if nm == name {
			return i
		}
	}
	return -1
}

// subset returns the design restricted to the given sample rows, with
// the rank recomputed on the restricted matrix.
func (d *Design) subset(rows []int) *Design {
	out := &Design{names: append([]string(nil), d.names...), n: len(rows)}
	for _, col := range d.cols {
		sub := make([]float64, len(rows))
		for i, j := range rows {
			sub[i] = col[j]
		}
		out.cols = append(out.cols, sub)
	}
	out.rank = matrixRank(out.cols, out.n)
	return out
}

func matrixRank(cols [][]float64, n int) int {
	if n == 0 || len(cols) == 0 {
		return 0
	}
	a := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		for i, v := range col {
			a.Set(i, j, v)
		}
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	tol := float64(maxInt(n, len(cols))) * values[0] * 1e-14
	rank := 0
	for _, s := range values {
		if s > tol {
			rank++
		}
	}
	return rank
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
