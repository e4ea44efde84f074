// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package hurdle fits two-part ("hurdle") regression models to
// single-cell expression matrices and tests gene-level and
// gene-set-level hypotheses on the fitted coefficients.
//
// The discrete component models presence/absence of expression with
// logistic regression; the continuous component models magnitude given
// presence with a Gaussian model on the detected samples. Per-feature
// fits are independent and run in parallel. A sample-level bootstrap
// supplies the cross-feature coefficient covariance needed by the
// competitive gene-set test.
package hurdle

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrDuplicateColumn   = errors.New("duplicate column")
)

// Feature is the per-feature metadata row: a unique identifier plus an
// optional display symbol.
type Feature struct {
	ID     string
	Symbol string
}

// CovarTable is a named collection of numeric per-sample columns.
// Factor covariates are expected pre-encoded as indicator columns.
type CovarTable struct {
	n     int
	names []string
	cols  [][]float64
}

func NewCovarTable(n int) *CovarTable {
	return &CovarTable{n: n}
}

// Add appends a column. The name must be unused and the column length
// must equal the table's row count.
func (t *CovarTable) Add(name string, vals []float64) error {
	if len(vals) != t.n {
		return fmt.Errorf("covariate %q has %d rows, table has %d: %w", name, len(vals), t.n, ErrDimensionMismatch)
	}
	for _, nm := range t.names {
		if nm == name {
			return fmt.Errorf("covariate %q: %w", name, ErrDuplicateColumn)
		}
	}
	t.names = append(t.names, name)
	t.cols = append(t.cols, append([]float64(nil), vals...))
	return nil
}

func (t *CovarTable) Names() []string {
	return append([]string(nil), t.names...)
}

func (t *CovarTable) Col(name string) ([]float64, bool) {
	for i, nm := range t.names {
		if nm == name {
			return t.cols[i], true
		}
	}
	return nil, false
}

func (t *CovarTable) clone() *CovarTable {
	out := &CovarTable{n: t.n, names: append([]string(nil), t.names...)}
	for _, col := range t.cols {
		out.cols = append(out.cols, append([]float64(nil), col...))
	}
	return out
}

func (t *CovarTable) reindex(idx []int) *CovarTable {
	out := &CovarTable{n: len(idx), names: append([]string(nil), t.names...)}
	for _, col := range t.cols {
		sub := make([]float64, len(idx))
		for i, j := range idx {
			sub[i] = col[j]
		}
		out.cols = append(out.cols, sub)
	}
	return out
}

// Store holds an expression matrix (features × samples) together with
// per-sample covariates and per-feature metadata. The matrix and
// identifiers are fixed at construction; the covariate table grows only
// by derived-column attachment. Subsetting returns new stores.
type Store struct {
	features  []Feature
	sampleIDs []string
	values    []float64 // len(features) × len(sampleIDs), row-major
	covars    *CovarTable
}

// NewStore builds a store from a dense matrix with one row per feature.
// covars may be nil. Row and column identifiers must be unique and the
// covariate table's row count must equal the sample count.
func NewStore(values [][]float64, features []Feature, sampleIDs []string, covars *CovarTable) (*Store, error) {
	if len(values) != len(features) {
		return nil, fmt.Errorf("matrix has %d rows, feature table has %d: %w", len(values), len(features), ErrDimensionMismatch)
	}
	if covars == nil {
		covars = NewCovarTable(len(sampleIDs))
	}
	if covars.n != len(sampleIDs) {
		return nil, fmt.Errorf("covariate table has %d rows, matrix has %d samples: %w", covars.n, len(sampleIDs), ErrDimensionMismatch)
	}
	seen := map[string]bool{}
	for _, f := range features {
		if seen[f.ID] {
			return nil, fmt.Errorf("duplicate feature id %q", f.ID)
		}
		seen[f.ID] = true
	}
	seen = map[string]bool{}
	for _, id := range sampleIDs {
		if seen[id] {
			return nil, fmt.Errorf("duplicate sample id %q", id)
		}
		seen[id] = true
	}
	st := &Store{
		features:  append([]Feature(nil), features...),
		sampleIDs: append([]string(nil), sampleIDs...),
		values:    make([]float64, len(features)*len(sampleIDs)),
		covars:    covars.clone(),
	}
	for i, row := range values {
		if len(row) != len(sampleIDs) {
			return nil, fmt.Errorf("matrix row %d has %d columns, expected %d: %w", i, len(row), len(sampleIDs), ErrDimensionMismatch)
		}
		copy(st.values[i*len(sampleIDs):], row)
	}
	return st, nil
}

func (st *Store) NFeatures() int { return len(st.features) }
func (st *Store) NSamples() int  { return len(st.sampleIDs) }

func (st *Store) Features() []Feature {
	return append([]Feature(nil), st.features...)
}

func (st *Store) SampleIDs() []string {
	return append([]string(nil), st.sampleIDs...)
}

func (st *Store) Covars() *CovarTable { return st.covars }

// Row returns the expression values for feature row i.
func (st *Store) Row(i int) []float64 {
	n := len(st.sampleIDs)
	return st.values[i*n : (i+1)*n]
}

// AttachSampleCovar appends a derived per-sample column to the
// covariate table.
func (st *Store) AttachSampleCovar(name string, vals []float64) error {
	return st.covars.Add(name, vals)
}

// DetectionRate returns, per sample, the fraction of features whose
// value exceeds threshold.
func (st *Store) DetectionRate(threshold float64) []float64 {
	n := len(st.sampleIDs)
	rate := make([]float64, n)
	if len(st.features) == 0 {
		return rate
	}
	for i := range st.features {
		row := st.Row(i)
		for j, v := range row {
			if v > threshold {
				rate[j]++
			}
		}
	}
	for j := range rate {
		rate[j] /= float64(len(st.features))
	}
	return rate
}

// AttachDetectionRate computes the per-sample detection rate,
// standardizes it to mean 0 and unit variance, and attaches it under
// name. The standardized rate is the usual nuisance covariate for the
// discrete component.
func (st *Store) AttachDetectionRate(name string, threshold float64) error {
	rate := st.DetectionRate(threshold)
	mean, std := stat.MeanStdDev(rate, nil)
	if std > 0 {
		for j, v := range rate {
			rate[j] = (v - mean) / std
		}
	} else {
		for j := range rate {
			rate[j] = 0
		}
	}
	return st.covars.Add(name, rate)
}

// SubsetFeatures returns a new store containing the feature rows for
// which keep returns true. The receiver is unchanged.
func (st *Store) SubsetFeatures(keep func(Feature) bool) *Store {
	out := &Store{
		sampleIDs: append([]string(nil), st.sampleIDs...),
		covars:    st.covars.clone(),
	}
	for i, f := range st.features {
		if keep(f) {
			out.features = append(out.features, f)
			out.values = append(out.values, st.Row(i)...)
		}
	}
	return out
}

// SubsetSamples returns a new store containing the sample columns for
// which keep returns true. The receiver is unchanged.
func (st *Store) SubsetSamples(keep func(id string, i int) bool) *Store {
	var idx []int
	for j, id := range st.sampleIDs {
		if keep(id, j) {
			idx = append(idx, j)
		}
	}
	return st.reindexSamples(idx)
}

// reindexSamples builds a store whose sample columns are idx, in order.
// Duplicate indices are permitted; this is the resampling path, so the
// sample-id uniqueness invariant is deliberately not re-checked.
func (st *Store) reindexSamples(idx []int) *Store {
	n := len(st.sampleIDs)
	out := &Store{
		features: append([]Feature(nil), st.features...),
		values:   make([]float64, len(st.features)*len(idx)),
		covars:   st.covars.reindex(idx),
	}
	for _, j := range idx {
		out.sampleIDs = append(out.sampleIDs, st.sampleIDs[j])
	}
	for i := range st.features {
		src := st.values[i*n : (i+1)*n]
		dst := out.values[i*len(idx):]
		for k, j := range idx {
			dst[k] = src[j]
		}
	}
	return out
}

// LongRow is one record of the long-form projection.
type LongRow struct {
	Feature Feature
	Sample  string
	Value   float64
	Covars  []float64
}

// Long flattens the store to (feature, sample, value, covariates...)
// records, ordered by feature then sample. The projection is computed
// on demand; it is not stored state.
func (st *Store) Long() []LongRow {
	out := make([]LongRow, 0, len(st.features)*len(st.sampleIDs))
	for i, f := range st.features {
		row := st.Row(i)
		for j, id := range st.sampleIDs {
			cv := make([]float64, len(st.covars.cols))
			for k, col := range st.covars.cols {
				cv[k] = col[j]
			}
			out = append(out, LongRow{Feature: f, Sample: id, Value: row[j], Covars: cv})
		}
	}
	return out
}
