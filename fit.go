// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"runtime"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat"
)

// statmodel logs solver chatter to its configured logger; discard it
// so per-feature fits stay quiet.
var (
	discreteConfig = &glm.Config{
		Family:         glm.NewFamily(glm.BinomialFamily),
		FitMethod:      "IRLS",
		ConcurrentIRLS: 1000,
		Log:            log.New(io.Discard, "", 0),
	}
	continuousConfig = &glm.Config{
		Family:    glm.NewFamily(glm.GaussianFamily),
		FitMethod: "IRLS",
		Log:       log.New(io.Discard, "", 0),
	}
)

// Status describes the outcome of one component fit.
type Status int

const (
	StatusOK Status = iota
	// StatusNonConverged: the solver failed (singular or near-singular
	// design, separation); coefficients are NaN.
	StatusNonConverged
	// StatusDegenerate: the discrete outcome is constant (feature
	// detected in all samples or in none); coefficients are NaN and
	// the log-likelihood is 0 (saturated), so likelihood-ratio
	// statistics against any nested design are 0.
	StatusDegenerate
	// StatusUnidentifiable: fewer detected samples than design rank+1,
	// or zero variance among detected values; the continuous component
	// cannot be estimated.
	StatusUnidentifiable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNonConverged:
		return "non-converged"
	case StatusDegenerate:
		return "degenerate"
	case StatusUnidentifiable:
		return "unidentifiable"
	}
	return "unknown"
}

// Component holds one fitted regression component: coefficient vector,
// flattened p×p covariance, and log-likelihood. Coef and VCov are NaN
// when Status != StatusOK.
type Component struct {
	Status Status
	Coef   []float64
	VCov   []float64
	LogLik float64
}

func (c *Component) covAt(i, j int) float64 {
	p := len(c.Coef)
	return c.VCov[i*p+j]
}

// FittedModel is the result of fitting the two-part model to a single
// feature. The combined covariance is block-diagonal: the discrete and
// continuous blocks are estimated independently, with no analytic
// cross term; joint and cross-feature inference uses the bootstrap.
type FittedModel struct {
	Feature    Feature
	Discrete   Component
	Continuous Component
	NDetected  int
	Aux        interface{}
}

// PostFitFunc is an optional hook invoked after each feature's fit with
// the continuous-component residuals on the detected samples (nil when
// that component was not estimated). Its return value is stored on the
// model's Aux field.
type PostFitFunc func(f Feature, m *FittedModel, resid []float64) interface{}

// FitOptions configures a fit batch. The zero value is usable.
type FitOptions struct {
	// DetectionThreshold separates detected from undetected values:
	// a value is detected when it is strictly greater.
	DetectionThreshold float64
	// Workers caps fit parallelism; 0 means GOMAXPROCS.
	Workers int
	// Features restricts the fit to the listed feature IDs; nil means
	// all features in the store.
	Features []string
	PostFit  PostFitFunc
}

// FitSet is a batch of fitted models, keyed by feature ID, preserving
// the input feature order.
type FitSet struct {
	Design   *Design
	features []Feature
	models   map[string]*FittedModel
}

func (fs *FitSet) Features() []Feature {
	return append([]Feature(nil), fs.features...)
}

func (fs *FitSet) Model(id string) (*FittedModel, bool) {
	m, ok := fs.models[id]
	return m, ok
}

// Fit fits the hurdle model to every requested feature independently.
// Per-feature failures are recorded on the feature's component status
// and never abort the batch. Cancelling ctx stops the batch between
// features; models fitted before cancellation are returned alongside
// the context error.
func Fit(ctx context.Context, st *Store, design *Design, opts FitOptions) (*FitSet, error) {
	if design.NSamples() != st.NSamples() {
		return nil, ErrDimensionMismatch
	}
	rows := map[string]int{}
	for i, f := range st.Features() {
		rows[f.ID] = i
	}
	var features []Feature
	if opts.Features == nil {
		features = st.Features()
	} else {
		all := st.Features()
		for _, id := range opts.Features {
			i, ok := rows[id]
			if !ok {
				// Silently dropping a requested feature would leave
				// the result table incomplete; fail the call instead.
				return nil, fmt.Errorf("requested feature %q not in store", id)
			}
			features = append(features, all[i])
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*FittedModel, len(features))
	pool := throttle{Max: workers}
	for i, f := range features {
		if ctx.Err() != nil {
			break
		}
		i, f := i, f
		pool.Go(func() error {
			m := fitFeature(f, st.Row(rows[f.ID]), design, opts)
			if opts.PostFit != nil {
				m.Aux = opts.PostFit(f, m, continuousResiduals(m, st.Row(rows[f.ID]), design, opts.DetectionThreshold))
			}
			results[i] = m
			return nil
		})
	}
	err := pool.Wait()
	if err == nil {
		err = ctx.Err()
	}

	fs := &FitSet{Design: design, models: map[string]*FittedModel{}}
	for i, m := range results {
		if m == nil {
			continue
		}
		fs.features = append(fs.features, features[i])
		fs.models[features[i].ID] = m
	}
	return fs, err
}

func fitFeature(f Feature, values []float64, design *Design, opts FitOptions) *FittedModel {
	p := design.NCoef()
	m := &FittedModel{Feature: f}

	indicator := make([]float64, len(values))
	var detected []int
	for j, v := range values {
		if v > opts.DetectionThreshold {
			indicator[j] = 1
			detected = append(detected, j)
		}
	}
	m.NDetected = len(detected)

	// Discrete component on all samples.
	switch m.NDetected {
	case 0, len(values):
		m.Discrete = nanComponent(p, StatusDegenerate)
		m.Discrete.LogLik = 0
	default:
		m.Discrete = fitGLM(indicator, design.cols, design.names, discreteConfig)
	}

	// Continuous component on detected samples only. Estimating it
	// needs strictly more detected samples than the design rank.
	switch {
	case m.NDetected < design.Rank()+1:
		m.Continuous = nanComponent(p, StatusUnidentifiable)
	default:
		y := make([]float64, len(detected))
		for i, j := range detected {
			y[i] = values[j]
		}
		if stat.Variance(y, nil) == 0 {
			m.Continuous = nanComponent(p, StatusUnidentifiable)
			break
		}
		sub := design.subset(detected)
		if sub.Rank() < p {
			m.Continuous = nanComponent(p, StatusUnidentifiable)
			break
		}
		m.Continuous = fitGLM(y, sub.cols, sub.names, continuousConfig)
	}
	return m
}

// fitGLM runs one statmodel GLM fit. The solver panics on singular or
// near-singular designs; recover and report a non-converged component.
func fitGLM(outcome []float64, cols [][]float64, names []string, config *glm.Config) (comp Component) {
	p := len(cols)
	defer func() {
		if recover() != nil {
			comp = nanComponent(p, StatusNonConverged)
		}
	}()

	data := make([][]statmodel.Dtype, 0, p+1)
	data = append(data, append([]statmodel.Dtype(nil), outcome...))
	varnames := append([]string{"y"}, names...)
	for _, col := range cols {
		data = append(data, append([]statmodel.Dtype(nil), col...))
	}
	dataset := statmodel.NewDataset(data, varnames)

	model, err := glm.NewGLM(dataset, "y", varnames[1:], config)
	if err != nil {
		return nanComponent(p, StatusNonConverged)
	}
	result := model.Fit()
	coef := append([]float64(nil), result.Params()...)
	vcov := append([]float64(nil), result.VCov()...)
	for _, v := range coef {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nanComponent(p, StatusNonConverged)
		}
	}
	return Component{Status: StatusOK, Coef: coef, VCov: vcov, LogLik: result.LogLike()}
}

func nanComponent(p int, status Status) Component {
	c := Component{Status: status, Coef: make([]float64, p), VCov: make([]float64, p*p)}
	for i := range c.Coef {
		c.Coef[i] = math.NaN()
	}
	for i := range c.VCov {
		c.VCov[i] = math.NaN()
	}
	c.LogLik = math.NaN()
	return c
}

// continuousResiduals computes y - Xβ on the detected samples, for the
// post-fit hook. Returns nil when the continuous component was not
// estimated.
func continuousResiduals(m *FittedModel, values []float64, design *Design, threshold float64) []float64 {
	if m.Continuous.Status != StatusOK {
		return nil
	}
	var resid []float64
	for j, v := range values {
		if v <= threshold {
			continue
		}
		fitted := 0.0
		for k, col := range design.cols {
			fitted += m.Continuous.Coef[k] * col[j]
		}
		resid = append(resid, v-fitted)
	}
	return resid
}
