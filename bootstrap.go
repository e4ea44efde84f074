// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"context"
	"errors"
	"math"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

var ErrReplicateCount = errors.New("bootstrap replicate count must be positive")

// ReplicateSet is the ensemble of per-feature coefficient vectors
// collected across bootstrap resamples. Positions are aligned: entry
// [r][feature*p+coef] is replicate r's estimate of the given
// coefficient, NaN when that replicate's fit failed for the feature.
// The set exists to compute empirical covariances; it is not meant to
// be persisted.
type ReplicateSet struct {
	Features  []Feature
	CoefNames []string
	Seed      uint64
	disc      [][]float64
	cont      [][]float64
}

func (rs *ReplicateSet) R() int { return len(rs.disc) }

func (rs *ReplicateSet) coefIndex(name string) int {
	for i, nm := range rs.CoefNames {
		if nm == name {
			return i
		}
	}
	return -1
}

func (rs *ReplicateSet) series(buf [][]float64, feature, coef int) []float64 {
	p := len(rs.CoefNames)
	out := make([]float64, len(buf))
	for r, rep := range buf {
		out[r] = rep[feature*p+coef]
	}
	return out
}

// DiscSeries returns the discrete-component coefficient series for one
// (feature index, coefficient index) across all replicates.
func (rs *ReplicateSet) DiscSeries(feature, coef int) []float64 {
	return rs.series(rs.disc, feature, coef)
}

func (rs *ReplicateSet) ContSeries(feature, coef int) []float64 {
	return rs.series(rs.cont, feature, coef)
}

// DiscCov is the empirical covariance between two features'
// discrete-component coefficient series across replicates,
// pairwise-complete over the replicates where both are finite.
func (rs *ReplicateSet) DiscCov(fi, fj, coef int) float64 {
	return nanCov(rs.DiscSeries(fi, coef), rs.DiscSeries(fj, coef))
}

// ContCov is the continuous-component counterpart of DiscCov.
func (rs *ReplicateSet) ContCov(fi, fj, coef int) float64 {
	return nanCov(rs.ContSeries(fi, coef), rs.ContSeries(fj, coef))
}

// BootstrapOptions configures the resampling run.
type BootstrapOptions struct {
	// Workers caps replicate parallelism; 0 means GOMAXPROCS.
	Workers int
	Fit     FitOptions
}

// Bootstrap draws R sample-index multisets with replacement, refits
// the hurdle model on each resampled store under the same design spec,
// and records the per-feature coefficient vectors. The seed fully
// determines the draws: sub-seeds for all replicates are taken from
// the base source up front, so results are bitwise reproducible
// regardless of worker scheduling. Callers must record the seed they
// used; there is no implicit global randomness.
func Bootstrap(ctx context.Context, st *Store, spec DesignSpec, replicates int, seed uint64, opts BootstrapOptions) (*ReplicateSet, error) {
	if replicates <= 0 {
		return nil, ErrReplicateCount
	}
	design, err := spec.Resolve(st)
	if err != nil {
		return nil, err
	}
	n := st.NSamples()
	p := design.NCoef()
	features := st.Features()
	if opts.Fit.Features != nil {
		keep := map[string]bool{}
		for _, id := range opts.Fit.Features {
			keep[id] = true
		}
		var sub []Feature
		for _, f := range features {
			if keep[f.ID] {
				sub = append(sub, f)
			}
		}
		features = sub
	}

	base := rand.New(rand.NewSource(seed))
	subseeds := make([]uint64, replicates)
	for r := range subseeds {
		subseeds[r] = base.Uint64()
	}

	rs := &ReplicateSet{
		Features:  features,
		CoefNames: design.Names(),
		Seed:      seed,
		disc:      make([][]float64, replicates),
		cont:      make([][]float64, replicates),
	}

	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	log.Infof("bootstrap: %d replicates, %d features, seed %d", replicates, len(features), seed)
	pool := throttle{Max: workers}
	for r := 0; r < replicates; r++ {
		if ctx.Err() != nil {
			break
		}
		r := r
		pool.Go(func() error {
			rng := rand.New(rand.NewSource(subseeds[r]))
			idx := make([]int, n)
			for i := range idx {
				idx[i] = rng.Intn(n)
			}
			rst := st.reindexSamples(idx)
			rdesign, err := spec.Resolve(rst)
			if err != nil {
				return err
			}
			fitOpts := opts.Fit
			fitOpts.Workers = 1
			fitOpts.PostFit = nil
			fs, err := Fit(context.Background(), rst, rdesign, fitOpts)
			if err != nil {
				return err
			}
			rs.disc[r], rs.cont[r] = flattenCoefs(fs, features, p)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Keep completed replicates usable: drop unfilled tails.
		var disc, cont [][]float64
		for r := range rs.disc {
			if rs.disc[r] != nil {
				disc = append(disc, rs.disc[r])
				cont = append(cont, rs.cont[r])
			}
		}
		rs.disc, rs.cont = disc, cont
		return rs, err
	}
	return rs, nil
}

// flattenCoefs records one replicate's coefficients, NaN-filled for
// features whose fit failed so positions stay aligned across
// replicates.
func flattenCoefs(fs *FitSet, features []Feature, p int) (disc, cont []float64) {
	disc = make([]float64, len(features)*p)
	cont = make([]float64, len(features)*p)
	for i := range disc {
		disc[i] = math.NaN()
		cont[i] = math.NaN()
	}
	for fi, f := range features {
		m, ok := fs.Model(f.ID)
		if !ok {
			continue
		}
		if m.Discrete.Status == StatusOK {
			copy(disc[fi*p:], m.Discrete.Coef)
		}
		if m.Continuous.Status == StatusOK {
			copy(cont[fi*p:], m.Continuous.Coef)
		}
	}
	return disc, cont
}
