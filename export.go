// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/kshedden/gonpy"
)

// WriteResultsTSV writes a hypothesis result table: one row per
// feature in input order, NaN statistics included so the feature set
// stays complete for downstream multiplicity correction. adjP may be
// nil; when given it must align with results.
func WriteResultsTSV(w io.Writer, results []TestResult, adjP []float64) error {
	bufw := bufio.NewWriter(w)
	cols := []string{"feature", "symbol",
		"disc_chi2", "disc_df", "disc_p",
		"cont_chi2", "cont_df", "cont_p",
		"hurdle_chi2", "hurdle_df", "hurdle_p"}
	if adjP != nil {
		cols = append(cols, "hurdle_p_adj")
	}
	fmt.Fprintln(bufw, strings.Join(cols, "\t"))
	for i, r := range results {
		fmt.Fprintf(bufw, "%s\t%s", r.Feature.ID, r.Feature.Symbol)
		fmt.Fprintf(bufw, "\t%g\t%d\t%g", r.Discrete.Chi2, r.Discrete.DF, r.Discrete.P)
		fmt.Fprintf(bufw, "\t%g\t%d\t%g", r.Continuous.Chi2, r.Continuous.DF, r.Continuous.P)
		fmt.Fprintf(bufw, "\t%g\t%d\t%g", r.Hurdle.Chi2, r.Hurdle.DF, r.Hurdle.P)
		if adjP != nil {
			fmt.Fprintf(bufw, "\t%g", adjP[i])
		}
		fmt.Fprintln(bufw)
	}
	return bufw.Flush()
}

// WriteEnrichTSV writes the per-module enrichment table.
func WriteEnrichTSV(w io.Writer, results []ModuleResult) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintln(bufw, strings.Join([]string{"module", "size",
		"disc_effect", "disc_z", "cont_effect", "cont_z",
		"combined_z", "p", "p_adj"}, "\t"))
	for _, r := range results {
		fmt.Fprintf(bufw, "%s\t%d\t%g\t%g\t%g\t%g\t%g\t%g\t%g\n",
			r.Module, r.Size, r.DiscEffect, r.DiscZ, r.ContEffect, r.ContZ,
			r.CombinedZ, r.P, r.AdjP)
	}
	return bufw.Flush()
}

// WriteCoefNpy writes the fitted coefficient matrix as a float64 .npy
// array of shape (features, 2×coefficients): the discrete block then
// the continuous block, NaN-filled where a component was not
// estimated.
func WriteCoefNpy(w io.Writer, fit *FitSet) error {
	p := fit.Design.NCoef()
	features := fit.Features()
	out := make([]float64, len(features)*2*p)
	for i, f := range features {
		m, _ := fit.Model(f.ID)
		copy(out[i*2*p:], m.Discrete.Coef)
		copy(out[i*2*p+p:], m.Continuous.Coef)
	}
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return fmt.Errorf("gonpy.NewWriter: %w", err)
	}
	npw.Shape = []int{len(features), 2 * p}
	return npw.WriteFloat64(out)
}

// WriteReplicatesNpy writes the bootstrap ensemble as a float64 .npy
// array of shape (replicates, features, 2×coefficients), blocks
// ordered as in WriteCoefNpy.
func WriteReplicatesNpy(w io.Writer, rs *ReplicateSet) error {
	p := len(rs.CoefNames)
	nfeat := len(rs.Features)
	out := make([]float64, rs.R()*nfeat*2*p)
	for r := 0; r < rs.R(); r++ {
		for fi := 0; fi < nfeat; fi++ {
			base := (r*nfeat + fi) * 2 * p
			copy(out[base:base+p], rs.disc[r][fi*p:(fi+1)*p])
			copy(out[base+p:base+2*p], rs.cont[r][fi*p:(fi+1)*p])
		}
	}
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return fmt.Errorf("gonpy.NewWriter: %w", err)
	}
	npw.Shape = []int{rs.R(), nfeat, 2 * p}
	return npw.WriteFloat64(out)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// maybeGzReader wraps r with a pgzip reader when the filename carries
// a .gz suffix.
func maybeGzReader(r io.Reader, filename string) (io.Reader, error) {
	if !strings.HasSuffix(filename, ".gz") {
		return r, nil
	}
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", filename, err)
	}
	return gz, nil
}
