// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"
)

type fitcmd struct {
	threshold float64
	threads   int
	cdr       bool
}

func (cmd *fitcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	matrixFilename := flags.String("i", "-", "expression matrix `file` (TSV, optionally .gz)")
	covarFilename := flags.String("covar", "", "sample covariate `file` (TSV, optionally .gz)")
	outputFilename := flags.String("o", "-", "output `file`")
	coefNpyFilename := flags.String("coef-npy", "", "also write fitted coefficients to numpy `file`")
	testTerm := flags.String("test", "", "covariate `term` to test (dropped from the restricted design)")
	flags.Float64Var(&cmd.threshold, "threshold", 0, "detection threshold (value > threshold counts as detected)")
	flags.IntVar(&cmd.threads, "threads", runtime.GOMAXPROCS(0), "worker threads")
	flags.BoolVar(&cmd.cdr, "cdr", false, "attach a standardized detection-rate covariate to the design")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *testTerm == "" {
		err = fmt.Errorf("-test is required")
		return 2
	}

	st, err := cmd.loadStore(*matrixFilename, *covarFilename, stdin)
	if err != nil {
		return 1
	}

	spec := DesignSpec{Intercept: true, Terms: st.Covars().Names()}
	restrictedSpec := spec.Drop(*testTerm)
	if len(restrictedSpec.Terms) == len(spec.Terms) {
		err = fmt.Errorf("-test %q does not name a covariate column", *testTerm)
		return 1
	}

	design, err := spec.Resolve(st)
	if err != nil {
		return 1
	}
	restricted, err := restrictedSpec.Resolve(st)
	if err != nil {
		return 1
	}

	opts := FitOptions{DetectionThreshold: cmd.threshold, Workers: cmd.threads}
	log.Infof("fitting %d features × %d samples, design %v", st.NFeatures(), st.NSamples(), design.Names())
	full, err := Fit(context.Background(), st, design, opts)
	if err != nil {
		return 1
	}
	reduced, err := Fit(context.Background(), st, restricted, opts)
	if err != nil {
		return 1
	}
	results, err := LRT(full, reduced)
	if err != nil {
		return 1
	}
	results = SortByP(results)
	pvals := make([]float64, len(results))
	for i, r := range results {
		pvals[i] = r.Hurdle.P
	}

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	err = WriteResultsTSV(output, results, AdjustFDR(pvals))
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *coefNpyFilename != "" {
		var npyOut *os.File
		npyOut, err = os.OpenFile(*coefNpyFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		err = WriteCoefNpy(npyOut, full)
		if err != nil {
			return 1
		}
		err = npyOut.Close()
		if err != nil {
			return 1
		}
	}
	return 0
}

func (cmd *fitcmd) loadStore(matrixFilename, covarFilename string, stdin io.Reader) (*Store, error) {
	var matrixIn io.Reader = stdin
	if matrixFilename != "-" {
		f, err := os.Open(matrixFilename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		matrixIn, err = maybeGzReader(f, matrixFilename)
		if err != nil {
			return nil, err
		}
	}
	values, features, sampleIDs, err := ReadMatrixTSV(matrixIn)
	if err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}

	var covars *CovarTable
	if covarFilename != "" {
		f, err := os.Open(covarFilename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		covarIn, err := maybeGzReader(f, covarFilename)
		if err != nil {
			return nil, err
		}
		covars, err = ReadCovarTSV(covarIn, sampleIDs)
		if err != nil {
			return nil, fmt.Errorf("read covariates: %w", err)
		}
	}

	st, err := NewStore(values, features, sampleIDs, covars)
	if err != nil {
		return nil, err
	}
	if cmd.cdr {
		if err := st.AttachDetectionRate("cdr", cmd.threshold); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func openOutput(filename string, stdout io.Writer) (io.WriteCloser, error) {
	if filename == "-" {
		return nopCloser{stdout}, nil
	}
	return os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
}
