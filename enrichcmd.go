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

type enrichcmd struct {
	fitcmd
}

func (cmd *enrichcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	modulesFilename := flags.String("modules", "", "module membership `file` (module<TAB>feature per line)")
	outputFilename := flags.String("o", "-", "output `file`")
	repsNpyFilename := flags.String("replicates-npy", "", "also write bootstrap replicates to numpy `file`")
	coefName := flags.String("coef", "", "design coefficient to test for enrichment")
	replicates := flags.Int("r", 50, "bootstrap replicate count")
	seed := flags.Uint64("seed", 0, "bootstrap random seed (recorded with the run; required for reproducibility)")
	minSize := flags.Int("min-size", 5, "minimum module size after intersection with fitted features")
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
	if *modulesFilename == "" || *coefName == "" {
		err = fmt.Errorf("-modules and -coef are required")
		return 2
	}

	st, err := cmd.loadStore(*matrixFilename, *covarFilename, stdin)
	if err != nil {
		return 1
	}
	modulesIn, err := os.Open(*modulesFilename)
	if err != nil {
		return 1
	}
	defer modulesIn.Close()
	modules, err := ReadModulesTSV(modulesIn)
	if err != nil {
		return 1
	}

	spec := DesignSpec{Intercept: true, Terms: st.Covars().Names()}
	design, err := spec.Resolve(st)
	if err != nil {
		return 1
	}
	opts := FitOptions{DetectionThreshold: cmd.threshold, Workers: cmd.threads}
	log.Infof("fitting %d features × %d samples", st.NFeatures(), st.NSamples())
	fit, err := Fit(context.Background(), st, design, opts)
	if err != nil {
		return 1
	}

	reps, err := Bootstrap(context.Background(), st, spec, *replicates, *seed, BootstrapOptions{
		Workers: cmd.threads,
		Fit:     FitOptions{DetectionThreshold: cmd.threshold},
	})
	if err != nil {
		return 1
	}

	results, err := Enrich(fit, reps, modules, *coefName, EnrichOptions{MinSize: *minSize})
	if err != nil {
		return 1
	}
	log.Infof("tested %d of %d modules", len(results), len(modules))

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	err = WriteEnrichTSV(output, results)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *repsNpyFilename != "" {
		var npyOut *os.File
		npyOut, err = os.OpenFile(*repsNpyFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		err = WriteReplicatesNpy(npyOut, reps)
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
