// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type cmdSuite struct{}

var _ = check.Suite(&cmdSuite{})

func (s *cmdSuite) writeInputs(c *check.C, dir string, nfeat, nsamp int) (matrixFile, covarFile string) {
	rng := rand.New(rand.NewSource(5))
	var matrix strings.Builder
	matrix.WriteString("feature\tsymbol")
	for j := 0; j < nsamp; j++ {
		fmt.Fprintf(&matrix, "\tcell%d", j)
	}
	matrix.WriteString("\n")
	for i := 0; i < nfeat; i++ {
		fmt.Fprintf(&matrix, "gene%d\tG%d", i, i)
		for j := 0; j < nsamp; j++ {
			v := 0.0
			if rng.Float64() > 0.2 {
				v = 3 + rng.NormFloat64()
				if i == 0 && j >= nsamp/2 {
					v += 3
				}
				if v < 0.1 {
					v = 0.1
				}
			}
			fmt.Fprintf(&matrix, "\t%g", v)
		}
		matrix.WriteString("\n")
	}
	matrixFile = dir + "/matrix.tsv"
	c.Assert(os.WriteFile(matrixFile, []byte(matrix.String()), 0666), check.IsNil)

	var covar strings.Builder
	covar.WriteString("sample\tgroup\n")
	for j := 0; j < nsamp; j++ {
		g := 0
		if j >= nsamp/2 {
			g = 1
		}
		fmt.Fprintf(&covar, "cell%d\t%d\n", j, g)
	}
	covarFile = dir + "/covar.tsv"
	c.Assert(os.WriteFile(covarFile, []byte(covar.String()), 0666), check.IsNil)
	return matrixFile, covarFile
}

func (s *cmdSuite) TestFitCommand(c *check.C) {
	dir := c.MkDir()
	matrixFile, covarFile := s.writeInputs(c, dir, 6, 16)
	outFile := dir + "/results.tsv"
	npyFile := dir + "/coef.npy"

	var stdout, stderr bytes.Buffer
	code := (&fitcmd{}).RunCommand("hurdle fit", []string{
		"-i", matrixFile, "-covar", covarFile, "-o", outFile,
		"-coef-npy", npyFile, "-test", "group", "-cdr",
	}, bytes.NewReader(nil), &stdout, &stderr)
	c.Assert(code, check.Equals, 0, check.Commentf("stderr: %s", stderr.String()))

	out, err := os.ReadFile(outFile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	c.Assert(len(lines), check.Equals, 7)
	c.Check(strings.HasPrefix(lines[0], "feature\tsymbol\tdisc_chi2"), check.Equals, true)
	c.Check(strings.Contains(lines[0], "hurdle_p_adj"), check.Equals, true)

	npy, err := os.ReadFile(npyFile)
	c.Assert(err, check.IsNil)
	c.Check(bytes.HasPrefix(npy, []byte("\x93NUMPY")), check.Equals, true)
}

func (s *cmdSuite) TestEnrichCommand(c *check.C) {
	dir := c.MkDir()
	matrixFile, covarFile := s.writeInputs(c, dir, 12, 16)
	modulesFile := dir + "/modules.tsv"
	var modules strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&modules, "m1\tgene%d\n", i)
	}
	for i := 4; i < 12; i++ {
		fmt.Fprintf(&modules, "m2\tgene%d\n", i)
	}
	c.Assert(os.WriteFile(modulesFile, []byte(modules.String()), 0666), check.IsNil)
	outFile := dir + "/enrich.tsv"

	var stdout, stderr bytes.Buffer
	code := (&enrichcmd{}).RunCommand("hurdle enrich", []string{
		"-i", matrixFile, "-covar", covarFile, "-modules", modulesFile,
		"-o", outFile, "-coef", "group", "-r", "10", "-seed", "7",
	}, bytes.NewReader(nil), &stdout, &stderr)
	c.Assert(code, check.Equals, 0, check.Commentf("stderr: %s", stderr.String()))

	out, err := os.ReadFile(outFile)
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	c.Assert(len(lines), check.Equals, 3)
	c.Check(strings.HasPrefix(lines[0], "module\tsize"), check.Equals, true)
}

func (s *cmdSuite) TestDispatch(c *check.C) {
	var stdout, stderr bytes.Buffer
	code := runCommand("hurdle", []string{"version"}, bytes.NewReader(nil), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(strings.Contains(stdout.String(), "hurdle"), check.Equals, true)

	code = runCommand("hurdle", []string{"no-such-command"}, bytes.NewReader(nil), &stdout, &stderr)
	c.Check(code, check.Equals, 2)
}
