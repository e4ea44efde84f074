// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hurdle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadMatrixTSV reads an expression matrix: a header row of sample IDs
// (first column "feature", optional second column "symbol"), then one
// row per feature. Values are parsed as float64.
func ReadMatrixTSV(r io.Reader) (values [][]float64, features []Feature, sampleIDs []string, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	if !scanner.Scan() {
		return nil, nil, nil, fmt.Errorf("empty matrix input")
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) < 2 {
		return nil, nil, nil, fmt.Errorf("matrix header has %d columns", len(header))
	}
	hasSymbol := len(header) > 2 && strings.EqualFold(header[1], "symbol")
	first := 1
	if hasSymbol {
		first = 2
	}
	sampleIDs = append(sampleIDs, header[first:]...)

	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != first+len(sampleIDs) {
			return nil, nil, nil, fmt.Errorf("matrix line %d has %d columns, expected %d", line, len(fields), first+len(sampleIDs))
		}
		f := Feature{ID: fields[0]}
		if hasSymbol {
			f.Symbol = fields[1]
		}
		row := make([]float64, len(sampleIDs))
		for j, s := range fields[first:] {
			row[j], err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("matrix line %d column %d: %w", line, first+j+1, err)
			}
		}
		features = append(features, f)
		values = append(values, row)
	}
	return values, features, sampleIDs, scanner.Err()
}

// ReadCovarTSV reads a per-sample covariate table: header "sample"
// plus covariate names, one row per sample, numeric values. Rows are
// reordered to match sampleIDs; every sample must be present.
func ReadCovarTSV(r io.Reader, sampleIDs []string) (*CovarTable, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	if !scanner.Scan() {
		return nil, fmt.Errorf("empty covariate input")
	}
	header := strings.Split(scanner.Text(), "\t")
	names := header[1:]

	byID := map[string][]float64{}
	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("covariate line %d has %d columns, expected %d", line, len(fields), len(header))
		}
		row := make([]float64, len(names))
		for j, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("covariate line %d column %d: %w", line, j+2, err)
			}
			row[j] = v
		}
		byID[fields[0]] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(byID) != len(sampleIDs) {
		return nil, fmt.Errorf("covariate table has %d rows, matrix has %d samples: %w", len(byID), len(sampleIDs), ErrDimensionMismatch)
	}

	tbl := NewCovarTable(len(sampleIDs))
	for j, name := range names {
		col := make([]float64, len(sampleIDs))
		for i, id := range sampleIDs {
			row, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("sample %q missing from covariate table", id)
			}
			col[i] = row[j]
		}
		if err := tbl.Add(name, col); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// ReadModulesTSV reads module membership: one "module<TAB>feature"
// pair per line, no header.
func ReadModulesTSV(r io.Reader) (map[string][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	modules := map[string][]string{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("modules line %d has %d columns, expected 2", line, len(fields))
		}
		modules[fields[0]] = append(modules[fields[0]], fields[1])
	}
	return modules, scanner.Err()
}
