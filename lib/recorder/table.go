// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"strconv"

	"github.com/bureau-foundation/plotline/lib/sample"
)

// Columns returns the union of field names across samples in
// first-seen order.
func Columns(samples []sample.Sample) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, smp := range samples {
		for _, field := range smp.Fields {
			if _, ok := seen[field.Name]; ok {
				continue
			}
			seen[field.Name] = struct{}{}
			columns = append(columns, field.Name)
		}
	}
	return columns
}

// Rows lays samples out against columns. A sample lacking a column
// leaves that cell empty.
func Rows(columns []string, samples []sample.Sample) [][]string {
	position := make(map[string]int, len(columns))
	for i, name := range columns {
		position[name] = i
	}
	rows := make([][]string, len(samples))
	for i, smp := range samples {
		row := make([]string, len(columns))
		for _, field := range smp.Fields {
			if column, ok := position[field.Name]; ok {
				row[column] = FormatValue(field.Value)
			}
		}
		rows[i] = row
	}
	return rows
}

// FormatValue renders a value in the shortest form that parses back
// to the same float64.
func FormatValue(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
