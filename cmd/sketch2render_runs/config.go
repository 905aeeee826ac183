// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/must"
)

// configValues returns the configuration of the run as strings, indexed by field name.
func configValues(r *runReport) map[string]string {
	values := make(map[string]string)
	if r.Info == nil {
		return values
	}
	var fields map[string]any
	must.M(json.Unmarshal(must.M1(json.Marshal(r.Info.Config)), &fields))
	for name, value := range fields {
		values[name] = fmt.Sprintf("%v", value)
	}
	return values
}

// configTable lists the configuration fields, one column per run. Fields whose values differ
// across runs are highlighted.
func configTable(reports []*runReport) *reportTable {
	table := newReportTable(lipgloss.Right, lipgloss.Left)
	headers := []string{"Field"}
	perRun := make([]map[string]string, len(reports))
	fieldSet := make(map[string]bool)
	for ii, r := range reports {
		headers = append(headers, r.Name)
		perRun[ii] = configValues(r)
		for name := range perRun[ii] {
			fieldSet[name] = true
		}
	}
	table.Table.Headers(headers...)
	for _, name := range slices.Sorted(maps.Keys(fieldSet)) {
		row := make([]string, 1+len(reports))
		row[0] = name
		for ii := range reports {
			row[ii+1] = perRun[ii][name]
		}
		table.Row(!isAllEqual(row[1:]), row...)
	}
	return table
}
