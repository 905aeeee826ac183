// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"slices"
	"strings"
)

// runNames returns short names that distinguish the run directories: for each path, the path components
// where it differs from any of the other paths. The run id (last component) is used if it's enough.
func runNames(paths ...string) []string {
	names := make([]string, len(paths))
	if len(paths) == 1 {
		names[0] = filepath.Base(paths[0])
		return names
	}
	parts := make([][]string, len(paths))
	for ii, p := range paths {
		parts[ii] = strings.Split(filepath.Clean(p), string(filepath.Separator))
	}
	for ii, own := range parts {
		var differ []int
		for jj, other := range parts {
			if ii == jj {
				continue
			}
			for kk := range min(len(own), len(other)) {
				if own[kk] != other[kk] && !slices.Contains(differ, kk) {
					differ = append(differ, kk)
				}
			}
		}
		slices.Sort(differ)
		switch len(differ) {
		case 0:
			names[ii] = own[len(own)-1]
		case 1:
			names[ii] = own[differ[0]]
		default:
			names[ii] = own[differ[0]] + "..." + own[differ[len(differ)-1]]
		}
	}
	return names
}
