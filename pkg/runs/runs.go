// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package runs assigns and resolves numbered run directories, so several independent training and
// evaluation sessions can share the same base directories without collisions.
//
// Runs are named by a zero-padded integer (see Format), e.g. "000", "001", ..., and each run owns
// one subdirectory under the checkpoints base directory and one under the summaries base directory.
package runs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Width of the zero-padded run identifiers.
const Width = 3

// TestImagesSubDir is the subdirectory of a run's checkpoint directory where evaluation outputs are written.
const TestImagesSubDir = "test_images"

// ErrNoRuns is returned when a run is looked up in a base directory without any valid run.
var ErrNoRuns = errors.New("no checkpoint found")

// Format returns the run identifier for the run number id, e.g. Format(9) == "009".
func Format(id int) string {
	return fmt.Sprintf("%0*d", Width, id)
}

// Lister lists the names of the immediate subdirectories of a base directory.
// A missing base directory should be reported as having no subdirectories.
type Lister interface {
	ListDirs(base string) ([]string, error)
}

// ListerFunc adapts a function to a Lister.
type ListerFunc func(base string) ([]string, error)

// ListDirs implements Lister.
func (fn ListerFunc) ListDirs(base string) ([]string, error) {
	return fn(base)
}

// OSLister lists directories from the filesystem.
var OSLister Lister = ListerFunc(fsutil.ListDirs)

// Registry maps base directories to their set of runs.
type Registry struct {
	lister Lister
}

// NewRegistry creates a Registry using the given Lister. If lister is nil, OSLister is used.
func NewRegistry(lister Lister) *Registry {
	if lister == nil {
		lister = OSLister
	}
	return &Registry{lister: lister}
}

// Runs returns the sorted run numbers in base: the subdirectories whose names are made only of digits.
func (r *Registry) Runs(base string) ([]int, error) {
	names, err := r.lister.ListDirs(base)
	if err != nil {
		return nil, errors.WithMessagef(err, "listing runs in %q", base)
	}
	ids := make([]int, 0, len(names))
	seen := make(map[int]bool, len(names))
	for _, name := range names {
		if !isRunName(name) {
			continue
		}
		id, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// Next returns the identifier for a new run: one more than the largest run found in any of the
// given base directories, or Format(0) if there are none.
func (r *Registry) Next(bases ...string) (string, error) {
	next := 0
	for _, base := range bases {
		ids, err := r.Runs(base)
		if err != nil {
			return "", err
		}
		if len(ids) > 0 && ids[len(ids)-1]+1 > next {
			next = ids[len(ids)-1] + 1
		}
	}
	return Format(next), nil
}

// Latest returns the identifier of the largest run in base, or an error wrapping ErrNoRuns.
func (r *Registry) Latest(base string) (string, error) {
	ids, err := r.Runs(base)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errors.Wrapf(ErrNoRuns, "no runs in %q", base)
	}
	return Format(ids[len(ids)-1]), nil
}

// Resolve returns selector verbatim if it is not empty. Otherwise, it returns the Latest run in base.
func (r *Registry) Resolve(base, selector string) (string, error) {
	if selector != "" {
		return selector, nil
	}
	return r.Latest(base)
}

// Layout of the directories owned by one run.
type Layout struct {
	CheckpointDir, SummaryDir string
	Run                       string
}

// CheckpointPath is where the run's checkpoints are stored: `{CheckpointDir}/{Run}`.
func (l Layout) CheckpointPath() string {
	return filepath.Join(l.CheckpointDir, l.Run)
}

// SummaryPath is where the run's training summaries are stored: `{SummaryDir}/{Run}`.
func (l Layout) SummaryPath() string {
	return filepath.Join(l.SummaryDir, l.Run)
}

// TestImagesPath is where the evaluation outputs of the run are written.
func (l Layout) TestImagesPath() string {
	return filepath.Join(l.CheckpointPath(), TestImagesSubDir)
}

// Create the checkpoint and summary directories of the run, if they don't exist yet.
// An empty SummaryDir is skipped.
func (l Layout) Create() error {
	if err := fsutil.MkdirAll(l.CheckpointPath()); err != nil {
		return err
	}
	if l.SummaryDir != "" {
		if err := fsutil.MkdirAll(l.SummaryPath()); err != nil {
			return err
		}
	}
	klog.V(1).Infof("run %s: checkpoints in %q, summaries in %q", l.Run, l.CheckpointPath(), l.SummaryPath())
	return nil
}

// isRunName returns whether name is a non-empty sequence of ASCII digits.
func isRunName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
