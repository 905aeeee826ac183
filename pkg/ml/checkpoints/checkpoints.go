// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints saves and restores model parameters as JSON files in a run's checkpoint directory.
//
// Each checkpoint is one file named "checkpoint-n<count>-step-<iteration>.json", where count is a
// sequential number of the checkpoint in the directory, and iteration is the training step at which
// it was saved. Files sort in the order they were saved.
//
// Example:
//
//	handler := checkpoints.New(checkpointPath, *flagCheckpointKeep)
//	...
//	if err := handler.Save(step, &params); err != nil {
//		return err
//	}
//	...
//	// Later, for inference:
//	iteration, err := handler.Load("", &params)  // Latest checkpoint.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	baseNamePrefix = "checkpoint-"

	// JsonNameSuffix of the checkpoint files.
	JsonNameSuffix = ".json"
)

// ErrNotFound is returned when there are no checkpoints, or the requested iteration was not saved.
var ErrNotFound = errors.New("checkpoint not found")

var (
	checkpointCountRegex = regexp.MustCompile(`^checkpoint-n(\d+)-`)
	checkpointStepRegex  = regexp.MustCompile(`-step-(\d+)$`)
)

// Handler manages the checkpoints of one directory.
type Handler struct {
	dir  string
	keep int
}

// New creates a Handler for the checkpoints in dir, keeping the last keep checkpoints when saving.
// If keep <= 0 all checkpoints are kept.
//
// The directory is only created when the first checkpoint is saved.
func New(dir string, keep int) *Handler {
	return &Handler{dir: fsutil.MustReplaceTildeInDir(dir), keep: keep}
}

// String implements fmt.Stringer.
func (h *Handler) String() string {
	return fmt.Sprintf("checkpoints.Handler(%q)", h.dir)
}

// Dir returns the directory of the checkpoints.
func (h *Handler) Dir() string {
	return h.dir
}

// serialized is the contents of a checkpoint file.
type serialized struct {
	Iteration int64           `json:"iteration"`
	Time      time.Time       `json:"time"`
	Params    json.RawMessage `json:"params"`
}

// List returns the base names (without JsonNameSuffix) of the checkpoints in the directory, older first.
// A missing directory has no checkpoints.
func (h *Handler) List() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "%s listing checkpoints", h)
	}
	var checkpoints []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if !strings.HasPrefix(fileName, baseNamePrefix) || !strings.HasSuffix(fileName, JsonNameSuffix) {
			continue
		}
		checkpoints = append(checkpoints, strings.TrimSuffix(fileName, JsonNameSuffix))
	}
	sort.Strings(checkpoints)
	return checkpoints, nil
}

// maxCount returns the largest checkpoint count in the given checkpoints, or -1 if there are none.
func maxCount(checkpoints []string) int {
	maxId := -1
	for _, name := range checkpoints {
		matches := checkpointCountRegex.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		maxId = max(maxId, id)
	}
	return maxId
}

// IterationOf returns the iteration encoded in a checkpoint base name.
func IterationOf(baseName string) (int64, error) {
	matches := checkpointStepRegex.FindStringSubmatch(baseName)
	if len(matches) != 2 {
		return 0, errors.Errorf("invalid checkpoint name %q", baseName)
	}
	return strconv.ParseInt(matches[1], 10, 64)
}

// Latest returns the base name of the most recent checkpoint, or ErrNotFound.
func (h *Handler) Latest() (string, error) {
	list, err := h.List()
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", errors.Wrapf(ErrNotFound, "no checkpoints in %q", h.dir)
	}
	return list[len(list)-1], nil
}

// Find returns the base name of the checkpoint saved at the given iteration. If iteration is empty,
// the latest checkpoint is returned. If more than one checkpoint was saved at the same iteration, the
// most recent one is returned.
func (h *Handler) Find(iteration string) (string, error) {
	if iteration == "" {
		return h.Latest()
	}
	step, err := strconv.ParseInt(iteration, 10, 64)
	if err != nil || step < 0 {
		return "", errors.Errorf("invalid checkpoint iteration %q", iteration)
	}
	list, err := h.List()
	if err != nil {
		return "", err
	}
	for ii := len(list) - 1; ii >= 0; ii-- {
		if candidate, err := IterationOf(list[ii]); err == nil && candidate == step {
			return list[ii], nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "no checkpoint for iteration %d in %q", step, h.dir)
}

// Save writes a new checkpoint with params (anything that can be encoded with encoding/json) for the
// given iteration, and removes the excess checkpoints. It returns the base name of the new checkpoint.
func (h *Handler) Save(iteration int64, params any) (string, error) {
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return "", errors.Wrapf(err, "%s failed to encode parameters", h)
	}
	if err = fsutil.MkdirAll(h.dir); err != nil {
		return "", err
	}
	list, err := h.List()
	if err != nil {
		return "", err
	}
	baseName := fmt.Sprintf("%sn%07d-step-%08d", baseNamePrefix, maxCount(list)+1, iteration)
	contents := serialized{Iteration: iteration, Time: time.Now(), Params: encodedParams}
	err = fsutil.WriteAtomic(filepath.Join(h.dir, baseName+JsonNameSuffix), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(&contents)
	})
	if err != nil {
		return "", err
	}
	klog.V(1).Infof("%s saved %q", h, baseName)
	return baseName, h.keepN()
}

// Load reads the parameters of the checkpoint saved at iteration (the latest if iteration is empty)
// into params, which must be a pointer. It returns the iteration of the checkpoint loaded.
func (h *Handler) Load(iteration string, params any) (int64, error) {
	baseName, err := h.Find(iteration)
	if err != nil {
		return 0, err
	}
	filePath := filepath.Join(h.dir, baseName+JsonNameSuffix)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "%s failed to read checkpoint", h)
	}
	var contents serialized
	if err = json.Unmarshal(raw, &contents); err != nil {
		return 0, errors.Wrapf(err, "failed to parse checkpoint %q", filePath)
	}
	if err = json.Unmarshal(contents.Params, params); err != nil {
		return 0, errors.Wrapf(err, "failed to parse parameters of checkpoint %q", filePath)
	}
	klog.V(1).Infof("%s loaded %q", h, baseName)
	return contents.Iteration, nil
}

// keepN removes the oldest checkpoints in excess of h.keep.
func (h *Handler) keepN() error {
	if h.keep <= 0 {
		return nil
	}
	list, err := h.List()
	if err != nil {
		return errors.WithMessagef(err, "%s failed to list saved checkpoints", h)
	}
	if len(list) <= h.keep {
		return nil
	}
	for _, baseName := range list[:len(list)-h.keep] {
		fileName := filepath.Join(h.dir, baseName+JsonNameSuffix)
		if err = os.Remove(fileName); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "%s failed to remove excess checkpoint file %q", h, fileName)
		}
	}
	return nil
}
