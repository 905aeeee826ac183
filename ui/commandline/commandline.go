// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools for the command line: a progress bar with
// metrics, and settings given as flags.
package commandline

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// FlagNames returns the names of the flags currently defined in fs, sorted.
//
// It's used to list the program flags before other packages (e.g. klog) register theirs.
func FlagNames(fs *flag.FlagSet) []string {
	var names []string
	fs.VisitAll(func(f *flag.Flag) {
		names = append(names, f.Name)
	})
	slices.Sort(names)
	return names
}

// SprintFlags returns a table with the current values of the given flags of fs, marking the ones
// that differ from their default. If names is empty, all flags are included.
func SprintFlags(fs *flag.FlagSet, names ...string) string {
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	modifiedStyle := normalStyle.Bold(true)
	var modified []bool
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		Headers("Flag", "Value", "Default").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(modified) && modified[row]:
				return modifiedStyle
			case col == 0:
				return rightAlignedStyle
			}
			return normalStyle
		})
	fs.VisitAll(func(f *flag.Flag) {
		if len(names) > 0 && !slices.Contains(names, f.Name) {
			return
		}
		value := f.Value.String()
		modified = append(modified, value != f.DefValue)
		table.Row(f.Name, value, f.DefValue)
	})
	return table.String()
}

// ParseSettings sets flags of fs from settings: a list separated by ";" of "flag=value", e.g.:
// "epoch=10;learning_rate=0.001".
//
// An entry like "file:settings.txt" reads the settings from the file, with new-lines working as ";" and
// lines starting with "#" considered comments.
//
// It returns the names of the flags set, in order.
func ParseSettings(fs *flag.FlagSet, settings string) (flagsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		flagsSet, err = parseSetting(fs, strings.TrimSpace(setting), flagsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(fs *flag.FlagSet, setting string, flagsSet []string) ([]string, error) {
	if setting == "" {
		return flagsSet, nil
	}
	if filePath, found := strings.CutPrefix(setting, "file:"); found {
		filePath = fsutil.MustReplaceTildeInDir(filePath)
		contents, err := os.ReadFile(filePath)
		if err != nil {
			return flagsSet, errors.Wrapf(err, "failed to read settings from file %q", filePath)
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, lineSetting := range strings.Split(line, ";") {
				flagsSet, err = parseSetting(fs, strings.TrimSpace(lineSetting), flagsSet)
				if err != nil {
					return flagsSet, err
				}
			}
		}
		return flagsSet, nil
	}

	name, value, found := strings.Cut(setting, "=")
	if !found {
		return flagsSet, errors.Errorf("can't parse setting %q: each setting requires the format \"<flag>=<value>\"", setting)
	}
	if fs.Lookup(name) == nil {
		return flagsSet, errors.Errorf("can't set %q: unknown flag", name)
	}
	if err := fs.Set(name, value); err != nil {
		return flagsSet, errors.Wrapf(err, "can't set flag %q to %q", name, value)
	}
	return append(flagsSet, name), nil
}

// CreateSettingsFlag creates a flag (named "set" if flagName is empty) in fs that takes settings parsed
// with ParseSettings. Its usage lists the flags that can be set.
func CreateSettingsFlag(fs *flag.FlagSet, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	usage := fmt.Sprintf(
		`Set flags with a list of "flag=value" separated by ";". `+
			`It can also be given an entry like "file:settings_file.txt", in which case the file will `+
			`be read and the settings will be parsed, with new-lines working as ";" to separate settings `+
			`and lines starting with "#" are considered comments. Available flags: %s`,
		strings.Join(FlagNames(fs), ", "))
	return fs.String(flagName, "", usage)
}
