// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("epoch", 25, "")
	fs.Float64("learning_rate", 0.0002, "")
	fs.Bool("is_train", true, "")
	fs.String("checkpoint_dir", "checkpoint_sketches_to_rendered", "")
	return fs
}

func TestParseSettings(t *testing.T) {
	fs := createTestFlags()
	flagsSet, err := ParseSettings(fs, "epoch=3; learning_rate=0.1;is_train=false;")
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "learning_rate", "is_train"}, flagsSet)
	assert.Equal(t, "3", fs.Lookup("epoch").Value.String())
	assert.Equal(t, "0.1", fs.Lookup("learning_rate").Value.String())
	assert.Equal(t, "false", fs.Lookup("is_train").Value.String())

	settingsFile := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(settingsFile, []byte("# Comment\nepoch=7\n\ncheckpoint_dir=/tmp/x;is_train=true\n"), 0644))
	flagsSet, err = ParseSettings(fs, "file:"+settingsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch", "checkpoint_dir", "is_train"}, flagsSet)
	assert.Equal(t, "7", fs.Lookup("epoch").Value.String())
	assert.Equal(t, "/tmp/x", fs.Lookup("checkpoint_dir").Value.String())

	_, err = ParseSettings(fs, "unknown=3")
	require.Error(t, err)
	_, err = ParseSettings(fs, "epoch=3.14")
	require.Error(t, err)
	_, err = ParseSettings(fs, "epoch")
	require.Error(t, err)
	_, err = ParseSettings(fs, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestFlagsTable(t *testing.T) {
	fs := createTestFlags()
	assert.Equal(t, []string{"checkpoint_dir", "epoch", "is_train", "learning_rate"}, FlagNames(fs))
	settings := CreateSettingsFlag(fs, "")
	assert.NotNil(t, fs.Lookup("set"))
	assert.Empty(t, *settings)

	require.NoError(t, fs.Set("epoch", "5"))
	table := SprintFlags(fs, "epoch", "is_train")
	assert.Contains(t, table, "epoch")
	assert.Contains(t, table, "25")
	assert.Contains(t, table, "is_train")
	assert.NotContains(t, table, "learning_rate")
	assert.Contains(t, SprintFlags(fs), "checkpoint_sketches_to_rendered")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23s", FormatDuration(1234567*time.Microsecond))
	assert.Equal(t, "15.00ms", FormatDuration(15*time.Millisecond))
	assert.Equal(t, "2m3s", FormatDuration(2*time.Minute+3200*time.Millisecond))
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pBar := NewProgressBarWithWriter(&buf, "Sampling", 4, func() (string, string) { return "Run", "007" })
	pBar.SetMetric("Generator Loss", "0.25")
	for range 4 {
		pBar.Add(1)
	}
	assert.Equal(t, 4, pBar.Done())
	pBar.Close()
	pBar.Close() // Closing twice is a no-op.

	output := buf.String()
	assert.Contains(t, output, "Sampling")
	assert.Contains(t, output, "Generator Loss")
	assert.Contains(t, output, "0.25")
	assert.Contains(t, output, "007")
	assert.Contains(t, output, "4 of 4")
}
