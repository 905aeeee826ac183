// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays a progress bar with a table of metrics above it.
//
// Updates are drawn asynchronously, so a fast loop is not slowed down by a slow terminal (e.g. over
// a remote connection). It's safe for concurrent use.
type ProgressBar struct {
	total int
	start time.Time
	bar   *progressbar.ProgressBar

	termenv       *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool
	linesPrinted  int

	mu          sync.Mutex
	metricNames []string
	metrics     map[string]string
	done        int

	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup
	closeOnce        sync.Once
	extraMetricFns   []ExtraMetricFn
}

type progressBarUpdate struct {
	amount int
	rows   [][2]string
}

// NewProgressBar creates a progress bar for total units of work, printed to the standard output.
// The description is shown before the bar.
func NewProgressBar(description string, total int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	return NewProgressBarWithWriter(os.Stdout, description, total, extraMetrics...)
}

// NewProgressBarWithWriter creates a progress bar that prints to w.
func NewProgressBarWithWriter(w io.Writer, description string, total int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	pBar := &ProgressBar{
		total:          total,
		start:          time.Now(),
		isFirstOutput:  true,
		termenv:        termenv.NewOutput(w),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		metrics:        make(map[string]string),
		updates:        make(chan progressBarUpdate, 100), // Large buffer so things are not blocked.
		extraMetricFns: extraMetrics,
	}
	pBar.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
	)
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawLoop(w)
	return pBar
}

// SetMetric sets the value of a metric displayed along the progress bar. It's shown on the next Add.
func (pBar *ProgressBar) SetMetric(name, value string) {
	pBar.mu.Lock()
	defer pBar.mu.Unlock()
	if _, found := pBar.metrics[name]; !found {
		pBar.metricNames = append(pBar.metricNames, name)
	}
	pBar.metrics[name] = value
}

// Add amount units of work done, and schedules the display to be updated.
func (pBar *ProgressBar) Add(amount int) {
	pBar.mu.Lock()
	pBar.done += amount
	elapsed := time.Since(pBar.start)
	rows := [][2]string{
		{"Done", fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.done)), humanize.Comma(int64(pBar.total)))},
		{"Elapsed", FormatDuration(elapsed)},
	}
	if pBar.done > 0 {
		rows = append(rows, [2]string{"Mean step duration", FormatDuration(elapsed / time.Duration(pBar.done))})
	}
	for _, name := range pBar.metricNames {
		rows = append(rows, [2]string{name, pBar.metrics[name]})
	}
	pBar.mu.Unlock()
	pBar.updates <- progressBarUpdate{amount: amount, rows: rows}
}

// Done returns the number of units of work added so far.
func (pBar *ProgressBar) Done() int {
	pBar.mu.Lock()
	defer pBar.mu.Unlock()
	return pBar.done
}

// Close waits for the pending updates to be drawn. The ProgressBar can't be used afterwards.
func (pBar *ProgressBar) Close() {
	pBar.closeOnce.Do(func() {
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		pBar.termenv.ShowCursor()
		_, _ = fmt.Fprintln(pBar.termenv)
	})
}

func (pBar *ProgressBar) drawLoop(w io.Writer) {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
		}
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			pBar.termenv.CursorPrevLine(pBar.linesPrinted)
		}
		pBar.isFirstOutput = false
		pBar.linesPrinted = len(update.rows) + len(pBar.extraMetricFns) + 3 // Table borders and the bar line.

		_, _ = fmt.Fprintln(w, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(w)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}
