// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/buildmatrix/buildmatrix/internal/pipeline"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
}

func stateStyle(s pipeline.State) lipgloss.Style {
	switch s {
	case pipeline.StateSucceeded:
		return SuccessStyle
	case pipeline.StateFailed:
		return ErrorStyle
	default:
		return WarningStyle
	}
}

// renderRunSummary prints one row per job and a closing status line.
func renderRunSummary(w io.Writer, report *runReport) {
	t := newTable("#", "Job", "State", "Artifact", "Duration", "Failure")
	failed := 0
	for _, j := range report.Jobs {
		failure := ""
		if j.State == pipeline.StateFailed {
			failed++
			failure = string(j.ErrorKind)
			if failure == "" {
				failure = "error"
			}
		}
		art := j.ArtifactName
		if j.Artifact == nil {
			art = SubtitleStyle.Render(art)
		}
		t.Row(
			strconv.Itoa(j.Index),
			j.Label,
			stateStyle(j.State).Render(j.State.String()),
			art,
			j.Duration.Round(time.Millisecond).String(),
			failure,
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Run "+report.RunID)+" "+SubtitleStyle.Render(report.Workflow))
	fmt.Fprintln(w, t.Render())
	for _, j := range report.Jobs {
		if j.Error != "" {
			fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render(j.Label+":"), j.Error)
		}
	}

	if failed == 0 {
		fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf("✓ %d jobs succeeded", len(report.Jobs))))
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render(fmt.Sprintf("✗ %d of %d jobs failed", failed, len(report.Jobs))))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
