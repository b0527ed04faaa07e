package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"wpsnapshots/internal/snapshots"

	"github.com/olekukonko/tablewriter"
)

// renderSnapshots prints snaps as a table. Local listings add the
// repository column.
func renderSnapshots(w io.Writer, snaps []*snapshots.Snapshot, local bool) {
	header := []string{"ID", "Project", "Description", "Author", "Contents", "Size", "Created"}
	if local {
		header = append(header, "Repository")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, s := range snaps {
		m := s.Meta
		row := []string{
			s.ID,
			m.Project,
			m.Description,
			m.Author.Name,
			contents(m),
			formatSize(m.TotalSize()),
			formatTime(m.Time),
		}
		if local {
			row = append(row, s.Repository)
		}
		table.Append(row)
	}
	table.Render()
}

func contents(m *snapshots.Meta) string {
	var parts []string
	if m.ContainsFiles {
		parts = append(parts, "files")
	}
	if m.ContainsDB {
		parts = append(parts, "db")
	}
	if m.Multisite {
		parts = append(parts, "multisite")
	}
	return strings.Join(parts, ", ")
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}
