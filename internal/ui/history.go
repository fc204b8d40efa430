package ui

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/landrop/landrop/internal/registry"
	"github.com/landrop/landrop/internal/utils"
)

// RenderHistoryTable prints past transfers, newest first.
func RenderHistoryTable(records []registry.Record) {
	if len(records) == 0 {
		fmt.Println(MutedStyle.Render("No transfers recorded yet"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"When", "Dir", "File", "Size", "Peer", "Status", "Speed", "OK"})

	for _, rec := range records {
		dir := IconSend
		if rec.Direction == registry.DirectionReceived {
			dir = IconReceive
		}

		speed := "-"
		if rec.SpeedBytesPerSec > 0 {
			speed = utils.FormatSpeed(float64(rec.SpeedBytesPerSec))
		}

		verified := "-"
		if rec.Status == registry.StatusCompleted {
			if rec.Verified {
				verified = IconSuccess
			} else {
				verified = IconError
			}
		}

		t.AppendRow(table.Row{
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			dir,
			utils.TruncateString(rec.Filename, 40),
			utils.FormatSize(rec.FileSize),
			utils.TruncateString(rec.Hostname, 20),
			string(rec.Status),
			speed,
			verified,
		})
	}

	t.Render()
}
