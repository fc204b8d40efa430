package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/landrop/landrop/internal/utils"
)

// PeerTableItem represents one discovered peer in the table
type PeerTableItem struct {
	Index    int
	ID       string
	Hostname string
	Address  string
}

// RenderPeerTable prints the list of discovered peers
func RenderPeerTable(items []PeerTableItem) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("No peers discovered yet"))
		return
	}

	headers := []string{"#", "Hostname", "Address", "Peer ID"}

	var rows [][]string
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			utils.TruncateString(item.Hostname, 30),
			item.Address,
			item.ID,
		})
	}

	fmt.Println(styledTable(headers, rows))
}

// FileTableItem represents a file in the table
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// RenderFileTable prints the files about to be transferred
func RenderFileTable(items []FileTableItem) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("No files"))
		return
	}

	headers := []string{"#", "Name", "Size", "Type"}

	var rows [][]string
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			utils.TruncateString(item.Type, 20),
		})
	}

	fmt.Println(styledTable(headers, rows))
}

type TransferSummary struct {
	Status   string
	Peers    int
	Size     string
	Duration string
	Speed    string
}

// RenderTransferSummary prints the end-of-transfer stats table
func RenderTransferSummary(summary TransferSummary) {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Status", summary.Status},
		{"Peers", fmt.Sprintf("%d", summary.Peers)},
		{"Total Size", summary.Size},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	}

	fmt.Println(styledTable(headers, rows))
}

func styledTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}
