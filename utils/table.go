package utils

import (
	"os"

	"github.com/olekukonko/tablewriter"
)

// RenderTable prints headers/data as an ASCII table to stdout, used by
// mcpecho's client to display a tools/list result.
func RenderTable(headers []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header(headers)
	table.Bulk(data)
	table.Render()
}
