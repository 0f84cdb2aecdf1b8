package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

func printResponse(w io.Writer, resp *pipeline.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Context) > 0 {
		names := make([]string, 0, len(resp.Context))
		for _, tc := range resp.Context {
			names = append(names, tc.Table)
		}
		fmt.Fprintf(w, "Context (%s): %s\n", resp.Tier, strings.Join(names, ", "))
	}
	if resp.SQL != "" {
		fmt.Fprintf(w, "SQL: %s\n", resp.SQL)
	}
	if resp.Explanation != "" {
		fmt.Fprintf(w, "Explanation: %s\n", resp.Explanation)
	}
	if resp.Failed() {
		return nil
	}
	if resp.Results != nil {
		printTable(w, resp.Results.Columns, resp.Results.Rows)
		fmt.Fprintf(w, "%d row(s)", len(resp.Results.Rows))
		if resp.Results.Truncated {
			fmt.Fprint(w, ", truncated")
		}
		fmt.Fprintf(w, " in %dms\n", resp.ElapsedMS)
	}
	if resp.Chart != nil {
		fmt.Fprintf(w, "Suggested chart: %s of %s by %s\n", resp.Chart.ChartType, strings.Join(resp.Chart.YColumns, ", "), resp.Chart.XColumn)
	}
	return nil
}

func printTable(w io.Writer, columns []string, rows [][]any) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		table.Append(cells)
	}
	table.Render()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return string(val)
	case float32, float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
