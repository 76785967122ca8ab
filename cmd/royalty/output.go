package main

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable draws rows under headers. Columns whose cells are all numeric
// (amounts, percentages, counts) are right-aligned.
func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	numeric := make([]bool, len(headers))
	for i := range numeric {
		numeric[i] = len(rows) > 0
	}
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			r[i] = cell
			if numeric[i] && cell != "" && cell != "-" && !isNumeric(cell) {
				numeric[i] = false
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if numeric[i] {
			configs[i].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func isNumeric(cell string) bool {
	cell = strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(cell), ",", ""), "%")
	_, err := strconv.ParseFloat(cell, 64)
	return err == nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var tones = map[string]text.Colors{
	"ok":   {text.FgGreen},
	"warn": {text.FgYellow},
	"bad":  {text.FgRed, text.Bold},
}

// colorStatus colours value by tone when w is a terminal.
func colorStatus(w io.Writer, value, tone string) string {
	colors, ok := tones[tone]
	if !ok || !isTerminal(w) {
		return value
	}
	return colors.Sprint(value)
}
