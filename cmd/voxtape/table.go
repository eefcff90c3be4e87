package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column. Measured columns (durations, counts, sizes)
// are right aligned so their units line up.
type column struct {
	title    string
	measured bool
}

// recordingColumns is the shared layout of live and stored recording tables.
func recordingColumns(state, duration, size string) []column {
	return []column{
		{title: "ID"},
		{title: state},
		{title: "Started"},
		{title: duration, measured: true},
		{title: "Tracks", measured: true},
		{title: size, measured: true},
		{title: "Bridge"},
	}
}

// tableView is a rendered listing. Rows shorter than the column set are
// padded; extra cells are dropped. An empty footer is omitted.
type tableView struct {
	columns []column
	rows    [][]string
	footer  []string
}

func (v tableView) render() string {
	if len(v.columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(v.columns))
	configs := make([]table.ColumnConfig, len(v.columns))
	for i, c := range v.columns {
		header[i] = c.title
		align := text.AlignLeft
		if c.measured {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignFooter: align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.AppendHeader(header)
	for _, row := range v.rows {
		tw.AppendRow(v.fit(row))
	}
	if len(v.footer) > 0 {
		tw.AppendFooter(v.fit(v.footer))
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func (v tableView) fit(cells []string) table.Row {
	r := make(table.Row, len(v.columns))
	for i := range r {
		if i < len(cells) {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}
