package main

import (
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var headerCaser = cases.Title(language.English)

// newTable builds a writer with the house style: boxed and colored on a
// terminal, plain pipes when piped.
func newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	row := make(table.Row, len(headers))
	for i, header := range headers {
		row[i] = headerCaser.String(header)
	}
	t.AppendHeader(row)

	if isatty.IsTerminal(os.Stdout.Fd()) {
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Header = text.FormatDefault
	} else {
		t.SetStyle(table.StyleDefault)
		t.Style().Options.DrawBorder = false
		t.Style().Options.SeparateColumns = true
		t.Style().Options.SeparateHeader = true
	}
	return t
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return age.Round(time.Second).String()
	case age < time.Hour:
		return age.Round(time.Minute).String()
	default:
		return age.Round(time.Hour).String()
	}
}

func formatStatusLabel(status string) string {
	return headerCaser.String(strings.ReplaceAll(status, "_", " "))
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "..." + path[len(path)-max+3:]
}
