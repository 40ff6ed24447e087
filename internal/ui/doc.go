// Package ui holds the lipgloss palette used to color CLI output.
//
// [Palette] exposes named styles (title, ok, error, warn, help) plus helpers that pick a
// style for job statuses and scan outcomes. Structured output (json, csv) never passes
// through the palette.
package ui
