package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// Painter renders text with a palette's named styles.
type Painter interface {
	Title(string) string
	OK(string) string
	Error(string) string
	Warn(string) string
	Help(string) string
}

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// Default returns the palette used by the CLI.
func Default() *Palette { return styles }

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string { return p.ok.Render(s) }
func (p *Palette) Error(s string) string { return p.err.Render(s) }
func (p *Palette) Warn(s string) string { return p.warn.Render(s) }
func (p *Palette) Help(s string) string { return p.help.Render(s) }

// JobStatus colors a job status: completed is ok, failed is an error, rejected a warning.
func (p *Palette) JobStatus(s models.JobStatus) string {
	switch s {
	case models.JobCompleted:
		return p.OK(string(s))
	case models.JobFailed:
		return p.Error(string(s))
	case models.JobRejected:
		return p.Warn(string(s))
	default:
		return p.Help(string(s))
	}
}

// ScanOutcome colors a per-playlist scan outcome.
func (p *Palette) ScanOutcome(outcome string) string {
	switch outcome {
	case metrics.ScanInSync:
		return p.OK(outcome)
	case metrics.ScanFailed:
		return p.Error(outcome)
	case metrics.ScanSkipped:
		return p.Warn(outcome)
	default:
		return p.Help(outcome)
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
