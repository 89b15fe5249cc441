package reporter

import (
	"github.com/fatih/color"

	"statement-quality-service/internal/models"
	"statement-quality-service/internal/normalization"
)

// palette holds the console colors. A disabled palette prints plain text
// regardless of the terminal.
type palette struct {
	header *color.Color
	ok     *color.Color
	warn   *color.Color
	bad    *color.Color
	muted  *color.Color
	info   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header: color.New(color.FgCyan, color.Bold),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		bad:    color.New(color.FgRed, color.Bold),
		muted:  color.New(color.Faint),
		info:   color.New(color.FgBlue),
	}
	if !enabled {
		for _, c := range []*color.Color{p.header, p.ok, p.warn, p.bad, p.muted, p.info} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return p.bad
	case models.SeverityMedium:
		return p.warn
	default:
		return p.info
	}
}

func (p palette) state(s normalization.State) *color.Color {
	switch s {
	case normalization.StateDone:
		return p.ok
	case normalization.StateFailed:
		return p.bad
	default:
		return p.info
	}
}
