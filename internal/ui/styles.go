package ui

import "github.com/charmbracelet/lipgloss"

// Palette: jade for progress and hits, amber for skipped documents.
const (
	colorJade    = "36"
	colorJadeDim = "29"
	colorInk     = "252"
	colorMuted   = "244"
	colorRule    = "238"
	colorAmber   = "214"
	colorCrimson = "160"
)

// Styles are shared by the build view and command output.
type Styles struct {
	Title lipgloss.Style
	Hit   lipgloss.Style // search result titles
	Term  lipgloss.Style // index and query terms
	Value lipgloss.Style
	Muted lipgloss.Style
	Faint lipgloss.Style

	Done    lipgloss.Style
	Skipped lipgloss.Style
	Failed  lipgloss.Style

	// Build stages, by state.
	StageDone    lipgloss.Style
	StageRunning lipgloss.Style
	StagePending lipgloss.Style

	Rule  lipgloss.Style
	Frame lipgloss.Style
	// Summary frames the completed build.
	Summary lipgloss.Style
}

// NewStyles returns the colored styles, or plain ones when color is false.
func NewStyles(color bool) Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return Styles{
			Title: plain, Hit: plain, Term: plain, Value: plain, Muted: plain, Faint: plain,
			Done: plain, Skipped: plain, Failed: plain,
			StageDone: plain, StageRunning: plain, StagePending: plain,
			Rule: plain, Frame: plain,
			Summary: plain.Border(lipgloss.RoundedBorder()).Padding(1, 2),
		}
	}

	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	framed := func(c string, v, h int) lipgloss.Style {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(c)).
			Padding(v, h)
	}
	return Styles{
		Title: fg(colorInk).Bold(true),
		Hit:   fg(colorJade).Bold(true),
		Term:  fg(colorInk),
		Value: fg(colorJade),
		Muted: fg(colorMuted),
		Faint: fg(colorRule),

		Done:    fg(colorJade),
		Skipped: fg(colorAmber),
		Failed:  fg(colorCrimson),

		StageDone:    fg(colorJadeDim),
		StageRunning: fg(colorJade).Bold(true),
		StagePending: fg(colorRule),

		Rule:    fg(colorRule),
		Frame:   framed(colorRule, 0, 1),
		Summary: framed(colorJade, 1, 2),
	}
}

// Stage renders a build stage name marked by its state relative to current.
func (s Styles) Stage(stage, current Stage, name, spinner string) string {
	switch {
	case stage < current:
		return s.StageDone.Render("● " + name)
	case stage == current:
		return s.StageRunning.Render(spinner + " " + name)
	default:
		return s.StagePending.Render("○ " + name)
	}
}
