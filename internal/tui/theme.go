package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette. All colors are ANSI 256-color codes
// for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	FocusBorderColor lipgloss.Color

	StatusText lipgloss.Color
	ErrorText  lipgloss.Color
	Accent     lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("231"),
	HeaderForeground:   lipgloss.Color("75"),
	BorderColor:        lipgloss.Color("240"),
	FocusBorderColor:   lipgloss.Color("214"),
	StatusText:         lipgloss.Color("114"),
	ErrorText:          lipgloss.Color("203"),
	Accent:             lipgloss.Color("214"),
}

// styles are derived once from a Theme.
type styles struct {
	header   lipgloss.Style
	faint    lipgloss.Style
	row      lipgloss.Style
	selected lipgloss.Style
	pane     lipgloss.Style
	focused  lipgloss.Style
	title    lipgloss.Style
	status   lipgloss.Style
	error    lipgloss.Style
	accent   lipgloss.Style
}

func newStyles(theme Theme) styles {
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.BorderColor)

	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground),
		faint:  lipgloss.NewStyle().Foreground(theme.FaintText),
		row:    lipgloss.NewStyle().Foreground(theme.NormalText),
		selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.SelectedForeground).
			Background(theme.SelectedBackground),
		pane:    pane,
		focused: pane.BorderForeground(theme.FocusBorderColor),
		title:   lipgloss.NewStyle().Bold(true).Foreground(theme.NormalText),
		status:  lipgloss.NewStyle().Foreground(theme.StatusText),
		error:   lipgloss.NewStyle().Foreground(theme.ErrorText),
		accent:  lipgloss.NewStyle().Foreground(theme.Accent),
	}
}
