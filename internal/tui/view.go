package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/sakif/sipp/internal/highlight"
)

// Fallback terminal size until the first WindowSizeMsg arrives.
const (
	defaultWidth  = 80
	defaultHeight = 24

	minListWidth = 20
)

func (m Model) dims() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}

// layout returns the list and detail pane widths and the body height,
// all including borders.
func (m Model) layout() (listWidth, detailWidth, bodyHeight int) {
	w, h := m.dims()
	listWidth = max(w*30/100, minListWidth)
	detailWidth = max(w-listWidth, minListWidth)
	bodyHeight = max(h-1-lipgloss.Height(m.footer()), 5)
	return listWidth, detailWidth, bodyHeight
}

// resize fits the inputs and viewport to the current layout.
func (m *Model) resize() {
	listWidth, detailWidth, bodyHeight := m.layout()
	innerWidth := detailWidth - 2
	innerHeight := bodyHeight - 2

	m.detail.Width = innerWidth
	m.detail.Height = innerHeight

	m.filter.Width = max(listWidth-4, 1)
	m.name.Width = max(innerWidth-lipgloss.Width(m.name.Prompt)-1, 1)
	m.content.SetWidth(innerWidth)
	m.content.SetHeight(max(innerHeight-2, 1))

	m.syncDetail()
}

// syncDetail renders the selected snippet into the detail viewport.
func (m *Model) syncDetail() {
	s, ok := m.selected()
	if !ok {
		m.detail.SetContent("")
		return
	}
	m.detail.SetContent(highlight.ForTerminal(s.Name, s.Language, s.Content, m.detail.Width))
	m.detail.GotoTop()
}

// View implements tea.Model.
func (m Model) View() string {
	listWidth, detailWidth, bodyHeight := m.layout()

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderList(listWidth, bodyHeight),
		m.renderDetail(detailWidth, bodyHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), body, m.footer())
}

func (m Model) header() string {
	parts := []string{
		m.styles.header.Render("sipp"),
		string(m.source.Mode()),
		fmt.Sprintf("%d snippets", len(m.snippets)),
	}
	if v := m.filter.Value(); v != "" {
		parts = append(parts, fmt.Sprintf("filter %q (%d)", v, len(m.visible)))
	}
	return strings.Join(parts, m.styles.faint.Render(" · "))
}

func (m Model) renderList(width, height int) string {
	innerWidth := width - 2
	innerHeight := height - 2

	var lines []string
	if m.focus == focusFilter || m.filter.Value() != "" {
		lines = append(lines, m.filter.View())
		innerHeight--
	}

	switch {
	case !m.loaded && m.busy:
		lines = append(lines, m.styles.faint.Render("Loading…"))
	case len(m.visible) == 0:
		lines = append(lines, m.styles.faint.Render("No snippets"))
	default:
		// Keep the cursor on screen.
		start := 0
		if m.cursor >= innerHeight {
			start = m.cursor - innerHeight + 1
		}
		end := min(start+innerHeight, len(m.visible))
		for i := start; i < end; i++ {
			s := m.snippets[m.visible[i]]
			row := ansi.Truncate(s.Name, innerWidth-1, "…")
			if i == m.cursor {
				lines = append(lines, m.styles.selected.Width(innerWidth).Render(row))
			} else {
				lines = append(lines, m.styles.row.Render(row))
			}
		}
	}

	style := m.styles.pane
	if m.focus == focusList || m.focus == focusFilter {
		style = m.styles.focused
	}
	return style.Width(innerWidth).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderDetail(width, height int) string {
	innerWidth := width - 2

	if m.focus == focusForm {
		title := "New snippet"
		if m.editing != "" {
			title = "Edit " + m.editing
		}
		form := lipgloss.JoinVertical(lipgloss.Left,
			m.styles.title.Render(title),
			m.name.View(),
			m.content.View(),
		)
		return m.styles.focused.Width(innerWidth).Height(height - 2).Render(form)
	}

	style := m.styles.pane
	if m.focus == focusDetail {
		style = m.styles.focused
	}
	return style.Width(innerWidth).Height(height - 2).Render(m.detail.View())
}

func (m Model) footer() string {
	switch {
	case m.focus == focusConfirm:
		s, _ := m.selected()
		return m.styles.accent.Render(fmt.Sprintf("Delete %s? (y/n)", s.Name))
	case m.busy:
		return m.spinner.View() + " " + m.busyLabel + m.styles.faint.Render(" (esc to cancel)")
	case m.status != "" && m.statusErr:
		return m.styles.error.Render(m.status)
	case m.status != "":
		return m.styles.status.Render(m.status)
	case m.focus == focusForm:
		return m.styles.faint.Render("tab switch field · ctrl+s save · esc cancel")
	}
	w, _ := m.dims()
	h := m.help
	h.Width = w
	return h.View(m.keys)
}
