package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sakif/sipp/internal/backend"
	"github.com/sakif/sipp/internal/model"
)

// Source is what the browser needs from the access facade.
// *backend.Facade satisfies it.
type Source interface {
	List(ctx context.Context, opts backend.ListOptions) ([]model.Snippet, error)
	Create(ctx context.Context, name, content, language string) (*model.Snippet, error)
	Update(ctx context.Context, shortID string, patch model.SnippetPatch) (*model.Snippet, error)
	Delete(ctx context.Context, shortID string) (bool, error)
	Link(shortID string) string
	Mode() backend.Mode
}

var _ Source = (*backend.Facade)(nil)

// focus identifies where key presses go.
type focus int

const (
	// focusList means navigation keys move the list cursor.
	focusList focus = iota
	// focusDetail means navigation keys scroll the detail viewport.
	focusDetail
	// focusFilter means keystrokes edit the filter input.
	focusFilter
	// focusForm means keystrokes edit the create/edit form.
	focusForm
	// focusConfirm means the delete prompt is waiting for y.
	focusConfirm
)

// Form fields, cycled with tab.
const (
	fieldName = iota
	fieldContent
)

// statusFadeDelay is how long a status message stays visible.
const statusFadeDelay = 2 * time.Second

// Results of background requests. seq ties a result to the request that
// produced it; anything older than Model.seq was cancelled or superseded
// and is dropped.
type (
	listedMsg struct {
		seq      int
		refresh  bool
		snippets []model.Snippet
		err      error
	}
	createdMsg struct {
		seq     int
		snippet *model.Snippet
		err     error
	}
	updatedMsg struct {
		seq     int
		snippet *model.Snippet
		err     error
	}
	deletedMsg struct {
		seq     int
		shortID string
		name    string
		removed bool
		err     error
	}
)

// statusFadeMsg clears the status line unless a newer message replaced it.
type statusFadeMsg struct {
	seq int
}

// Model is the bubbletea model for the snippet browser.
type Model struct {
	source Source
	keys   KeyMap
	styles styles

	width  int
	height int

	focus focus

	// snippets holds the last listing, newest first. visible indexes into
	// it after the local filter is applied; cursor indexes into visible.
	snippets []model.Snippet
	visible  []int
	cursor   int
	loaded   bool

	filter textinput.Model
	detail viewport.Model

	// Form state. editing is empty when creating.
	name      textinput.Model
	content   textarea.Model
	formField int
	editing   string
	before    model.Snippet

	spinner spinner.Model
	help    help.Model

	// At most one request is outstanding. seq increments whenever one
	// starts or is cancelled.
	busy      bool
	busyLabel string
	seq       int
	cancel    context.CancelFunc

	status    string
	statusErr bool
	statusSeq int
	statusTTL time.Duration

	clipboard func(string) error

	initial tea.Cmd
}

// New creates a browser over src and starts loading the list.
func New(src Source) Model {
	filter := textinput.New()
	filter.Prompt = "/"
	filter.Placeholder = "filter"

	name := textinput.New()
	name.Prompt = "Name: "
	name.Placeholder = "hello.go"
	name.CharLimit = 256

	content := textarea.New()
	content.Placeholder = "Paste or type the snippet"
	content.ShowLineNumbers = false
	content.CharLimit = 0
	content.MaxHeight = 0

	m := Model{
		source:    src,
		keys:      DefaultKeyMap,
		styles:    newStyles(DefaultTheme),
		filter:    filter,
		name:      name,
		content:   content,
		detail:    viewport.New(0, 0),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:      help.New(),
		statusTTL: statusFadeDelay,
		clipboard: copyOSC52,
	}
	m.initial = m.loadCmd(false)
	return m
}

// Run starts the browser on the alternate screen and blocks until quit.
func Run(src Source) error {
	p := tea.NewProgram(New(src), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.initial
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusFadeMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case listedMsg:
		if !m.finish(msg.seq) {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.setError(msg.err)
			return m, cmd
		}
		m.setSnippets(msg.snippets)
		m.loaded = true
		if msg.refresh {
			cmd := m.setStatus(fmt.Sprintf("Refreshed %d snippets", len(m.snippets)))
			return m, cmd
		}
		return m, nil

	case createdMsg:
		if !m.finish(msg.seq) {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.setError(msg.err)
			return m, cmd
		}
		m.closeForm()
		m.snippets = append([]model.Snippet{*msg.snippet}, m.snippets...)
		m.applyFilter()
		m.selectShortID(msg.snippet.ShortID)
		cmd := m.setStatus("Created " + m.source.Link(msg.snippet.ShortID))
		return m, cmd

	case updatedMsg:
		if !m.finish(msg.seq) {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.setError(msg.err)
			return m, cmd
		}
		before := m.before
		m.closeForm()
		m.replace(*msg.snippet)
		cmd := m.setStatus(editSummary(before.Name, msg.snippet.Name, before.Content, msg.snippet.Content))
		return m, cmd

	case deletedMsg:
		if !m.finish(msg.seq) {
			return m, nil
		}
		if msg.err != nil {
			cmd := m.setError(msg.err)
			return m, cmd
		}
		m.remove(msg.shortID)
		if !msg.removed {
			cmd := m.setStatus(msg.name + " was already deleted")
			return m, cmd
		}
		cmd := m.setStatus("Deleted " + msg.name)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.forward(msg)
}

// forward passes non-key messages (cursor blinks and the like) to
// whichever input is active.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
	case focusForm:
		if m.formField == fieldName {
			m.name, cmd = m.name.Update(msg)
		} else {
			m.content, cmd = m.content.Update(msg)
		}
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		m.abort()
		return m, tea.Quit
	}

	// esc while a request is outstanding cancels it, whatever has focus.
	if m.busy && key.Matches(msg, m.keys.Back) && m.focus != focusConfirm {
		m.abort()
		cmd := m.setStatus("cancelled")
		return m, cmd
	}

	switch m.focus {
	case focusFilter:
		return m.handleFilterKey(msg)
	case focusForm:
		return m.handleFormKey(msg)
	case focusConfirm:
		return m.handleConfirmKey(msg)
	case focusDetail:
		return m.handleDetailKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(m.cursor + 1)
	case key.Matches(msg, m.keys.Top):
		m.moveCursor(0)
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(len(m.visible) - 1)
	case key.Matches(msg, m.keys.Open):
		if _, ok := m.selected(); ok {
			m.focus = focusDetail
		}
	case key.Matches(msg, m.keys.Back):
		if m.filter.Value() != "" {
			m.filter.Reset()
			m.applyFilter()
		}
	case key.Matches(msg, m.keys.Filter):
		m.focus = focusFilter
		cmd := m.filter.Focus()
		return m, cmd
	default:
		return m.handleAction(msg)
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.focus = focusList
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.detail.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.detail.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.detail.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.detail.GotoBottom()
		return m, nil
	}

	next, cmd := m.handleAction(msg)
	if cmd != nil || next.(Model).focus != m.focus {
		return next, cmd
	}
	m = next.(Model)
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// handleAction covers the keys shared by the list and detail panes.
func (m Model) handleAction(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.abort()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.busy {
			cmd := m.setStatus("Busy, esc to cancel")
			return m, cmd
		}
		cmd := m.loadCmd(true)
		return m, cmd

	case key.Matches(msg, m.keys.Create):
		if m.busy {
			cmd := m.setStatus("Busy, esc to cancel")
			return m, cmd
		}
		cmd := m.openForm(nil)
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		s, ok := m.selected()
		if !ok {
			return m, nil
		}
		if m.busy {
			cmd := m.setStatus("Busy, esc to cancel")
			return m, cmd
		}
		cmd := m.openForm(&s)
		return m, cmd

	case key.Matches(msg, m.keys.Delete):
		if _, ok := m.selected(); !ok {
			return m, nil
		}
		if m.busy {
			cmd := m.setStatus("Busy, esc to cancel")
			return m, cmd
		}
		m.focus = focusConfirm
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		s, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.clipboard(s.Content); err != nil {
			cmd := m.setError(err)
			return m, cmd
		}
		cmd := m.setStatus("Copied!")
		return m, cmd

	case key.Matches(msg, m.keys.CopyLink):
		s, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.clipboard(m.source.Link(s.ShortID)); err != nil {
			cmd := m.setError(err)
			return m, cmd
		}
		cmd := m.setStatus("Link copied!")
		return m, cmd
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		m.filter.Blur()
		m.focus = focusList
		return m, nil
	case key.Matches(msg, m.keys.Back):
		m.filter.Blur()
		m.filter.Reset()
		m.focus = focusList
		m.applyFilter()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.closeForm()
		return m, nil
	case key.Matches(msg, m.keys.NextField):
		cmd := m.focusField(1 - m.formField)
		return m, cmd
	case key.Matches(msg, m.keys.Save):
		if m.busy {
			return m, nil
		}
		return m.submitForm()
	}

	var cmd tea.Cmd
	if m.formField == fieldName {
		m.name, cmd = m.name.Update(msg)
	} else {
		m.content, cmd = m.content.Update(msg)
	}
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.focus = focusList
	if !key.Matches(msg, m.keys.Confirm) {
		cmd := m.setStatus("Delete cancelled")
		return m, cmd
	}
	s, ok := m.selected()
	if !ok {
		return m, nil
	}
	cmd := m.deleteCmd(s)
	return m, cmd
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	name := m.name.Value()
	content := m.content.Value()

	if m.editing == "" {
		cmd := m.createCmd(name, content)
		return m, cmd
	}

	var patch model.SnippetPatch
	if name != m.before.Name {
		patch.Name = &name
	}
	if content != m.before.Content {
		patch.Content = &content
	}
	if patch.IsEmpty() {
		m.closeForm()
		cmd := m.setStatus("No changes")
		return m, cmd
	}
	cmd := m.updateCmd(m.editing, patch)
	return m, cmd
}

// Requests.

// begin marks a request as outstanding and returns the context it should
// run under and its sequence number.
func (m *Model) begin(label string) (context.Context, int) {
	ctx, cancel := context.WithCancel(context.Background())
	m.seq++
	m.busy = true
	m.busyLabel = label
	m.cancel = cancel
	return ctx, m.seq
}

// finish reports whether a result with this sequence number is current,
// and if so clears the busy state.
func (m *Model) finish(seq int) bool {
	if seq != m.seq || !m.busy {
		return false
	}
	m.busy = false
	m.busyLabel = ""
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return true
}

// abort cancels the outstanding request, if any. Its result will carry a
// stale sequence number and be dropped.
func (m *Model) abort() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.busy {
		m.seq++
		m.busy = false
		m.busyLabel = ""
	}
}

func (m *Model) loadCmd(refresh bool) tea.Cmd {
	label := "Loading"
	if refresh {
		label = "Refreshing"
	}
	ctx, seq := m.begin(label)
	src := m.source
	return tea.Batch(func() tea.Msg {
		list, err := src.List(ctx, backend.ListOptions{Refresh: refresh})
		return listedMsg{seq: seq, refresh: refresh, snippets: list, err: err}
	}, m.spinner.Tick)
}

func (m *Model) createCmd(name, content string) tea.Cmd {
	ctx, seq := m.begin("Creating")
	src := m.source
	return tea.Batch(func() tea.Msg {
		s, err := src.Create(ctx, name, content, "")
		return createdMsg{seq: seq, snippet: s, err: err}
	}, m.spinner.Tick)
}

func (m *Model) updateCmd(shortID string, patch model.SnippetPatch) tea.Cmd {
	ctx, seq := m.begin("Saving")
	src := m.source
	return tea.Batch(func() tea.Msg {
		s, err := src.Update(ctx, shortID, patch)
		return updatedMsg{seq: seq, snippet: s, err: err}
	}, m.spinner.Tick)
}

func (m *Model) deleteCmd(s model.Snippet) tea.Cmd {
	ctx, seq := m.begin("Deleting")
	src := m.source
	return tea.Batch(func() tea.Msg {
		removed, err := src.Delete(ctx, s.ShortID)
		return deletedMsg{seq: seq, shortID: s.ShortID, name: s.Name, removed: removed, err: err}
	}, m.spinner.Tick)
}

// Status line.

func (m *Model) setStatus(text string) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = false
	seq := m.statusSeq
	return tea.Tick(m.statusTTL, func(time.Time) tea.Msg {
		return statusFadeMsg{seq: seq}
	})
}

func (m *Model) setError(err error) tea.Cmd {
	cmd := m.setStatus(err.Error())
	m.statusErr = true
	return cmd
}

// List state.

func (m *Model) setSnippets(list []model.Snippet) {
	current, hadCurrent := m.selected()
	m.snippets = list
	m.applyFilter()
	if hadCurrent {
		m.selectShortID(current.ShortID)
	}
}

func (m *Model) replace(s model.Snippet) {
	for i := range m.snippets {
		if m.snippets[i].ShortID == s.ShortID {
			m.snippets[i] = s
			break
		}
	}
	m.applyFilter()
	m.selectShortID(s.ShortID)
}

func (m *Model) remove(shortID string) {
	for i := range m.snippets {
		if m.snippets[i].ShortID == shortID {
			m.snippets = append(m.snippets[:i:i], m.snippets[i+1:]...)
			break
		}
	}
	m.applyFilter()
}

// applyFilter recomputes visible from the filter input. Matching is a
// case-insensitive substring of name or content.
func (m *Model) applyFilter() {
	needle := strings.ToLower(m.filter.Value())
	m.visible = make([]int, 0, len(m.snippets))
	for i, s := range m.snippets {
		if needle == "" ||
			strings.Contains(strings.ToLower(s.Name), needle) ||
			strings.Contains(strings.ToLower(s.Content), needle) {
			m.visible = append(m.visible, i)
		}
	}
	m.moveCursor(m.cursor)
}

func (m *Model) moveCursor(i int) {
	if i >= len(m.visible) {
		i = len(m.visible) - 1
	}
	if i < 0 {
		i = 0
	}
	m.cursor = i
	m.syncDetail()
}

func (m *Model) selectShortID(shortID string) {
	for i, idx := range m.visible {
		if m.snippets[idx].ShortID == shortID {
			m.moveCursor(i)
			return
		}
	}
}

func (m Model) selected() (model.Snippet, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return model.Snippet{}, false
	}
	return m.snippets[m.visible[m.cursor]], true
}

// Form state.

func (m *Model) openForm(s *model.Snippet) tea.Cmd {
	m.focus = focusForm
	if s == nil {
		m.editing = ""
		m.before = model.Snippet{}
		m.name.SetValue("")
		m.content.SetValue("")
	} else {
		m.editing = s.ShortID
		m.before = *s
		m.name.SetValue(s.Name)
		m.content.SetValue(s.Content)
	}
	m.resize()
	return m.focusField(fieldName)
}

func (m *Model) focusField(field int) tea.Cmd {
	m.formField = field
	if field == fieldName {
		m.content.Blur()
		return m.name.Focus()
	}
	m.name.Blur()
	return m.content.Focus()
}

func (m *Model) closeForm() {
	m.focus = focusList
	m.editing = ""
	m.before = model.Snippet{}
	m.name.Blur()
	m.content.Blur()
}
