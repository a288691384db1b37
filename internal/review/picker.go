// Package review provides the interactive terminal picker used by
// `subwatch apply --pick` to choose which opportunities to accept.
package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/subwatch/subwatch/internal/model"
)

// Lines per opportunity in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(1, 0, 1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	checkedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)
)

type pickerModel struct {
	jobs     []model.JobRecord
	checked  map[int]bool
	cursor   int
	width    int
	height   int
	ready    bool
	listView viewport.Model

	view           viewState
	detailViewport viewport.Model

	confirmed bool
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m pickerModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.confirmed = false
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case " ", "x":
		if len(m.jobs) > 0 {
			m.checked[m.cursor] = !m.checked[m.cursor]
			m.recalcContent()
		}
		return m, nil
	case "a":
		for i := range m.jobs {
			m.checked[i] = true
		}
		m.recalcContent()
		return m, nil
	case "n":
		m.checked = make(map[int]bool)
		m.recalcContent()
		return m, nil
	case "enter":
		return m.openDetailView()
	case "y":
		m.confirmed = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.listView, cmd = m.listView.Update(msg)
	return m, cmd
}

func (m pickerModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.confirmed = false
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case " ", "x":
		m.checked[m.cursor] = !m.checked[m.cursor]
		m.detailViewport.SetContent(m.renderDetail())
		m.recalcContent()
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *pickerModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.jobs)-1, 0))
}

func (m *pickerModel) ensureCursorVisible() {
	cursorTop := m.cursor * itemHeight
	cursorBottom := cursorTop + itemHeight - 1

	if cursorTop < m.listView.YOffset {
		m.listView.SetYOffset(cursorTop)
	} else if cursorBottom >= m.listView.YOffset+m.listView.Height {
		m.listView.SetYOffset(cursorBottom - m.listView.Height + 1)
	}
}

func (m pickerModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.jobs) == 0 {
		return m, nil
	}
	m.view = viewDetail
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *pickerModel) recalcLayout() {
	// Title bar (3 lines with padding) + border (2) + status bar (1).
	height := max(m.height-6, 5)
	width := max(m.width-4, 20)

	if !m.ready {
		m.listView = viewport.New(width, height)
		m.ready = true
	} else {
		m.listView.Width = width
		m.listView.Height = height
	}
	m.recalcContent()
}

func (m *pickerModel) recalcContent() {
	m.listView.SetContent(renderItems(m.jobs, m.cursor, m.checked))
}

func (m pickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m pickerModel) viewList() string {
	title := titleBarStyle.Render(fmt.Sprintf("Review opportunities — %d of %d selected", m.selectedCount(), len(m.jobs)))
	pane := borderStyle.Width(m.listView.Width).Render(m.listView.View())
	status := statusBarStyle.Width(m.width).Render(" ↑/↓ cursor  space toggle  a all  n none  enter detail  y accept selected  q cancel")
	return title + "\n" + pane + "\n" + status
}

func (m pickerModel) viewDetail() string {
	title := detailTitleStyle.Render("Opportunity Details")
	content := borderStyle.Width(m.width - 2).Render(m.detailViewport.View())
	status := statusBarStyle.Width(m.width).Render(" space toggle  esc/backspace back  ↑/↓ scroll  q cancel")
	return title + "\n" + content + "\n" + status
}

func (m pickerModel) renderDetail() string {
	j := m.jobs[m.cursor]
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", j.Title)
	addField("Location", j.LocationName)
	addField("Job ID", j.ID)

	b.WriteByte('\n')
	addField("Start", j.StartDate.Format("Mon, Jan 2 2006"))
	addField("End", j.EndDate.Format("Mon, Jan 2 2006"))
	addField("Duration", fmt.Sprintf("%d day(s)", j.DurationDays()))
	addField("Time of Day", j.TimeOfDay)
	if j.LongTerm {
		addField("Long-term", "yes")
	}

	if len(j.Raw) > 0 {
		b.WriteByte('\n')
		keys := make([]string, 0, len(j.Raw))
		for k := range j.Raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addField(k, fmt.Sprintf("%v", j.Raw[k]))
		}
	}

	b.WriteByte('\n')
	if m.checked[m.cursor] {
		b.WriteString(checkedStyle.Render("  ✓ selected for acceptance") + "\n")
	} else {
		b.WriteString(itemSubtitleStyle.Render("  not selected") + "\n")
	}

	return b.String()
}

func (m pickerModel) selectedCount() int {
	n := 0
	for _, v := range m.checked {
		if v {
			n++
		}
	}
	return n
}

func renderItems(jobs []model.JobRecord, cursor int, checked map[int]bool) string {
	if len(jobs) == 0 {
		return "  (no opportunities)"
	}

	var b strings.Builder
	for i, j := range jobs {
		isSelected := i == cursor

		titleSt := itemTitleStyle
		subtitleSt := itemSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		mark := "[ ] "
		if checked[i] {
			mark = checkedStyle.Render("[✓]") + " "
		}

		b.WriteString(prefix)
		b.WriteString(mark)
		b.WriteString(titleSt.Render(j.Title))
		b.WriteByte('\n')

		dates := j.StartDate.Format("Jan 2")
		if !j.EndDate.Equal(j.StartDate) {
			dates += " – " + j.EndDate.Format("Jan 2")
		}
		b.WriteString(prefix)
		b.WriteString("    ")
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s", j.LocationName, dates)))
		b.WriteByte('\n')

		if i < len(jobs)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RunOpportunityPicker shows an interactive multi-select list of
// opportunities. Returns the selected records, or nil if the user
// cancelled without confirming.
func RunOpportunityPicker(jobs []model.JobRecord) ([]model.JobRecord, error) {
	sorted := make([]model.JobRecord, len(jobs))
	copy(sorted, jobs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})

	m := pickerModel{
		jobs:    sorted,
		checked: make(map[int]bool),
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return nil, err
	}

	final := result.(pickerModel)
	if !final.confirmed {
		return nil, nil
	}

	var picked []model.JobRecord
	for i, j := range final.jobs {
		if final.checked[i] {
			picked = append(picked, j)
		}
	}
	return picked, nil
}
