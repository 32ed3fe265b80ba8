package progress

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gookit/color"
)

const (
	barWidth    = 30
	nameColumns = 32
)

// TeaRenderer draws one live bar per in-flight transfer and prints a
// permanent line above the bars as each transfer finishes.
type TeaRenderer struct {
	out   io.Writer
	total int
}

func NewTeaRenderer(out io.Writer, total int) *TeaRenderer {
	return &TeaRenderer{out: out, total: total}
}

type eventMsg Event

type drainedMsg struct{}

func (t *TeaRenderer) Render(events <-chan Event) {
	p := tea.NewProgram(
		newBarsModel(t.total),
		tea.WithOutput(t.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	go func() {
		for e := range events {
			p.Send(eventMsg(e))
		}
		p.Send(drainedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		// The display is best effort; keep consuming so publishers never block.
		for e := range events {
			if e.Kind == Finished && e.Err != nil {
				fmt.Fprintln(t.out, FailureLine(e))
			}
		}
	}
}

type barRow struct {
	name  string
	done  int64
	total int64
}

type barsModel struct {
	total    int
	finished int
	failed   int
	rows     map[int]*barRow
	bar      progress.Model
}

func newBarsModel(total int) *barsModel {
	return &barsModel{
		total: total,
		rows:  make(map[int]*barRow),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
}

func (m *barsModel) Init() tea.Cmd { return nil }

func (m *barsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case drainedMsg:
		return m, tea.Quit
	case eventMsg:
		return m, m.apply(Event(msg))
	}
	return m, nil
}

func (m *barsModel) apply(e Event) tea.Cmd {
	switch e.Kind {
	case Started:
		m.rows[e.TaskID] = &barRow{name: e.Name, total: e.Total}
	case Advanced, Resized:
		row, ok := m.rows[e.TaskID]
		if !ok {
			row = &barRow{name: e.Name}
			m.rows[e.TaskID] = row
		}
		row.done = e.Done
		row.total = e.Total
	case Finished:
		delete(m.rows, e.TaskID)
		m.finished++
		if e.Err != nil {
			m.failed++
			return tea.Println(FailureLine(e))
		}
		return tea.Println(color.New(color.FgGreen).Render("✓ ") +
			fmt.Sprintf("%s (%s)", e.Name, HumanBytes(e.Done)))
	}
	return nil
}

func (m *barsModel) View() string {
	var b strings.Builder
	ids := make([]int, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		row := m.rows[id]
		b.WriteString(padName(row.name))
		b.WriteString(" ")
		if row.total > 0 {
			pct := float64(row.done) / float64(row.total)
			if pct > 1 {
				pct = 1
			}
			b.WriteString(m.bar.ViewAs(pct))
			fmt.Fprintf(&b, " %s/%s", HumanBytes(min(row.done, row.total)), HumanBytes(row.total))
		} else {
			fmt.Fprintf(&b, "%s", HumanBytes(row.done))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d/%d done", m.finished, m.total)
	if m.failed > 0 {
		fmt.Fprintf(&b, ", %d failed", m.failed)
	}
	b.WriteString("\n")
	return b.String()
}

func padName(name string) string {
	r := []rune(name)
	if len(r) > nameColumns {
		return string(r[:nameColumns-1]) + "…"
	}
	return name + strings.Repeat(" ", nameColumns-len(r))
}
