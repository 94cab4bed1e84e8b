package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JeanRibes/seqloop/music"
	"github.com/JeanRibes/seqloop/mutes"
	"github.com/JeanRibes/seqloop/shared"
	"github.com/JeanRibes/seqloop/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff")).Bold(true)
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	armedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	cursorStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	refreshEvery = 50 * time.Millisecond
)

type model struct {
	tr       *transport.Transport
	set      *music.Screenset
	groups   *mutes.MuteGroups
	SinkUI   chan shared.Message
	SinkLoop chan shared.Message

	cursor int
	last   string
	err    string
}

type uiMsg shared.Message
type refreshMsg struct{}

func listenForUI(sink chan shared.Message) tea.Cmd {
	return func() tea.Msg {
		return uiMsg(<-sink)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listenForUI(m.SinkUI), refresh())
}

func (m model) send(msg shared.Message) {
	select {
	case m.SinkLoop <- msg:
	default:
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c", "x", "esc":
			m.send(shared.Message{Type: shared.Quit})
			return m, tea.Quit
		case "h", "left":
			m.cursor = (m.cursor + music.SEQS_IN_SET - music.SET_ROWS) % music.SEQS_IN_SET
		case "l", "right":
			m.cursor = (m.cursor + music.SET_ROWS) % music.SEQS_IN_SET
		case "k", "up":
			m.cursor = (m.cursor + music.SEQS_IN_SET - 1) % music.SEQS_IN_SET
		case "j", "down":
			m.cursor = (m.cursor + 1) % music.SEQS_IN_SET
		case " ":
			m.send(shared.Message{Type: shared.PlayPause})
		case "s":
			m.send(shared.Message{Type: shared.Stop})
		case "r":
			m.send(shared.Message{Type: shared.Record, Boolean: !m.tr.IsRecording()})
		case "p":
			m.send(shared.Message{Type: shared.Panic})
		case "enter", "t":
			m.send(shared.Message{Type: shared.PatternToggle, Number: m.cursor})
		case "q":
			m.send(shared.Message{Type: shared.PatternQueue, Number: m.cursor})
		case "o":
			m.send(shared.Message{Type: shared.PatternOneShot, Number: m.cursor})
		case "a":
			armed := false
			if p := m.set.Pattern(m.cursor); p != nil {
				armed = p.IsArmed()
			}
			m.send(shared.Message{Type: shared.PatternArm, Number: m.cursor, Boolean: !armed})
		case "c":
			m.send(shared.Message{Type: shared.PatternClear, Number: m.cursor})
		case "Q":
			m.send(shared.Message{Type: shared.Quantize, Number: m.cursor})
		case "+", "=":
			m.send(shared.Message{Type: shared.BPM, Number: int(m.tr.BPM()) + 1})
		case "-", "_":
			m.send(shared.Message{Type: shared.BPM, Number: int(m.tr.BPM()) - 1})
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			m.send(shared.Message{Type: shared.MuteGroup, Number: int(key[0] - '1')})
		}
	case uiMsg:
		switch msg.Type {
		case shared.Error:
			m.err = msg.String
		case shared.PortChanged:
			state := "gone"
			if msg.Boolean {
				state = "connected"
			}
			m.last = fmt.Sprintf("port %q %s", msg.String, state)
		default:
			m.last = fmt.Sprintf("%s %d", msg.Type, msg.Number)
		}
		return m, listenForUI(m.SinkUI)
	case refreshMsg:
		return m, refresh()
	}
	return m, nil
}

func (m model) cell(slot int) string {
	p := m.set.Pattern(slot)
	if p == nil {
		return dimStyle.Render(" ·· ")
	}
	st := p.Stats()
	label := fmt.Sprintf(" %02d ", slot)
	style := dimStyle
	switch {
	case st.Queued:
		style = queuedStyle
	case st.Playing:
		style = activeStyle
	case st.Armed:
		style = armedStyle
	}
	if slot == m.cursor {
		style = style.Inherit(cursorStyle)
	}
	return style.Render(label)
}

func (m model) View() string {
	var b strings.Builder
	for row := 0; row < music.SET_ROWS; row++ {
		for col := 0; col < music.SET_COLUMNS; col++ {
			b.WriteString(m.cell(row + music.SET_ROWS*col))
		}
		b.WriteByte('\n')
	}

	state := "stop"
	if m.tr.IsRunning() {
		state = "play"
	}
	if m.tr.IsRecording() {
		state += " rec"
	}
	group := "-"
	if g := m.groups.Selected(); g != mutes.NoGroupSelected {
		group = fmt.Sprint(g + 1)
	}
	b.WriteString(statusStyle.Render(fmt.Sprintf("\n%-8s %3.0fbpm  tick %6d  held %2d  group %s",
		state, m.tr.BPM(), m.tr.Tick(), m.tr.Sounding(), group)))
	b.WriteByte('\n')

	if p := m.set.Pattern(m.cursor); p != nil {
		st := p.Stats()
		b.WriteString(statusStyle.Render(fmt.Sprintf("%s  len %d  events %d  notes %d  dangling %d",
			st.Name, st.Length, st.Events, st.Notes, st.Dangling)))
	}
	b.WriteByte('\n')
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err))
	} else {
		b.WriteString(dimStyle.Render(m.last))
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("hjkl:move  enter:toggle  q:queue  o:oneshot  a:arm  c:clear  Q:quantize  1-9:mute group"))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render("space:play/pause  s:stop  r:record  p:panic  +/-:tempo  x:quit"))
	b.WriteByte('\n')
	return b.String()
}

func runTUI(ctx context.Context, tr *transport.Transport, set *music.Screenset, groups *mutes.MuteGroups, SinkUI, SinkLoop chan shared.Message) error {
	m := model{tr: tr, set: set, groups: groups, SinkUI: SinkUI, SinkLoop: SinkLoop}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
