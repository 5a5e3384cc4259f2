package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bandaid/debug"
	"bandaid/sequencer"
	"bandaid/settings"
	"bandaid/theme"
	"bandaid/theory"
	"bandaid/voice"
	"bandaid/widgets"
)

const (
	tempoStep = 5
	gainStep  = 0.1
	// redraw once an alert has expired
	alertRefresh = 3100 * time.Millisecond
	opTimeout    = 10 * time.Second
)

// Collaborator is the session side of the collaboration client
type Collaborator interface {
	StartSession(ctx context.Context) (string, error)
	Join(ctx context.Context, id string) error
	Leave(id string)
	Session() string
}

type inputMode int

const (
	inputNone inputMode = iota
	inputTempo
	inputJoin
)

type Model struct {
	Manager *sequencer.Manager
	Store   *settings.Store
	Persist settings.Persistence // nil disables save, load and reset
	Collab  Collaborator         // nil disables sessions
	Theme   *theme.Theme

	keys     keyMap
	help     help.Model
	input    textinput.Model
	mode     inputMode
	selected int // row in settings.Table
	quitting bool
}

type UpdateMsg struct{}

// opMsg reports a finished background operation
type opMsg struct {
	done string // shown on success
	err  error
}

type refreshMsg struct{}

func NewModel(manager *sequencer.Manager, persist settings.Persistence, collab Collaborator, th *theme.Theme) Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 40
	ti.Width = 40
	return Model{
		Manager: manager,
		Store:   manager.Store(),
		Persist: persist,
		Collab:  collab,
		Theme:   th,
		keys:    defaultKeys(),
		help:    help.New(),
		input:   ti,
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Manager)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case opMsg:
		if msg.err != nil {
			debug.Log("tui", "%v", msg.err)
			m.Manager.Alerts.Fail(msg.err)
		} else if msg.done != "" {
			m.Manager.Alerts.Notify(msg.done)
		}
		return m, refreshLater()

	case refreshMsg:
	}
	return m, nil
}

func refreshLater() tea.Cmd {
	return tea.Tick(alertRefresh, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	st := m.Store

	for id, b := range k.Instruments {
		if key.Matches(msg, b) {
			m.Manager.ToggleInstrument(id)
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		m.Manager.Stop()
		return m, tea.Quit

	case key.Matches(msg, k.Play):
		m.Manager.TogglePlay()
		if _, ok := m.Manager.Alerts.Current(); ok {
			return m, refreshLater()
		}

	case key.Matches(msg, k.OneLoop):
		st.ToggleBeats(settings.OneLoop)
	case key.Matches(msg, k.TwoLoops):
		st.ToggleBeats(settings.TwoLoops)
	case key.Matches(msg, k.Dembow):
		st.ToggleBeats(settings.Dembow)
	case key.Matches(msg, k.BeatUp):
		st.SetBeatGain(st.Snapshot().BeatGain + gainStep)
	case key.Matches(msg, k.BeatDown):
		st.SetBeatGain(st.Snapshot().BeatGain - gainStep)

	case key.Matches(msg, k.TempoUp):
		st.NudgeBPM(tempoStep)
	case key.Matches(msg, k.TempoDown):
		st.NudgeBPM(-tempoStep)
	case key.Matches(msg, k.TempoEnter):
		return m.startInput(inputTempo, fmt.Sprint(st.Snapshot().BPM))
	case key.Matches(msg, k.KeyDown):
		st.Transpose(-1)
	case key.Matches(msg, k.KeyUp):
		st.Transpose(1)
	case key.Matches(msg, k.ScaleDown):
		st.StepScale(-1)
	case key.Matches(msg, k.ScaleUp):
		st.StepScale(1)

	case key.Matches(msg, k.Up):
		m.selected = (m.selected + len(settings.Table) - 1) % len(settings.Table)
	case key.Matches(msg, k.Down):
		m.selected = (m.selected + 1) % len(settings.Table)
	case key.Matches(msg, k.GainDown, k.GainUp):
		delta := gainStep
		if key.Matches(msg, k.GainDown) {
			delta = -gainStep
		}
		id := m.selectedID()
		if cfg, ok := st.Snapshot().ActiveInstruments[id]; ok {
			st.SetInstrumentGain(id, cfg.Gain+delta)
		}
	case key.Matches(msg, k.Octave):
		id := m.selectedID()
		if cfg, ok := st.Snapshot().ActiveInstruments[id]; ok {
			st.SetInstrumentOctave(id, cfg.Octave.Next())
		}
	case key.Matches(msg, k.Pattern):
		if cfg, ok := st.Snapshot().ActiveInstruments[settings.Arpeggio]; ok {
			st.SetInstrumentPattern(settings.Arpeggio, cfg.Pattern.Next())
		}
	case key.Matches(msg, k.Subdivision):
		st.SetSubdivision(st.Snapshot().ArpeggioSubdivision.Next())

	case key.Matches(msg, k.Save):
		return m, m.persist("Saving settings...", func(ctx context.Context) (string, error) {
			return "Settings saved successfully!", st.SaveTo(ctx, m.Persist)
		})
	case key.Matches(msg, k.Load):
		return m, m.persist("Loading settings...", func(ctx context.Context) (string, error) {
			_, err := st.LoadFrom(ctx, m.Persist)
			return "Settings loaded", err
		})
	case key.Matches(msg, k.Reset):
		return m, m.persist("Resetting settings...", func(ctx context.Context) (string, error) {
			_, err := st.ResetWith(ctx, m.Persist)
			return "Settings reset successfully!", err
		})

	case key.Matches(msg, k.Share):
		return m, m.share()
	case key.Matches(msg, k.Join):
		if m.Collab != nil {
			return m.startInput(inputJoin, "")
		}
	case key.Matches(msg, k.Leave):
		if m.Collab != nil && m.Collab.Session() != "" {
			m.Collab.Leave(m.Collab.Session())
			m.Manager.Alerts.Notify("Left collaboration")
			return m, refreshLater()
		}

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) selectedID() string {
	return settings.Table[m.selected].ID
}

func (m Model) startInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		m.input.Reset()
		switch mode {
		case inputTempo:
			m.Store.SetBPMText(value)
		case inputJoin:
			return m, m.join(value)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// persist runs op in the background with the pending message showing
func (m Model) persist(pending string, op func(ctx context.Context) (string, error)) tea.Cmd {
	if m.Persist == nil {
		m.Manager.Alerts.Update("No settings backend configured", sequencer.Warning, alertRefresh)
		return refreshLater()
	}
	m.Manager.Alerts.Notify(pending)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		done, err := op(ctx)
		return opMsg{done: done, err: err}
	}
}

// share starts a session, joins it and publishes the current settings so
// later joiners start from them
func (m Model) share() tea.Cmd {
	if m.Collab == nil {
		return nil
	}
	c, st := m.Collab, m.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		id, err := c.StartSession(ctx)
		if err != nil {
			return opMsg{err: err}
		}
		if err := c.Join(ctx, id); err != nil {
			return opMsg{err: err}
		}
		st.Update(settings.Full(*st.Snapshot()))
		return opMsg{done: "Jam started"}
	}
}

func (m Model) join(id string) tea.Cmd {
	c := m.Collab
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := c.Join(ctx, id); err != nil {
			return opMsg{err: err}
		}
		return opMsg{done: "Joined " + id}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.Theme
	s := m.Store.Snapshot()
	state := m.Manager.GetState()

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent()).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(th.FG())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor())

	var out strings.Builder
	out.WriteString("\n")

	playState := "STOP"
	if state.Playing {
		playState = "PLAY"
	}
	sounding := theory.TransposedScale(s.Scale, s.Transpose)
	header := fmt.Sprintf("BandAid  %s  %3dbpm  key %s%+d (%s)", playState, s.BPM, s.Scale, s.Transpose, sounding)
	if state.Playing {
		header += fmt.Sprintf("  bar %d beat %d", state.Bar+1, state.Beat+1)
	}
	out.WriteString(headerStyle.Render(header))
	out.WriteString("\n\n")

	out.WriteString(widgets.RenderChordStrip(th, theory.ChordNames(s.Scale, s.Transpose), state.ChordIndex))
	out.WriteString("\n\n")

	out.WriteString(labelStyle.Render("Instruments"))
	out.WriteString("\n")
	for i, in := range settings.Table {
		cursor := " "
		if i == m.selected {
			cursor = cursorStyle.Render(string(th.Symbols.Cursor))
		}
		cfg, on := s.ActiveInstruments[in.ID]
		line := fmt.Sprintf("%s %s %s", cursor, widgets.RenderToggle(th, on, fmt.Sprintf("%-9s", in.Label)), dimStyle.Render(in.Key))
		if on {
			line += "  " + widgets.RenderGainBar(th, cfg.Gain, settings.MaxGain, 12)
			line += "  " + labelStyle.Render(fmt.Sprintf("%-7s", cfg.Octave))
			if in.ID == settings.Arpeggio {
				line += labelStyle.Render(fmt.Sprintf(" %s %s", cfg.Pattern, s.ArpeggioSubdivision))
			}
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	out.WriteString("\n")

	out.WriteString(widgets.RenderToggle(th, s.EnableBeats, "Beats "))
	out.WriteString(labelStyle.Render(fmt.Sprintf(" %-7s ", s.BeatMode)))
	out.WriteString(widgets.RenderGainBar(th, s.BeatGain, settings.MaxGain, 12))
	out.WriteString("\n")
	out.WriteString(m.viewBeats(s, state))
	out.WriteString("\n")

	if m.Collab != nil {
		if id := m.Collab.Session(); id != "" {
			out.WriteString(labelStyle.Render("Jam " + id))
		} else {
			out.WriteString(dimStyle.Render("Not sharing"))
		}
		out.WriteString("\n")
	}

	switch m.mode {
	case inputTempo:
		out.WriteString(labelStyle.Render("Tempo: ") + m.input.View() + "\n")
	case inputJoin:
		out.WriteString(labelStyle.Render("Collaboration ID: ") + m.input.View() + "\n")
	default:
		out.WriteString(m.viewAlert())
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(m.help.View(m.keys))
	return out.String()
}

func (m Model) viewBeats(s *settings.Settings, state sequencer.State) string {
	playhead := -1
	if state.Playing && s.EnableBeats {
		playhead = state.Step
	}
	pattern := sequencer.BeatPattern(s.BeatMode)
	dim := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	var rows []string
	for _, piece := range []voice.Piece{voice.Kick, voice.Snare, voice.HiHat} {
		steps := make([]bool, sequencer.DrumSteps)
		for i, hits := range pattern {
			for _, h := range hits {
				if h.Piece == piece {
					steps[i] = true
				}
			}
		}
		rows = append(rows, "  "+dim.Render(fmt.Sprintf("%-6s", piece))+widgets.RenderStepRow(m.Theme, steps, playhead))
	}
	return strings.Join(rows, "\n")
}

func (m Model) viewAlert() string {
	a, ok := m.Manager.Alerts.Current()
	if !ok {
		return ""
	}
	color := m.Theme.FG()
	switch a.Type {
	case sequencer.Warning:
		color = m.Theme.Warning()
	case sequencer.Error:
		color = m.Theme.Active()
	}
	return lipgloss.NewStyle().Foreground(color).Render(a.Message)
}
