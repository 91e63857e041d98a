// Package tui is a terminal front end for a speaking test. Questions are
// shown on screen and answers are typed.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"ielts-speaking/internal/speaking"
	"ielts-speaking/internal/storage"
)

// Controller is the part of speaking.Controller the model drives.
type Controller interface {
	Start()
	StopRecording()
	Retry()
	Finish()
	Snapshot() speaking.Snapshot
}

// Input receives typed answers; *textio.Keyboard implements it.
type Input interface {
	Type(text string) bool
	Draft(text string) bool
	Listening() bool
}

// UpdateMsg carries a controller notification into the program.
type UpdateMsg speaking.Update

type savedMsg struct {
	id  string
	err error
}

type Model struct {
	ctrl    Controller
	input   Input
	archive *storage.Archive

	textInput textinput.Model
	spinner   spinner.Model

	status     speaking.Status
	question   string
	cueCard    *speaking.CueCard
	timer      *speaking.TimerState
	transcript string
	answered   []speaking.Turn
	alert      string
	recording  bool
	busy       bool
	finished   bool
	evaluation *speaking.Evaluation
	savedAs    string
	width      int
}

// New builds the model. archive may be nil to skip saving results.
func New(ctrl Controller, input Input, archive *storage.Archive) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer and press enter..."
	ti.CharLimit = 2000
	ti.Width = 70
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctrl:      ctrl,
		input:     input,
		archive:   archive,
		textInput: ti,
		spinner:   sp,
		busy:      true,
	}
}

func (m Model) Init() tea.Cmd {
	ctrl := m.ctrl
	return tea.Batch(textinput.Blink, m.spinner.Tick, func() tea.Msg {
		ctrl.Start()
		return nil
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textInput.Width = min(max(msg.Width-6, 20), 100)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case UpdateMsg:
		return m.apply(speaking.Update(msg))

	case savedMsg:
		if msg.err != nil {
			m.alert = "Could not save the report: " + msg.err.Error()
		} else {
			m.savedAs = msg.id
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "ctrl+r":
		m.alert = ""
		m.ctrl.Retry()
		return m, nil
	case "ctrl+f":
		m.ctrl.Finish()
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.textInput.Value())
		m.textInput.Reset()
		switch {
		case text != "" && m.input.Listening():
			if !m.input.Type(text) {
				m.alert = "Your answer was not received. Press enter on an empty line to finish this answer."
			}
		case text == "" && m.recording:
			m.ctrl.StopRecording()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	if m.input.Listening() {
		m.input.Draft(m.textInput.Value())
	}
	return m, cmd
}

func (m Model) apply(u speaking.Update) (tea.Model, tea.Cmd) {
	switch u.Kind {
	case speaking.UpdateStatus:
		m.status = u.Status
	case speaking.UpdateQuestion:
		m.question = u.Text
		m.transcript = ""
		m.alert = ""
	case speaking.UpdateCueCard:
		m.cueCard = u.CueCard
		m.question = ""
	case speaking.UpdateRecording:
		m.recording = true
		m.busy = false
		m.timer = &speaking.TimerState{Duration: u.Timer.Duration, TimeLeft: u.Timer.TimeLeft}
	case speaking.UpdateTimer:
		t := u.Timer
		m.timer = &t
	case speaking.UpdateTranscript:
		m.transcript = u.Text
	case speaking.UpdateAnswer:
		m.recording = false
		m.busy = true
		m.timer = nil
		m.transcript = ""
		m.answered = append(m.answered, speaking.Turn{Question: m.question, Answer: u.Text})
		m.cueCard = nil
	case speaking.UpdateAlert:
		m.alert = u.Text
		m.busy = false
	case speaking.UpdateFinished:
		m.finished = true
		m.recording = false
		m.busy = true
		m.timer = nil
	case speaking.UpdateEvaluation:
		m.evaluation = u.Evaluation
		m.busy = false
		return m, m.save()
	case speaking.UpdateReset:
		m = m.reset()
	}
	return m, nil
}

func (m Model) reset() Model {
	m.question = ""
	m.cueCard = nil
	m.timer = nil
	m.transcript = ""
	m.answered = nil
	m.recording = false
	m.busy = false
	m.finished = false
	m.evaluation = nil
	m.status = speaking.Status{Title: "Test stopped", Instruction: "Press ctrl+c to quit."}
	return m
}

// save archives the finished test when an archive is configured.
func (m Model) save() tea.Cmd {
	if m.archive == nil {
		return nil
	}
	archive, snap := m.archive, m.ctrl.Snapshot()
	return func() tea.Msg {
		result := storage.NewResult(snap.Session)
		err := archive.SaveResult(result)
		return savedMsg{id: result.TestID, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString("\n  " + titleStyle.Render(orDefault(m.status.Title, "IELTS Speaking Practice")))
	if m.status.Instruction != "" {
		b.WriteString("\n  " + instructionStyle.Render(m.status.Instruction))
	}
	b.WriteString("\n\n")

	for _, t := range m.answered {
		if t.Question == "" {
			continue
		}
		b.WriteString(answeredStyle.Render(fmt.Sprintf("  Q: %s\n  A: %s", t.Question, t.Answer)))
		b.WriteString("\n")
	}
	if len(m.answered) > 0 {
		b.WriteString("\n")
	}

	if m.cueCard != nil {
		b.WriteString(renderCueCard(m.cueCard))
		b.WriteString("\n\n")
	}
	if m.question != "" && !m.finished {
		b.WriteString(questionStyle.Render(m.question))
		b.WriteString("\n\n")
	}

	if m.timer != nil {
		style := timerStyle
		if m.timer.TimeLeft <= 10 {
			style = timerLowStyle
		}
		b.WriteString("  " + style.Render(fmt.Sprintf("⏱ %d:%02d", m.timer.TimeLeft/60, m.timer.TimeLeft%60)))
		b.WriteString("\n\n")
	}

	if m.recording {
		if m.transcript != "" {
			b.WriteString(transcriptStyle.Render(m.transcript))
			b.WriteString("\n\n")
		}
		b.WriteString("  " + m.textInput.View())
		b.WriteString("\n\n")
	} else if m.busy {
		b.WriteString("  " + m.spinner.View() + " " + instructionStyle.Render("Please wait..."))
		b.WriteString("\n\n")
	}

	if m.evaluation != nil {
		b.WriteString(renderEvaluation(m.evaluation))
		b.WriteString("\n")
		if m.savedAs != "" {
			b.WriteString("  " + helpStyle.Render("Saved as "+m.savedAs))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.alert != "" {
		b.WriteString("  " + alertStyle.Render(m.alert))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("  enter: submit line / stop answer  ctrl+r: retry  ctrl+f: finish  ctrl+c: quit"))
	b.WriteString("\n")
	return b.String()
}

func renderCueCard(card *speaking.CueCard) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(card.Topic))
	b.WriteString("\nYou should say:")
	for _, p := range card.CuePoints {
		b.WriteString("\n  • " + p)
	}
	return cueCardStyle.Render(b.String())
}

func renderEvaluation(ev *speaking.Evaluation) string {
	if ev.Report == nil {
		return "  " + alertStyle.Render(ev.Error)
	}
	r := ev.Report
	var b strings.Builder
	b.WriteString("  " + bandStyle.Render(fmt.Sprintf("Overall band %.1f", r.OverallScore)))
	b.WriteString("\n")
	for _, c := range r.Criteria() {
		b.WriteString("\n  " + criterionStyle.Render(fmt.Sprintf("%s: %.1f", c.Name, c.Score)) + "\n")
		b.WriteString("  " + instructionStyle.Render(c.Feedback) + "\n")
	}
	if r.Summary != "" {
		b.WriteString("\n  " + r.Summary + "\n")
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
