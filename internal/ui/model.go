// Package ui renders the live practice view: the detected sargam note, how
// far off it is, and the guided-session progress. The model polls the
// engine on a tick rather than subscribing, so a slow terminal can never
// back up the capture path.
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xlemi/riyaaz/internal/engine"
	"github.com/0xlemi/riyaaz/internal/notes"
	"github.com/0xlemi/riyaaz/internal/pitch"
	"github.com/0xlemi/riyaaz/internal/session"
)

// tickInterval is how often the view polls the engine.
const tickInterval = 100 * time.Millisecond

// Cents bands for coloring the note box.
const (
	inTuneCents = 10.0
	closeCents  = 25.0
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#B3541E")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777777"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	// Note box background per tuning band.
	tuneColors = map[string]string{
		"in":   "#1E8449", // green, within inTuneCents
		"near": "#B7950B", // yellow, within closeCents
		"off":  "#922B21", // red
	}
)

func noteStyle(cents float64) lipgloss.Style {
	band := "off"
	switch {
	case cents <= inTuneCents && cents >= -inTuneCents:
		band = "in"
	case cents <= closeCents && cents >= -closeCents:
		band = "near"
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(tuneColors[band])).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(1, 4).
		MarginBottom(1)
}

// targetKeys maps number keys to shuddha scale degrees.
var targetKeys = map[string]int{
	"1": 0, "2": 2, "3": 4, "4": 5, "5": 7, "6": 9, "7": 11, "8": 12,
}

// TickMsg drives the poll loop.
type TickMsg time.Time

// Model is the bubbletea state for the practice view.
type Model struct {
	eng      *engine.Engine
	exercise string

	sample    pitch.Sample
	match     notes.Match
	matched   bool
	target    int
	hasTarget bool
	accuracy  float64
	stability float64

	guided   engine.GuidedHandle
	guidedOn bool
	gState   session.State
	gTarget  int
	gStep    int
	gTotal   int

	droneOn bool
	metroOn bool
	bpm     int
	beats   int

	lastErr string
	width   int
	height  int
}

// NewModel creates the practice view over a running engine. exercise is
// the guided sequence started with the g key.
func NewModel(eng *engine.Engine, exercise string, bpm, beats int) Model {
	return Model{
		eng:      eng,
		exercise: exercise,
		bpm:      bpm,
		beats:    beats,
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update handles key presses and poll ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.poll()
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "t":
		m.reportErr(m.eng.PlayNote(0))

	case "d":
		var err error
		if m.droneOn {
			err = m.eng.StopDrone()
		} else {
			err = m.eng.StartDrone()
		}
		if err != nil {
			m.lastErr = err.Error()
		} else {
			m.droneOn = !m.droneOn
		}

	case "b":
		var err error
		if m.metroOn {
			err = m.eng.StopMetronome()
		} else {
			err = m.eng.StartMetronome(m.bpm, m.beats)
		}
		if err != nil {
			m.lastErr = err.Error()
		} else {
			m.metroOn = !m.metroOn
		}

	case "[":
		m.reportErr(m.eng.SetTonic(m.eng.Tonic() / semitoneRatio))
	case "]":
		m.reportErr(m.eng.SetTonic(m.eng.Tonic() * semitoneRatio))

	case "g":
		if !m.guidedOn {
			h, err := m.eng.StartExercise(m.exercise)
			if err != nil {
				m.lastErr = err.Error()
			} else {
				m.guided = h
				m.guidedOn = true
				m.lastErr = ""
			}
		}

	case " ":
		if m.guidedOn {
			m.reportErr(m.eng.AdvanceGuidedSession(m.guided))
		}

	case "x":
		if m.guidedOn {
			m.reportErr(m.eng.AbortGuidedSession(m.guided))
			m.guidedOn = false
		}

	case "0", "esc":
		m.eng.ClearActiveTarget()
		m.hasTarget = false

	default:
		if off, ok := targetKeys[key]; ok {
			if err := m.eng.SetActiveTarget(off, 0); err != nil {
				m.lastErr = err.Error()
			} else {
				m.target = off
				m.hasTarget = true
			}
		}
	}
	return m, nil
}

const semitoneRatio = 1.0594630943592953

func (m *Model) reportErr(err error) {
	if err != nil {
		m.lastErr = err.Error()
	}
}

// poll pulls the latest readings from the engine.
func (m *Model) poll() {
	if s, ok := m.eng.Latest(); ok {
		m.sample = s
		m.matched = false
		if s.Voiced() {
			if match, err := m.eng.Nearest(s.Frequency); err == nil {
				m.match = match
				m.matched = true
			}
		}
	}
	if m.hasTarget {
		if acc, err := m.eng.Accuracy(); err == nil {
			m.accuracy = acc
		}
		if st, err := m.eng.Stability(); err == nil {
			m.stability = st
		}
	}
	if m.guidedOn {
		state, target, step, total, err := m.eng.GuidedState(m.guided)
		if err != nil {
			m.guidedOn = false
			return
		}
		m.gState, m.gTarget, m.gStep, m.gTotal = state, target, step, total
	}
}

// View renders the practice screen.
func (m Model) View() string {
	s := titleStyle.Render("Riyaaz - Vocal Practice")
	s += "\n"
	s += m.viewNote()
	s += "\n"
	s += m.viewPractice()
	s += m.viewGuided()
	if m.lastErr != "" {
		s += "\n" + errStyle.Render(m.lastErr)
	}
	s += "\n\n"
	s += dimStyle.Render(
		"1-8 target  0 clear  g guided  space next  x stop  t tonic  d drone  b beat  [ ] retune  q quit")
	return s
}

func (m Model) viewNote() string {
	if !m.sample.Voiced() || !m.matched {
		return dimStyle.Render("Listening...") + "\n" +
			infoStyle.Render(fmt.Sprintf("Sa = %.1f Hz (%s)",
				m.eng.Tonic(), notes.WesternName(m.eng.Tonic())))
	}
	box := noteStyle(m.match.Cents).Render(notes.Name(m.match.Semitones))
	info := fmt.Sprintf("%.2f Hz | %+.1f cents | conf %.2f",
		m.sample.Frequency, m.match.Cents, m.sample.Confidence)
	return box + "\n" + infoStyle.Render(info)
}

func (m Model) viewPractice() string {
	if !m.hasTarget {
		return ""
	}
	return "\n" + infoStyle.Render(fmt.Sprintf(
		"Target %s  accuracy %.0f%%  stability %.0f%%",
		notes.Name(m.target), m.accuracy, m.stability))
}

func (m Model) viewGuided() string {
	if !m.guidedOn {
		return ""
	}
	line := fmt.Sprintf("Guided [%s] %d/%d", m.exercise, m.gStep, m.gTotal)
	switch m.gState {
	case session.Announce:
		line += fmt.Sprintf("  listen for %s", notes.Name(m.gTarget))
	case session.Listen:
		line += fmt.Sprintf("  sing %s", notes.Name(m.gTarget))
	case session.Complete:
		if results, err := m.eng.GuidedResults(m.guided); err == nil {
			hits := 0
			for _, r := range results {
				if r.Hit {
					hits++
				}
			}
			line += fmt.Sprintf("  done, %d/%d hit", hits, len(results))
		}
	}
	return "\n" + infoStyle.Render(line)
}
