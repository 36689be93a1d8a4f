package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// IndicatorMsg shows or hides the overlay.
type IndicatorMsg struct {
	Visible bool
}

// OverlayModel is the full screen "pointer is on another machine" indicator.
type OverlayModel struct {
	visible bool
	since   time.Time
	width   int
	height  int
	spinner spinner.Model
	now     func() time.Time
}

// NewOverlayModel creates a hidden overlay
func NewOverlayModel() *OverlayModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &OverlayModel{spinner: s, now: time.Now}
}

// Visible reports whether the indicator is shown
func (m *OverlayModel) Visible() bool {
	return m.visible
}

// Init implements tea.Model
func (m *OverlayModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m *OverlayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case IndicatorMsg:
		if msg.Visible && !m.visible {
			m.since = m.now()
		}
		m.visible = msg.Visible
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m *OverlayModel) View() string {
	var body string
	if m.visible {
		elapsed := m.now().Sub(m.since).Truncate(time.Second)
		body = BoxStyle.
			BorderForeground(ColorRemote).
			Render(lipgloss.JoinVertical(lipgloss.Center,
				m.spinner.View()+" "+BoldStyle.Foreground(ColorRemote).Render("Pointer is on another machine"),
				SubtleStyle.Render("for "+elapsed.String()),
			))
	} else {
		body = SubtleStyle.Render("pointer is here")
	}
	body = lipgloss.JoinVertical(lipgloss.Center, body, "", FormatControl("q", "quit overlay"))

	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

// IndicatorSender forwards indicator requests into a running program. It is
// shaped for the IPC server's indicator handler.
func IndicatorSender(p *tea.Program) func(visible bool) error {
	return func(visible bool) error {
		p.Send(IndicatorMsg{Visible: visible})
		return nil
	}
}
