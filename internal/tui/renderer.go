package tui

import (
	"slices"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

// Renderer implements intake.Renderer by recording what should be on screen.
// The bubbletea model reads a Snapshot after every change notification.
type Renderer struct {
	mu      sync.Mutex
	state   Snapshot
	changed chan struct{}
}

// Snapshot is the screen state produced by the widget.
type Snapshot struct {
	Visible       map[intake.Panel]bool
	Items         []intake.ListItem
	SubmitEnabled bool
	DriveURL      string
	Filename      string
	ErrorMessage  string
	Alerts        []string
}

// Panel returns the visible panel, preferring the latest state in the cycle.
func (s Snapshot) Panel() intake.Panel {
	for _, p := range []intake.Panel{intake.PanelProcessing, intake.PanelResult, intake.PanelError} {
		if s.Visible[p] {
			return p
		}
	}
	return intake.PanelIntake
}

func NewRenderer() *Renderer {
	return &Renderer{
		state:   Snapshot{Visible: map[intake.Panel]bool{}},
		changed: make(chan struct{}, 1),
	}
}

func (r *Renderer) update(fn func(s *Snapshot)) {
	r.mu.Lock()
	fn(&r.state)
	r.mu.Unlock()
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func (r *Renderer) SetPanelVisible(p intake.Panel, visible bool) {
	r.update(func(s *Snapshot) { s.Visible[p] = visible })
}

func (r *Renderer) RenderList(items []intake.ListItem) {
	r.update(func(s *Snapshot) { s.Items = slices.Clone(items) })
}

func (r *Renderer) SetSubmitEnabled(enabled bool) {
	r.update(func(s *Snapshot) { s.SubmitEnabled = enabled })
}

func (r *Renderer) ShowResult(driveURL, filename string) {
	r.update(func(s *Snapshot) { s.DriveURL, s.Filename = driveURL, filename })
}

func (r *Renderer) ShowError(message string) {
	r.update(func(s *Snapshot) { s.ErrorMessage = message })
}

// Alert queues a message; the model shows it until the next key press.
func (r *Renderer) Alert(message string) {
	r.update(func(s *Snapshot) { s.Alerts = append(s.Alerts, message) })
}

// Snapshot returns a copy of the current state.
func (r *Renderer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.state
	out.Visible = make(map[intake.Panel]bool, len(r.state.Visible))
	for k, v := range r.state.Visible {
		out.Visible[k] = v
	}
	out.Items = slices.Clone(r.state.Items)
	out.Alerts = slices.Clone(r.state.Alerts)
	return out
}

// ClearAlerts drops acknowledged alerts.
func (r *Renderer) ClearAlerts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Alerts = nil
}

type changedMsg struct{}

// waitForChange blocks until the widget touched the renderer.
func (r *Renderer) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-r.changed
		return changedMsg{}
	}
}
