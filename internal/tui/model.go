package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

type keyMap struct {
	Pick   key.Binding
	Remove key.Binding
	Submit key.Binding
	Reset  key.Binding
	Up     key.Binding
	Down   key.Binding
	Back   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Pick:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add file")),
	Remove: key.NewBinding(key.WithKeys("x", "delete", "backspace"), key.WithHelp("x", "remove")),
	Submit: key.NewBinding(key.WithKeys("s", "enter"), key.WithHelp("s", "submit")),
	Reset:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "start over")),
	Up:     key.NewBinding(key.WithKeys("up", "k")),
	Down:   key.NewBinding(key.WithKeys("down", "j")),
	Back:   key.NewBinding(key.WithKeys("esc")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type submitDoneMsg struct{ err error }

// Model is the bubbletea program driving an intake.Widget in a terminal.
// It never calls the widget from Update directly; widget calls run as commands.
type Model struct {
	widget   *intake.Widget
	renderer *Renderer
	styles   *Styles
	logger   *slog.Logger

	picker  filepicker.Model
	picking bool
	spinner spinner.Model

	snap   Snapshot
	cursor int
	width  int
}

// NewModel builds the model. renderer must be the one the widget was built with.
func NewModel(w *intake.Widget, r *Renderer, startDir string, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	fp := filepicker.New()
	fp.AllowedTypes = allowedTypes()
	fp.CurrentDirectory = startDir
	if fp.CurrentDirectory == "" {
		fp.CurrentDirectory, _ = os.Getwd()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		widget:   w,
		renderer: r,
		styles:   NewStyles(),
		logger:   logger,
		picker:   fp,
		spinner:  sp,
		snap:     r.Snapshot(),
	}
}

func allowedTypes() []string {
	out := make([]string, 0, len(constants.AllowedExtensions))
	for ext := range constants.AllowedExtensions {
		out = append(out, "."+ext, "."+strings.ToUpper(ext))
	}
	sort.Strings(out)
	return out
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.renderer.waitForChange(), m.picker.Init(), m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case changedMsg:
		m.snap = m.renderer.Snapshot()
		if m.cursor >= len(m.snap.Items) {
			m.cursor = max(0, len(m.snap.Items)-1)
		}
		return m, m.renderer.waitForChange()

	case submitDoneMsg:
		if msg.err != nil {
			m.logger.Info("tui.submit.done", "error", msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if len(m.snap.Alerts) > 0 {
			m.renderer.ClearAlerts()
			m.snap.Alerts = nil
		}
		if key.Matches(msg, keys.Quit) && !(m.picking && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.picking {
			if key.Matches(msg, keys.Back) {
				m.picking = false
				return m, nil
			}
			break
		}
		return m, m.handleKey(msg)
	}

	if m.picking {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		if ok, path := m.picker.DidSelectFile(msg); ok {
			m.picking = false
			return m, tea.Batch(cmd, m.addPath(path))
		}
		if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
			m.picking = false
			return m, tea.Batch(cmd, m.addPath(path))
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	panel := m.snap.Panel()
	switch {
	case key.Matches(msg, keys.Reset) && (panel == intake.PanelResult || panel == intake.PanelError):
		w := m.widget
		return func() tea.Msg { w.Reset(); return nil }

	case panel != intake.PanelIntake:
		return nil

	case key.Matches(msg, keys.Pick):
		m.picking = true
		return m.picker.Init()

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.snap.Items)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Remove):
		if m.cursor < len(m.snap.Items) {
			remove := m.snap.Items[m.cursor].Remove
			return func() tea.Msg { remove(); return nil }
		}

	case key.Matches(msg, keys.Submit):
		if !m.snap.SubmitEnabled {
			return nil
		}
		w := m.widget
		return tea.Batch(m.spinner.Tick, func() tea.Msg {
			return submitDoneMsg{err: w.Submit(context.Background())}
		})
	}
	return nil
}

// addPath adds a picked file. Unsupported extensions still reach the widget so
// the user gets the same alert as any other caller.
func (m *Model) addPath(path string) tea.Cmd {
	w, logger := m.widget, m.logger
	return func() tea.Msg {
		f, err := intake.NewLocalFile(path)
		if err != nil {
			logger.Warn("tui.add.stat_error", "path", path, "error", err)
			return nil
		}
		_ = w.AddFiles(f)
		return nil
	}
}

func (m *Model) View() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Title.Render("明細抽出くん"))
	b.WriteString("\n")

	switch m.snap.Panel() {
	case intake.PanelProcessing:
		b.WriteString(s.Loading.Render(m.spinner.View() + " 処理中です..."))
		b.WriteString("\n")

	case intake.PanelResult:
		b.WriteString(s.Success.Render("完了しました"))
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s\n%s\n", m.snap.Filename, s.Link.Render(m.snap.DriveURL)))
		b.WriteString(s.Help.Render("r: start over • q: quit"))

	case intake.PanelError:
		b.WriteString(s.Error.Render("エラー"))
		b.WriteString("\n")
		b.WriteString(m.snap.ErrorMessage)
		b.WriteString("\n")
		b.WriteString(s.Help.Render("r: start over • q: quit"))

	default:
		if m.picking {
			b.WriteString(s.Box.Render(m.picker.View()))
			b.WriteString("\n")
			b.WriteString(s.Help.Render("enter: select • esc: back"))
			break
		}
		b.WriteString(m.listView())
		submit := s.Disabled.Render("[ submit ]")
		if m.snap.SubmitEnabled {
			submit = s.Enabled.Render("[ submit ]")
		}
		b.WriteString("\n" + submit + "\n")
		b.WriteString(s.Help.Render("a: add file • x: remove • s: submit • q: quit"))
	}

	for _, a := range m.snap.Alerts {
		b.WriteString("\n")
		b.WriteString(s.Alert.Render("! " + a))
	}
	return s.Main.Render(b.String())
}

func (m *Model) listView() string {
	s := m.styles
	if len(m.snap.Items) == 0 {
		return s.Dim.Render("ファイルが選択されていません") + "\n"
	}
	var b strings.Builder
	for i, it := range m.snap.Items {
		line := fmt.Sprintf("%s %s", it.Name, s.Size.Render("("+it.SizeLabel+")"))
		if i == m.cursor {
			b.WriteString(s.Cursor.Render("> ") + line + "\n")
			continue
		}
		b.WriteString(s.Row.Render(line) + "\n")
	}
	return b.String()
}
