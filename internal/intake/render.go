package intake

// Panel is one of the four mutually exclusive widget states.
type Panel int

const (
	PanelIntake Panel = iota
	PanelProcessing
	PanelResult
	PanelError
)

var panels = []Panel{PanelIntake, PanelProcessing, PanelResult, PanelError}

func (p Panel) String() string {
	switch p {
	case PanelIntake:
		return "intake"
	case PanelProcessing:
		return "processing"
	case PanelResult:
		return "result"
	case PanelError:
		return "error"
	default:
		return "unknown"
	}
}

// ListItem is one rendered row of the selection. Remove is bound to the row
// it was rendered for; calling it after the list changed does nothing.
type ListItem struct {
	Index     int
	Name      string
	Size      int64
	SizeLabel string
	Remove    func()
}

// Renderer is the port through which the widget touches the screen.
// Implementations must not call back into the Widget synchronously.
type Renderer interface {
	SetPanelVisible(p Panel, visible bool)
	RenderList(items []ListItem)
	SetSubmitEnabled(enabled bool)
	ShowResult(driveURL, filename string)
	ShowError(message string)
	Alert(message string)
}
