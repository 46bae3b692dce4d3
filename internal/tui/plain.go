package tui

import (
	"fmt"
	"io"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

// LineRenderer prints widget output as plain lines, for non-interactive use.
type LineRenderer struct {
	out io.Writer
}

func NewLineRenderer(out io.Writer) *LineRenderer {
	return &LineRenderer{out: out}
}

func (r *LineRenderer) SetPanelVisible(p intake.Panel, visible bool) {
	if visible && p == intake.PanelProcessing {
		fmt.Fprintln(r.out, "処理中です...")
	}
}

func (r *LineRenderer) RenderList(items []intake.ListItem) {}

func (r *LineRenderer) SetSubmitEnabled(bool) {}

func (r *LineRenderer) ShowResult(driveURL, filename string) {
	fmt.Fprintf(r.out, "完了: %s\n%s\n", filename, driveURL)
}

func (r *LineRenderer) ShowError(message string) {
	fmt.Fprintf(r.out, "エラー: %s\n", message)
}

func (r *LineRenderer) Alert(message string) {
	fmt.Fprintf(r.out, "! %s\n", message)
}
