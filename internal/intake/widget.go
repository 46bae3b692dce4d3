package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/joseph-ayodele/bill-extractor/constants"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
)

// Submitter sends the selection to the extraction endpoint.
type Submitter interface {
	Submit(ctx context.Context, files []File) (entity.ExtractResponse, error)
}

// Widget owns the selection and drives a Renderer through the
// Intake → Processing → Result|Error cycle.
type Widget struct {
	renderer  Renderer
	submitter Submitter
	logger    *slog.Logger
	maxFiles  int
	msgs      Messages

	mu         sync.Mutex
	selection  []File
	panel      Panel
	generation uint64 // bumped on every list render
	epoch      uint64 // bumped on Reset; stale submissions are discarded
	inFlight   bool   // a request is running, even one a Reset made stale
}

type Option func(*Widget)

func WithMaxFiles(n int) Option {
	return func(w *Widget) {
		if n > 0 {
			w.maxFiles = n
		}
	}
}

func WithMessages(m Messages) Option {
	return func(w *Widget) { w.msgs = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Widget) {
		if l != nil {
			w.logger = l
		}
	}
}

// New builds a widget in the Intake state and renders the empty list.
func New(r Renderer, s Submitter, opts ...Option) *Widget {
	w := &Widget{
		renderer:  r,
		submitter: s,
		logger:    slog.Default(),
		maxFiles:  constants.MaxFiles,
		msgs:      DefaultMessages,
	}
	for _, o := range opts {
		o(w)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.showOnly(PanelIntake)
	w.renderLocked()
	return w
}

// AddFiles appends valid candidates in order. Candidates with an unsupported
// extension are skipped with an alert; once the selection is full the remaining
// candidates are dropped with a single capacity alert. The returned error joins
// ErrUnsupportedFormat / ErrCapacityExceeded occurrences and is informational.
func (w *Widget) AddFiles(candidates ...File) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for i, f := range candidates {
		if len(w.selection) >= w.maxFiles {
			w.renderer.Alert(w.msgs.tooMany(w.maxFiles))
			w.logger.Warn("intake.add.capacity", "max_files", w.maxFiles, "dropped", len(candidates)-i)
			errs = append(errs, ErrCapacityExceeded)
			break
		}
		if !constants.IsAllowedExt(Ext(f)) {
			w.renderer.Alert(w.msgs.unsupported(f.Name()))
			w.logger.Warn("intake.add.unsupported", "name", f.Name())
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Name()))
			continue
		}
		w.selection = append(w.selection, f)
	}
	w.renderLocked()
	return errors.Join(errs...)
}

// RemoveFile drops the element at index. Out-of-range indexes are ignored.
func (w *Widget) RemoveFile(index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(index)
}

func (w *Widget) removeLocked(index int) {
	if index < 0 || index >= len(w.selection) {
		w.logger.Debug("intake.remove.stale_index", "index", index, "len", len(w.selection))
		return
	}
	w.selection = slices.Delete(w.selection, index, index+1)
	w.renderLocked()
}

// RenderList redraws the file list and the submit affordance.
func (w *Widget) RenderList() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.renderLocked()
}

func (w *Widget) renderLocked() {
	w.generation++
	gen := w.generation

	items := make([]ListItem, 0, len(w.selection))
	for i, f := range w.selection {
		idx := i
		items = append(items, ListItem{
			Index:     idx,
			Name:      f.Name(),
			Size:      f.Size(),
			SizeLabel: SizeLabel(f.Size()),
			Remove:    func() { w.removeRendered(gen, idx) },
		})
	}
	w.renderer.RenderList(items)
	w.renderer.SetSubmitEnabled(len(w.selection) > 0 && !w.inFlight)
}

// removeRendered removes index only if the list has not been redrawn since
// the handler was bound.
func (w *Widget) removeRendered(gen uint64, index int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		w.logger.Debug("intake.remove.stale_render", "index", index)
		return
	}
	w.removeLocked(index)
}

// Submit posts the selection. It is a no-op with an empty selection and
// returns ErrSubmitInProgress while a previous call is still running, also
// when a Reset has already returned the widget to Intake.
// The outcome is rendered; the returned error is *TransportError,
// *ApplicationError or nil.
func (w *Widget) Submit(ctx context.Context) error {
	w.mu.Lock()
	if len(w.selection) == 0 {
		w.mu.Unlock()
		return nil
	}
	if w.inFlight {
		w.mu.Unlock()
		return ErrSubmitInProgress
	}
	w.inFlight = true
	files := slices.Clone(w.selection)
	epoch := w.epoch
	w.showOnly(PanelProcessing)
	w.renderer.SetSubmitEnabled(false)
	w.mu.Unlock()

	w.logger.Info("intake.submit.start", "files", len(files))
	resp, err := w.submitter.Submit(ctx, files)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	defer func() {
		w.renderer.SetSubmitEnabled(len(w.selection) > 0)
	}()
	if epoch != w.epoch {
		w.logger.Info("intake.submit.discarded", "reason", "reset during request")
		return err
	}

	w.renderer.SetPanelVisible(PanelProcessing, false)

	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			te = &TransportError{Err: err}
		}
		w.logger.Error("intake.submit.transport_error", "error", err)
		w.renderer.ShowError(w.msgs.NetworkError)
		w.setPanel(PanelError)
		return te
	}
	if resp.Success {
		url, name := entity.StrOrEmpty(resp.DriveURL), entity.StrOrEmpty(resp.Filename)
		w.logger.Info("intake.submit.ok", "filename", name)
		w.renderer.ShowResult(url, name)
		w.setPanel(PanelResult)
		return nil
	}
	msg := entity.StrOrEmpty(resp.ErrorMessage)
	w.logger.Warn("intake.submit.failed", "error_message", msg)
	w.renderer.ShowError(msg)
	w.setPanel(PanelError)
	return &ApplicationError{Message: msg}
}

// Reset clears the selection and returns to the Intake panel.
func (w *Widget) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selection = nil
	w.epoch++
	w.showOnly(PanelIntake)
	w.renderLocked()
}

// Panel returns the visible panel.
func (w *Widget) Panel() Panel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.panel
}

// Selection returns a copy of the selected files.
func (w *Widget) Selection() []File {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.selection)
}

func (w *Widget) setPanel(p Panel) {
	w.panel = p
	w.renderer.SetPanelVisible(p, true)
}

func (w *Widget) showOnly(p Panel) {
	for _, other := range panels {
		if other != p {
			w.renderer.SetPanelVisible(other, false)
		}
	}
	w.setPanel(p)
}
