//go:build js && wasm

// Package dom renders the intake widget into the upload page and binds the
// drop zone and file picker to it.
package dom

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"syscall/js"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

// Element ids used by the upload page template.
const (
	IDDropZone       = "drop-zone"
	IDFileInput      = "file-input"
	IDFileList       = "file-list"
	IDSubmitButton   = "submit-btn"
	IDUploadForm     = "upload-form"
	IDUploadArea     = "upload-area"
	IDProcessing     = "processing"
	IDResult         = "result"
	IDError          = "error"
	IDDriveLink      = "drive-link"
	IDResultFilename = "result-filename"
	IDErrorMessage   = "error-message"
	SelectorReset    = "[data-action=reset]"
)

const hiddenClass = "hidden"

// Renderer implements intake.Renderer on top of the page DOM.
type Renderer struct {
	doc    js.Value
	panels map[intake.Panel]js.Value
	list   js.Value
	submit js.Value

	// handlers bound to the currently rendered list; released on re-render
	rowFuncs []js.Func
}

func NewRenderer(doc js.Value) (*Renderer, error) {
	r := &Renderer{
		doc: doc,
		panels: map[intake.Panel]js.Value{
			intake.PanelIntake:     doc.Call("getElementById", IDUploadArea),
			intake.PanelProcessing: doc.Call("getElementById", IDProcessing),
			intake.PanelResult:     doc.Call("getElementById", IDResult),
			intake.PanelError:      doc.Call("getElementById", IDError),
		},
		list:   doc.Call("getElementById", IDFileList),
		submit: doc.Call("getElementById", IDSubmitButton),
	}
	for p, el := range r.panels {
		if el.IsNull() {
			return nil, errors.New("missing panel element: " + p.String())
		}
	}
	if r.list.IsNull() || r.submit.IsNull() {
		return nil, errors.New("missing file list or submit button")
	}
	return r, nil
}

func (r *Renderer) SetPanelVisible(p intake.Panel, visible bool) {
	el, ok := r.panels[p]
	if !ok {
		return
	}
	if visible {
		el.Get("classList").Call("remove", hiddenClass)
	} else {
		el.Get("classList").Call("add", hiddenClass)
	}
}

func (r *Renderer) RenderList(items []intake.ListItem) {
	for _, f := range r.rowFuncs {
		f.Release()
	}
	r.rowFuncs = r.rowFuncs[:0]
	r.list.Set("textContent", "")
	if len(items) == 0 {
		return
	}

	// rows go straight into the page's <ul id="file-list">
	for _, it := range items {
		li := r.doc.Call("createElement", "li")
		li.Call("appendChild", r.doc.Call("createTextNode", it.Name+" ("+it.SizeLabel+") "))

		btn := r.doc.Call("createElement", "button")
		btn.Set("type", "button")
		btn.Set("textContent", "x")
		btn.Get("classList").Call("add", "btn-remove")
		btn.Get("dataset").Set("index", it.Index)

		remove := it.Remove
		fn := js.FuncOf(func(this js.Value, args []js.Value) any {
			go remove()
			return nil
		})
		r.rowFuncs = append(r.rowFuncs, fn)
		btn.Call("addEventListener", "click", fn)

		li.Call("appendChild", btn)
		r.list.Call("appendChild", li)
	}
}

func (r *Renderer) SetSubmitEnabled(enabled bool) {
	r.submit.Set("disabled", !enabled)
}

func (r *Renderer) ShowResult(driveURL, filename string) {
	r.doc.Call("getElementById", IDDriveLink).Set("href", driveURL)
	r.doc.Call("getElementById", IDResultFilename).Set("textContent", filename)
}

func (r *Renderer) ShowError(message string) {
	r.doc.Call("getElementById", IDErrorMessage).Set("textContent", message)
}

func (r *Renderer) Alert(message string) {
	js.Global().Call("alert", message)
}

// Bind wires drag-and-drop, the picker, the form submit and reset buttons to w.
// Handlers hand off to goroutines; the returned func releases them.
func Bind(doc js.Value, w *intake.Widget, logger *slog.Logger) (release func()) {
	if logger == nil {
		logger = slog.Default()
	}
	dropZone := doc.Call("getElementById", IDDropZone)
	input := doc.Call("getElementById", IDFileInput)
	form := doc.Call("getElementById", IDUploadForm)

	var funcs []js.Func
	on := func(target js.Value, event string, fn func(this js.Value, args []js.Value)) {
		f := js.FuncOf(func(this js.Value, args []js.Value) any {
			fn(this, args)
			return nil
		})
		funcs = append(funcs, f)
		target.Call("addEventListener", event, f)
	}

	on(dropZone, "dragover", func(_ js.Value, args []js.Value) {
		args[0].Call("preventDefault")
		dropZone.Get("classList").Call("add", "drag-over")
	})
	on(dropZone, "dragleave", func(_ js.Value, _ []js.Value) {
		dropZone.Get("classList").Call("remove", "drag-over")
	})
	on(dropZone, "drop", func(_ js.Value, args []js.Value) {
		args[0].Call("preventDefault")
		dropZone.Get("classList").Call("remove", "drag-over")
		files := fileList(args[0].Get("dataTransfer").Get("files"))
		go func() { _ = w.AddFiles(files...) }()
	})
	on(input, "change", func(_ js.Value, _ []js.Value) {
		files := fileList(input.Get("files"))
		input.Set("value", "")
		go func() { _ = w.AddFiles(files...) }()
	})
	on(form, "submit", func(_ js.Value, args []js.Value) {
		args[0].Call("preventDefault")
		go func() {
			if err := w.Submit(context.Background()); err != nil {
				logger.Warn("intake.dom.submit", "error", err)
			}
		}()
	})

	resets := doc.Call("querySelectorAll", SelectorReset)
	for i := 0; i < resets.Length(); i++ {
		on(resets.Index(i), "click", func(_ js.Value, _ []js.Value) {
			go w.Reset()
		})
	}

	return func() {
		for _, f := range funcs {
			f.Release()
		}
	}
}

// jsFile adapts a browser File handle. Content is read through arrayBuffer()
// and must not be opened from inside a JS callback.
type jsFile struct {
	v    js.Value
	name string
	size int64
}

func fileList(list js.Value) []intake.File {
	if list.IsUndefined() || list.IsNull() {
		return nil
	}
	out := make([]intake.File, 0, list.Length())
	for i := 0; i < list.Length(); i++ {
		v := list.Index(i)
		out = append(out, &jsFile{v: v, name: v.Get("name").String(), size: int64(v.Get("size").Int())})
	}
	return out
}

func (f *jsFile) Name() string { return f.name }
func (f *jsFile) Size() int64  { return f.size }

func (f *jsFile) Open() (io.ReadCloser, error) {
	buf, err := await(f.v.Call("arrayBuffer"))
	if err != nil {
		return nil, err
	}
	arr := js.Global().Get("Uint8Array").New(buf)
	data := make([]byte, arr.Get("length").Int())
	js.CopyBytesToGo(data, arr)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func await(promise js.Value) (js.Value, error) {
	type result struct {
		v   js.Value
		err error
	}
	ch := make(chan result, 1)
	onOK := js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- result{v: args[0]}
		return nil
	})
	onErr := js.FuncOf(func(_ js.Value, args []js.Value) any {
		ch <- result{err: js.Error{Value: args[0]}}
		return nil
	})
	defer onOK.Release()
	defer onErr.Release()
	promise.Call("then", onOK, onErr)
	r := <-ch
	return r.v, r.err
}
