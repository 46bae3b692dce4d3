//go:build js && wasm

package dom

import (
	"syscall/js"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

// fakeDocument is the smallest document the renderer touches. Setting
// textContent drops an element's children, as in a browser.
const fakeDocument = `
const make = (tag) => {
  const el = {
    tagName: tag.toUpperCase(),
    children: [],
    dataset: {},
    listeners: {},
    classList: { add() {}, remove() {} },
    appendChild(c) { el.children.push(c); return c; },
    addEventListener(ev, fn) { el.listeners[ev] = fn; },
  };
  let text = "";
  Object.defineProperty(el, "textContent", {
    get() { return text; },
    set(v) { text = v; el.children = []; },
  });
  return el;
};
const byId = {};
for (const id of ["upload-area", "processing", "result", "error", "submit-btn"]) byId[id] = make("div");
byId["file-list"] = make("ul");
return {
  createElement: make,
  createTextNode: (t) => ({ tagName: "#text", textContent: t }),
  getElementById: (id) => byId[id] ?? null,
};
`

func newDocument() js.Value {
	return js.Global().Get("Function").New(fakeDocument).Invoke()
}

func TestRenderList_RowsGoStraightIntoFileList(t *testing.T) {
	doc := newDocument()
	r, err := NewRenderer(doc)
	require.NoError(t, err)

	r.RenderList([]intake.ListItem{
		{Index: 0, Name: "a.pdf", SizeLabel: "0.1MB", Remove: func() {}},
		{Index: 1, Name: "b.png", SizeLabel: "1.3MB", Remove: func() {}},
	})

	list := doc.Call("getElementById", IDFileList)
	rows := list.Get("children")
	require.Equal(t, 2, rows.Length())
	for i := 0; i < rows.Length(); i++ {
		row := rows.Index(i)
		assert.Equal(t, "LI", row.Get("tagName").String())
		btn := row.Get("children").Index(1)
		assert.Equal(t, "BUTTON", btn.Get("tagName").String())
		assert.Equal(t, i, btn.Get("dataset").Get("index").Int())
	}
	assert.Equal(t, "a.pdf (0.1MB) ", rows.Index(0).Get("children").Index(0).Get("textContent").String())

	r.RenderList(nil)
	assert.Equal(t, 0, list.Get("children").Length())
}

func TestNewRenderer_MissingElements(t *testing.T) {
	doc := js.Global().Get("Function").New(`return { getElementById: () => null };`).Invoke()
	_, err := NewRenderer(doc)
	assert.Error(t, err)
}
