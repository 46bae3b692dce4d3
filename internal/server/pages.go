package server

import (
	"embed"
	"html/template"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type templateRenderer struct {
	t *template.Template
}

func newTemplateRenderer() *templateRenderer {
	return &templateRenderer{t: template.Must(template.ParseFS(templateFS, "templates/*.html"))}
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.t.ExecuteTemplate(w, name, data)
}

// PageHandler serves the upload page. The widget itself runs from /wasm.
type PageHandler struct {
	maxFiles int
}

type indexView struct {
	MaxFiles int
	Accept   string
}

func (h *PageHandler) HandleIndex(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", indexView{MaxFiles: h.maxFiles, Accept: acceptList()})
}

// acceptList renders the file input accept attribute, e.g. ".gif,.jpeg,.jpg".
func acceptList() string {
	exts := make([]string, 0, len(constants.AllowedExtensions))
	for ext := range constants.AllowedExtensions {
		exts = append(exts, "."+ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ",")
}
