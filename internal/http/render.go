package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"raseed/internal/core"
	"raseed/internal/log"
)

const layoutFile = "layout.html"

// view is what every page template receives.
type view struct {
	Title string
	Path  string
	User  *core.UserProfile
	// Refresh, when positive, reloads the page after that many seconds.
	Refresh int
	Data    any
}

// renderer holds one template set per page: the layout, the shared
// partials and the page itself.
type renderer struct {
	pages  map[string]*template.Template
	logger *log.Logger
}

func newRenderer(fsys fs.FS, logger *log.Logger) (*renderer, error) {
	files, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}
	partials, err := fs.Glob(fsys, "_*.html")
	if err != nil {
		return nil, err
	}
	rd := &renderer{
		pages:  make(map[string]*template.Template),
		logger: logger.WithComponent(log.ComponentTemplate),
	}
	for _, f := range files {
		if f == layoutFile || strings.HasPrefix(f, "_") {
			continue
		}
		patterns := append([]string{layoutFile}, partials...)
		patterns = append(patterns, f)
		t, err := template.New(f).Funcs(templateFuncs).ParseFS(fsys, patterns...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		rd.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return rd, nil
}

// page renders a full page inside the layout.
func (rd *renderer) page(w http.ResponseWriter, r *http.Request, status int, name string, v view) {
	v.Path = r.URL.Path
	if v.User == nil {
		v.User = currentUser(r)
	}
	rd.execute(w, r, status, name, "layout", v)
}

// fragment renders one named block of a page, for htmx swaps.
func (rd *renderer) fragment(w http.ResponseWriter, r *http.Request, status int, name, block string, data any) {
	rd.execute(w, r, status, name, block, data)
}

// html renders a block of a page into memory.
func (rd *renderer) html(name, block string, data any) ([]byte, error) {
	t, ok := rd.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Templates render into a buffer first so a failing template never leaves
// a half-written page behind a 200.
func (rd *renderer) execute(w http.ResponseWriter, r *http.Request, status int, name, block string, data any) {
	body, err := rd.html(name, block, data)
	if err != nil {
		rd.logger.ErrorContext(r.Context(), "Template execution failed",
			"template", name, "block", block, log.FieldOperation, log.OpRender, log.FieldError, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

var templateFuncs = template.FuncMap{
	"money":      formatMoney,
	"date":       formatDate,
	"isoDate":    func(t time.Time) string { return t.Format(core.DateLayout) },
	"shares":     core.Share,
	"barWidth":   barWidth,
	"maxAmount":  maxAmount,
	"add":        func(a, b int) int { return a + b },
	"sub":        func(a, b int) int { return a - b },
	"categories": func() []string { return core.ItemCategories },
	"timeRanges": func() []core.TimeRange { return core.TimeRanges },
	"qty":        func(it core.Item) float64 { return it.Qty() },
	"lineTotal":  func(it core.Item) string { return formatMoney(it.Total()) },
	"clock":      func(t time.Time) string { return t.Local().Format("Jan 2, 15:04") },
	"dict":       dict,
}

// dict builds a map from key/value pairs so partials can take several values.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// formatMoney renders dollars with two decimals ("$12.34").
func formatMoney(v any) string {
	var m core.Money
	switch x := v.(type) {
	case core.Money:
		m = x
	case float64:
		m = core.FromFloat(x)
	case int:
		m = core.Money{Cents: int64(x) * 100}
	case string:
		cents, err := core.ParseDecimalToCents(x)
		if err != nil {
			return "$0.00"
		}
		m = core.Money{Cents: cents}
	}
	if m.Cents < 0 {
		return "-$" + core.Money{Cents: -m.Cents}.String()
	}
	return "$" + m.String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.Format("Jan 2, 2006")
}

func maxAmount(rows []core.CategoryAmount) float64 {
	var m float64
	for _, r := range rows {
		m = max(m, r.Amount)
	}
	return m
}

// barWidth is the CSS width percentage of v against the largest value.
func barWidth(v, largest float64) int {
	if largest <= 0 || v <= 0 {
		return 0
	}
	return max(1, min(100, int(v*100/largest+0.5)))
}
