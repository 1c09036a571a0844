// Package render turns derived views into HTML. Every record value passes
// through html/template escaping.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"raceview/internal/core"
	"raceview/pkg/domain"
)

// Columns are the fields shown in the table, in order.
var Columns = []domain.Field{
	domain.FieldNumber, domain.FieldYear, domain.FieldVenue, domain.FieldLength,
	domain.FieldName, domain.FieldJockey, domain.FieldTrainer, domain.FieldOwner,
}

// linked columns open the record detail page.
var linked = map[domain.Field]bool{
	domain.FieldName: true, domain.FieldJockey: true, domain.FieldTrainer: true, domain.FieldOwner: true,
}

// Page is the input to RenderPage.
type Page struct {
	View  core.View
	Prefs domain.Preferences
	// Static omits forms and links to server routes, for exported snapshots.
	Static bool
	// Query is the search text as typed. The search box shows it when it
	// lowercases to View.State.Filter, and the filter otherwise.
	Query string
}

// Detail is the input to RenderDetail.
type Detail struct {
	Index  int
	Record domain.Record
	Prefs  domain.Preferences
	// Back is the page URL to return to; "/" when empty.
	Back string
}

// Renderer holds the parsed templates and message catalog.
type Renderer struct {
	page    *template.Template
	detail  *template.Template
	catalog catalog.Catalog
}

// New parses the templates and builds the catalog.
func New() (*Renderer, error) {
	cat, err := newCatalog()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	page, err := template.New("page").Parse(layoutTemplate + pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	detail, err := template.New("detail").Parse(layoutTemplate + detailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse detail template: %w", err)
	}
	return &Renderer{page: page, detail: detail, catalog: cat}, nil
}

// MustNew is New that panics on error; the templates are compiled in.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

type headerData struct {
	Field  domain.Field
	Label  string
	Title  string
	Sorted bool
	Arrow  string
	Href   string
}

type cellData struct {
	Text string
	Link string
}

type rowData struct {
	Index int
	Cells []cellData
}

type pageData struct {
	Lang       string
	Theme      string
	Title      string
	Static     bool
	Search     string
	SearchBtn  string
	Filter     string
	SortField  string
	Order      string
	Return     string
	ThemeLabel string
	LangLabel  string
	CountLabel string
	Headers    []headerData
	Rows       []rowData
	Message    string
	Status     string
	Columns    int
}

// RenderPage writes the record table page for p.
func (r *Renderer) RenderPage(w io.Writer, p Page) error {
	prefs := p.Prefs.Normalize()
	pr := printerFor(r.catalog, prefs.Language)
	v := p.View
	data := pageData{
		Lang:      string(prefs.Language),
		Theme:     string(prefs.Theme),
		Title:     pr.Sprintf(msgTitle),
		Static:    p.Static,
		Search:    pr.Sprintf(msgSearch),
		SearchBtn: pr.Sprintf(msgSearchButton),
		Filter:    searchText(p.Query, v.State.Filter),
		Return:    pageURL(v.State),
		LangLabel: pr.Sprintf(msgOtherLang),
		Status:    string(v.Status()),
		Columns:   len(Columns),
	}
	if v.State.SortField != "" {
		data.SortField = string(v.State.SortField)
		data.Order = string(v.State.Order())
	}
	if prefs.Theme == domain.ThemeDark {
		data.ThemeLabel = pr.Sprintf(msgLightMode)
	} else {
		data.ThemeLabel = pr.Sprintf(msgDarkMode)
	}
	for _, f := range Columns {
		label := pr.Sprintf(FieldLabel(f))
		h := headerData{Field: f, Label: label, Title: pr.Sprintf(msgSortBy, label), Sorted: v.State.Sorted(f)}
		if h.Sorted {
			h.Arrow = v.State.Arrow()
		}
		if !p.Static {
			h.Href = pageURL(v.State.Toggled(f))
		}
		data.Headers = append(data.Headers, h)
	}

	switch v.Status() {
	case core.StatusNotLoaded, core.StatusLoading:
		data.Message = pr.Sprintf(msgLoading)
	case core.StatusError:
		data.Message = pr.Sprintf(msgLoadError)
		data.CountLabel = pr.Sprintf(msgErrorLabel)
	default:
		data.CountLabel = pr.Sprintf(msgShowing, v.Visible)
		if v.Empty() {
			data.Message = pr.Sprintf(msgNoResults)
		}
		data.Rows = rows(v.Rows, v.State, p.Static)
	}
	return execute(w, r.page, data)
}

func searchText(query, filter string) string {
	if query != "" && strings.ToLower(query) == filter {
		return query
	}
	return filter
}

func rows(in []core.Row, state core.ViewState, static bool) []rowData {
	back := pageURL(state)
	out := make([]rowData, 0, len(in))
	for _, row := range in {
		rd := rowData{Index: row.Index, Cells: make([]cellData, len(Columns))}
		for i, f := range Columns {
			cell := cellData{Text: row.Record.Get(f)}
			if linked[f] && !static {
				cell.Link = DetailURL(row.Index, back)
			}
			rd.Cells[i] = cell
		}
		out = append(out, rd)
	}
	return out
}

type fieldRow struct {
	Label string
	Value string
}

type detailData struct {
	Lang    string
	Theme   string
	Title   string
	Heading string
	Back    string
	BackURL string
	Field   string
	Value   string
	Fields  []fieldRow
}

// RenderDetail writes the page for one record, listing every field it has.
func (r *Renderer) RenderDetail(w io.Writer, d Detail) error {
	prefs := d.Prefs.Normalize()
	pr := printerFor(r.catalog, prefs.Language)
	back := d.Back
	if back == "" {
		back = "/"
	}
	data := detailData{
		Lang:    string(prefs.Language),
		Theme:   string(prefs.Theme),
		Title:   pr.Sprintf(msgTitle),
		Heading: title(pr, d),
		Back:    pr.Sprintf(msgBack),
		BackURL: back,
		Field:   pr.Sprintf(msgField),
		Value:   pr.Sprintf(msgValue),
	}
	for _, name := range d.Record.Names() {
		f := domain.Field(name)
		label := name
		if f.IsKnown() {
			label = pr.Sprintf(FieldLabel(f))
		}
		data.Fields = append(data.Fields, fieldRow{Label: label, Value: d.Record.Get(f)})
	}
	return execute(w, r.detail, data)
}

func title(pr *message.Printer, d Detail) string {
	if name := d.Record.Get(domain.FieldName); name != "" {
		return name
	}
	return pr.Sprintf(msgRecord, d.Index)
}

// execute renders into a buffer first so a template error never leaves a
// half-written page.
func execute(w io.Writer, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RecordURL is the detail page path for the record at dataset index i.
func RecordURL(i int) string {
	return "/races/records/" + strconv.Itoa(i)
}

// DetailURL is RecordURL with back, the page to return to, in the return
// parameter. The default page "/" is left implicit.
func DetailURL(i int, back string) string {
	if back == "" || back == "/" {
		return RecordURL(i)
	}
	return (&url.URL{Path: RecordURL(i), RawQuery: url.Values{"return": {back}}.Encode()}).String()
}

func pageURL(s core.ViewState) string {
	q := s.Query()
	if len(q) == 0 {
		return "/"
	}
	return (&url.URL{Path: "/", RawQuery: q.Encode()}).String()
}

// PageRenderer adapts a Renderer to core.Renderer, writing each view to W.
// The first write error is kept in Err.
type PageRenderer struct {
	R      *Renderer
	W      io.Writer
	Prefs  domain.Preferences
	Static bool
	Err    error
}

// Render implements core.Renderer.
func (p *PageRenderer) Render(v core.View) {
	if err := p.R.RenderPage(p.W, Page{View: v, Prefs: p.Prefs, Static: p.Static}); err != nil && p.Err == nil {
		p.Err = err
	}
}
