package core

import (
	"fmt"
	"strings"

	"raceview/pkg/domain"
)

// View is what a renderer receives after every state change.
type View struct {
	Rows     []Row     `json:"rows"`
	Visible  int       `json:"visible"`
	Total    int       `json:"total"`
	State    ViewState `json:"state"`
	Snapshot Snapshot  `json:"-"`
}

// Status returns the load status the view was derived from.
func (v View) Status() LoadStatus { return v.Snapshot.Status }

// Empty reports whether a loaded dataset produced no visible rows. It is false
// while loading or after a load error.
func (v View) Empty() bool {
	return v.Snapshot.Status == StatusReady && v.Visible == 0
}

// Renderer consumes derived views. It is a one-way boundary: renderers never
// change controller state.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(View)

// Render calls f(v).
func (f RendererFunc) Render(v View) { f(v) }

// Controller owns one view's state over a dataset snapshot. Every mutation
// re-derives the visible rows and renders once. A Controller is not safe for
// concurrent use.
type Controller struct {
	snapshot Snapshot
	state    ViewState
	renderer Renderer
	last     View
}

// NewController binds a snapshot and initial state. The renderer may be nil.
func NewController(snapshot Snapshot, state ViewState, renderer Renderer) *Controller {
	state.Filter = strings.ToLower(state.Filter)
	if state.SortField != "" && !IsSortable(state.SortField) {
		state.SortField = ""
	}
	c := &Controller{snapshot: snapshot, state: state, renderer: renderer}
	c.last = c.derive()
	return c
}

// State returns the current view state.
func (c *Controller) State() ViewState { return c.state }

// Snapshot returns the dataset snapshot the controller reads from.
func (c *Controller) Snapshot() Snapshot { return c.snapshot }

// View returns the most recently derived view.
func (c *Controller) View() View { return c.last }

// SetFilter stores the lowercased text as the filter and re-renders.
func (c *Controller) SetFilter(text string) {
	c.state.Filter = strings.ToLower(text)
	c.refresh()
}

// ToggleSort flips the direction when field is already active; otherwise it
// makes field active in ascending order. Unknown fields leave state unchanged.
func (c *Controller) ToggleSort(field domain.Field) error {
	if !IsSortable(field) {
		return fmt.Errorf("%w: %q", ErrUnknownSortField, field)
	}
	c.state = c.state.Toggled(field)
	c.refresh()
	return nil
}

// Replace swaps in a newer snapshot, keeping the view state.
func (c *Controller) Replace(snapshot Snapshot) {
	c.snapshot = snapshot
	c.refresh()
}

// Render re-renders the current view without changing state.
func (c *Controller) Render() {
	if c.renderer != nil {
		c.renderer.Render(c.last)
	}
}

func (c *Controller) refresh() {
	c.last = c.derive()
	c.Render()
}

func (c *Controller) derive() View {
	rows := DeriveVisibleRows(c.snapshot.Dataset, c.state)
	return View{
		Rows:     rows,
		Visible:  len(rows),
		Total:    c.snapshot.Dataset.Len(),
		State:    c.state,
		Snapshot: c.snapshot,
	}
}

// Record returns the dataset record at index, as used by row actions.
func (c *Controller) Record(index int) (domain.Record, error) {
	rec, ok := c.snapshot.Dataset.At(index)
	if !ok {
		return domain.Record{}, ErrRecordNotFound{Index: index}
	}
	return rec, nil
}

// ErrRecordNotFound reports a row action on an index outside the dataset.
type ErrRecordNotFound struct {
	Index int
}

func (e ErrRecordNotFound) Error() string {
	return fmt.Sprintf("record %d not found", e.Index)
}
