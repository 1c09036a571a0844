package core

import (
	"errors"
	"testing"

	"raceview/pkg/domain"
)

func TestControllerToggleSortSemantics(t *testing.T) {
	var renders []View
	c := NewController(readySnapshot(mustDataset(t, sampleRaces)), DefaultViewState(), RendererFunc(func(v View) {
		renders = append(renders, v)
	}))
	if len(renders) != 0 {
		t.Fatalf("constructor must not render")
	}
	if err := c.ToggleSort(domain.FieldName); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if s := c.State(); s.SortField != domain.FieldName || !s.Ascending {
		t.Fatalf("first toggle should sort ascending, got %+v", s)
	}
	_ = c.ToggleSort(domain.FieldName)
	if s := c.State(); s.SortField != domain.FieldName || s.Ascending {
		t.Fatalf("second toggle should flip to descending, got %+v", s)
	}
	_ = c.ToggleSort(domain.FieldYear)
	if s := c.State(); s.SortField != domain.FieldYear || !s.Ascending {
		t.Fatalf("new field should reset to ascending, got %+v", s)
	}
	if len(renders) != 3 {
		t.Fatalf("expected one render per mutation, got %d", len(renders))
	}
	last := renders[len(renders)-1]
	if !last.State.Sorted(domain.FieldYear) || last.State.Arrow() != "↑" {
		t.Fatalf("indicator not carried in view: %+v", last.State)
	}
}

func TestControllerToggleUnknownFieldLeavesState(t *testing.T) {
	renders := 0
	c := NewController(readySnapshot(nil), DefaultViewState(), RendererFunc(func(View) { renders++ }))
	err := c.ToggleSort("colour")
	if !errors.Is(err, ErrUnknownSortField) {
		t.Fatalf("expected ErrUnknownSortField, got %v", err)
	}
	if c.State() != DefaultViewState() || renders != 0 {
		t.Fatalf("state changed or rendered: %+v renders=%d", c.State(), renders)
	}
}

func TestControllerSetFilterLowercases(t *testing.T) {
	c := NewController(readySnapshot(mustDataset(t, sampleRaces)), DefaultViewState(), nil)
	c.SetFilter("SMITH")
	if c.State().Filter != "smith" {
		t.Fatalf("filter = %q", c.State().Filter)
	}
	if got := c.View().Visible; got != 2 {
		t.Fatalf("visible = %d", got)
	}
	c.SetFilter("")
	if got := c.View().Visible; got != 4 {
		t.Fatalf("clearing filter should show all, got %d", got)
	}
}

func TestControllerEmptyVersusError(t *testing.T) {
	ready := NewController(readySnapshot(mustDataset(t, `[]`)), DefaultViewState(), nil)
	if !ready.View().Empty() || ready.View().Status() != StatusReady {
		t.Fatalf("ready empty dataset should be Empty")
	}
	failed := NewController(Snapshot{Status: StatusError, Error: "x"}, DefaultViewState(), nil)
	if failed.View().Empty() || failed.View().Status() != StatusError {
		t.Fatalf("error snapshot must not count as empty")
	}
	loading := NewController(Snapshot{Status: StatusLoading}, DefaultViewState(), nil)
	if loading.View().Empty() {
		t.Fatalf("loading must not count as empty")
	}
	filtered := NewController(readySnapshot(mustDataset(t, sampleRaces)), ViewState{Ascending: true, Filter: "zzz"}, nil)
	if !filtered.View().Empty() || filtered.View().Total != 4 {
		t.Fatalf("filtered-out view should be Empty with total 4: %+v", filtered.View())
	}
}

func TestControllerReplaceKeepsState(t *testing.T) {
	renders := 0
	c := NewController(Snapshot{Status: StatusLoading}, ViewState{SortField: domain.FieldName, Ascending: false}, RendererFunc(func(View) { renders++ }))
	c.Replace(readySnapshot(mustDataset(t, sampleRaces)))
	if renders != 1 || c.View().Visible != 4 {
		t.Fatalf("replace should render new data: renders=%d view=%+v", renders, c.View())
	}
	if got := c.View().Rows[0].Record.Get(domain.FieldName); got != "Zeta" {
		t.Fatalf("descending name sort should lead with Zeta, got %s", got)
	}
	c.Render()
	if renders != 2 {
		t.Fatalf("Render should render once")
	}
}

func TestControllerRecordByIndex(t *testing.T) {
	c := NewController(readySnapshot(mustDataset(t, `[{"name":"Dup"},{"name":"Dup","year":"1990"}]`)), DefaultViewState(), nil)
	rec, err := c.Record(1)
	if err != nil || rec.Get(domain.FieldYear) != "1990" {
		t.Fatalf("Record(1) = %+v %v", rec, err)
	}
	_, err = c.Record(2)
	var nf ErrRecordNotFound
	if !errors.As(err, &nf) || nf.Index != 2 {
		t.Fatalf("expected ErrRecordNotFound{2}, got %v", err)
	}
}

func TestNewControllerSanitizesState(t *testing.T) {
	c := NewController(readySnapshot(nil), ViewState{SortField: "bogus", Ascending: true, Filter: "MiXeD"}, nil)
	if c.State().SortField != "" || c.State().Filter != "mixed" {
		t.Fatalf("state not sanitized: %+v", c.State())
	}
}
