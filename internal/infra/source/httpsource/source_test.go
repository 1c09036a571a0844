package httpsource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSourceOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/races.json":
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("unexpected accept %q", r.Header.Get("Accept"))
			}
			_, _ = io.WriteString(w, `[{"name":"a"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := New(srv.URL+"/races.json", time.Second)
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `[{"name":"a"}]` {
		t.Fatalf("unexpected body %q", body)
	}
	if src.Describe() != srv.URL+"/races.json" {
		t.Fatalf("describe = %s", src.Describe())
	}

	missing := New(srv.URL+"/missing.json", 0)
	_, err = missing.Open(context.Background())
	var se StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestSourceOpenErrors(t *testing.T) {
	if _, err := (&Source{URL: "::bad"}).Open(context.Background()); err == nil {
		t.Fatalf("expected request build error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()
	if _, err := (&Source{URL: srv.URL}).Open(ctx); err == nil {
		t.Fatalf("expected canceled context error")
	}
}
