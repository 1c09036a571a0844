package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"raceview/internal/config"
)

const racesJSON = `[
  {"number": 2, "year": 1999, "venue": "Woodbine", "name": "Queen's Plate"},
  {"number": 1, "year": 2001, "venue": "Fort Erie", "name": "Prince of Wales"}
]`

func TestMain(m *testing.M) {
	newLogger = func(config.LogConfig) (*zap.Logger, error) { return zap.NewNop(), nil }
	os.Exit(m.Run())
}

// writeConfig writes a config using a filesystem blob root and an in-memory
// preference store, returning the config path and the blob root. extra is
// appended and must not repeat the blob or preferences sections.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "blobs")
	path := filepath.Join(dir, "raceview.yaml")
	body := "blob:\n  driver: fs\n  fs_root: " + root + "\npreferences:\n  driver: memory\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, root
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "raceview dev\n", out)
}

func TestPublishSourcesRender(t *testing.T) {
	cfgPath, root := writeConfig(t, "")
	data := filepath.Join(t.TempDir(), "races.json")
	require.NoError(t, os.WriteFile(data, []byte(racesJSON), 0o644))

	code, out, errOut := run("publish", data, "--config", cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "published 2 records to races.json")
	assert.FileExists(t, filepath.Join(root, "races.json"))

	code, _, errOut = run("publish", data, "--config", cfgPath, "--overwrite=false")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")

	code, out, _ = run("sources", "--config", cfgPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "races.json")

	code, out, errOut = run("render", "--config", cfgPath, "--sort", "number", "--lang", "fr")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `<html lang="fr"`)
	assert.Contains(t, out, "2 fiches affichées")
	assert.Less(t, strings.Index(out, "Prince of Wales"), strings.Index(out, "Queen&#39;s Plate"))

	page := filepath.Join(t.TempDir(), "page.html")
	code, _, _ = run("render", "--config", cfgPath, "--q", "erie", "--out", page)
	require.Equal(t, 0, code)
	written, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(written), "Showing 1 record<")
}

func TestPublishRejectsInvalidDataset(t *testing.T) {
	cfgPath, root := writeConfig(t, "")
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not":"an array"}`), 0o644))
	code, _, errOut := run("publish", bad, "--config", cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "bad.json")
	assert.NoFileExists(t, filepath.Join(root, "races.json"))
}

func TestRenderWritesErrorPageOnLoadFailure(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	code, out, errOut := run("render", "--config", cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error loading race records. Please ensure the JSON file exists.")
	assert.Contains(t, errOut, "load dataset")
}

func TestInvalidConfiguration(t *testing.T) {
	cfgPath, _ := writeConfig(t, "source:\n  driver: ftp\n")
	code, _, errOut := run("sources", "--config", cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid configuration")

	code, _, errOut = run("render", "--config", cfgPath, "--log-level", "loud")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid configuration")

	code, _, _ = run("nonsense")
	assert.Equal(t, 1, code)
}

func TestServe(t *testing.T) {
	cfgPath, root := writeConfig(t, "http:\n  addr: 127.0.0.1:0\nsource:\n  watch: true\nmetrics:\n  driver: prometheus\n")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "races.json"), []byte(racesJSON), 0o644))
	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	var opened string
	restore := openBrowser
	openBrowser = func(url string) error { opened = url; return nil }
	defer func() { openBrowser = restore }()

	ctx, cancel := context.WithCancel(context.Background())
	urls := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &rootOptions{cfg: cfg, logger: zap.NewNop()}, true, func(u string) { urls <- u })
	}()

	var base string
	select {
	case base = <-urls:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	body := func(path string) string {
		resp, err := client.Get(base + strings.TrimPrefix(path, "/"))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(data)
	}

	require.Eventually(t, func() bool {
		return strings.Contains(body("/api/v1/races/status"), `"status":"ready"`)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, body("/"), "Showing 2 records")
	assert.Contains(t, body("/metrics"), "raceview_operations_total")

	require.NoError(t, os.WriteFile(filepath.Join(root, "races.json"), []byte(`[{"name":"Only"}]`), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(body("/"), "Showing 1 record<")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, base, opened)
	client.CloseIdleConnections()
}
