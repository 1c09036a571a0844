package races

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raceview/internal/blob"
	"raceview/internal/core"
	"raceview/internal/render"
	"raceview/pkg/domain"
)

// ExportFormat names an export artifact encoding.
type ExportFormat string

const (
	FormatHTML ExportFormat = "html"
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseExportFormat returns the format named by s.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch f := ExportFormat(s); f {
	case FormatHTML, FormatCSV, FormatJSON:
		return f, true
	}
	return "", false
}

func (f ExportFormat) contentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ErrQueueFull is returned by EnqueueExport when the worker cannot accept
// more requests.
var ErrQueueFull = errors.New("export queue full")

// ExportArtifact describes one stored export file.
type ExportArtifact struct {
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	ETag        string       `json:"etag,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and its artifacts.
type ExportRecord struct {
	ID          string             `json:"id"`
	State       core.ViewState     `json:"state"`
	Preferences domain.Preferences `json:"preferences"`
	Formats     []ExportFormat     `json:"formats"`
	Generation  uint64             `json:"generation"`
	Status      ExportStatus       `json:"status"`
	Error       string             `json:"error,omitempty"`
	Artifacts   []ExportArtifact   `json:"artifacts,omitempty"`
	RequestedBy string             `json:"requested_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	out := r
	out.Formats = append([]ExportFormat(nil), r.Formats...)
	out.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ExportInput is an enqueue request: the view to export and how to present it.
type ExportInput struct {
	State       core.ViewState
	Preferences domain.Preferences
	Formats     []ExportFormat
	RequestedBy string
}

// ExportScheduler queues export requests and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// SnapshotSource supplies the dataset snapshot an export is taken from.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// ExportPrefix is the blob key prefix for export artifacts.
const ExportPrefix = "exports/"

// Worker renders exports asynchronously and stores them in a blob store.
type Worker struct {
	snapshots SnapshotSource
	store     blob.Store
	renderer  *render.Renderer
	logger    *zap.Logger
	now       func() time.Time

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id       string
	snapshot core.Snapshot
}

// NewWorker constructs an export worker with a queue of queueSize requests
// (32 when not positive).
func NewWorker(snapshots SnapshotSource, store blob.Store, renderer *render.Renderer, logger *zap.Logger, queueSize int) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		snapshots: snapshots,
		store:     store,
		renderer:  renderer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan exportTask, queueSize),
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport snapshots the current dataset and schedules the export. The
// returned record is in the queued state.
func (w *Worker) EnqueueExport(_ context.Context, input ExportInput) (ExportRecord, error) {
	if w.store == nil || w.snapshots == nil {
		return ExportRecord{}, fmt.Errorf("export store not configured")
	}
	if input.State.SortField != "" && !core.IsSortable(input.State.SortField) {
		return ExportRecord{}, fmt.Errorf("%w: %q", core.ErrUnknownSortField, input.State.SortField)
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatHTML}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if _, ok := ParseExportFormat(string(f)); !ok {
			return ExportRecord{}, fmt.Errorf("unsupported export format %q", f)
		}
		uniq = append(uniq, f)
		seen[f] = struct{}{}
	}

	snap := w.snapshots.Snapshot()
	if snap.Status != core.StatusReady {
		return ExportRecord{}, fmt.Errorf("dataset not ready: %s", snap.Status)
	}

	now := w.now()
	record := ExportRecord{
		ID:          uuid.NewString(),
		State:       input.State,
		Preferences: input.Preferences.Normalize(),
		Formats:     uniq,
		Generation:  snap.Generation,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: record.ID, snapshot: snap}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}
	w.logger.Info("export queued",
		zap.String("export", record.ID),
		zap.Uint64("generation", record.Generation))
	return queued, nil
}

// GetExport returns a copy of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.updateStatus(task.id, ExportStatusRunning, "")

	view := core.NewController(task.snapshot, record.State, nil).View()
	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, err := w.materialize(format, view, record.Preferences)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		key := ExportPrefix + task.id + "." + string(format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.contentType(),
			Metadata: map[string]string{
				"export":     task.id,
				"generation": strconv.FormatUint(task.snapshot.Generation, 10),
			},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         info.Key,
			Format:      format,
			ContentType: format.contentType(),
			SizeBytes:   int64(len(payload)),
			ETag:        info.ETag,
			CreatedAt:   w.now(),
		})
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) materialize(format ExportFormat, view core.View, prefs domain.Preferences) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatHTML:
		if w.renderer == nil {
			return nil, fmt.Errorf("html renderer not configured")
		}
		if err := w.renderer.RenderPage(&buf, render.Page{View: view, Prefs: prefs, Static: true}); err != nil {
			return nil, err
		}
	case FormatCSV:
		if err := writeCSV(&buf, view.Rows); err != nil {
			return nil, fmt.Errorf("encode csv: %w", err)
		}
	case FormatJSON:
		if err := json.NewEncoder(&buf).Encode(newRowsResponse(view)); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return buf.Bytes(), nil
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = w.now()
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Info("export succeeded", zap.String("export", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := w.now()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Warn("export failed", zap.String("export", id), zap.String("reason", reason))
}

// writeCSV writes a header of every column followed by one line per row.
// writeCSV writes every field, not just the table columns: an index column,
// the known fields in display order, then any extra fields present in rows,
// sorted by name. Missing values are empty cells.
func writeCSV(w io.Writer, rows []core.Row) error {
	fields := csvFields(rows)
	writer := csv.NewWriter(w)
	headers := make([]string, 0, len(fields)+1)
	headers = append(headers, "index")
	for _, f := range fields {
		headers = append(headers, string(f))
	}
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		line := make([]string, 0, len(headers))
		line = append(line, strconv.Itoa(row.Index))
		for _, f := range fields {
			line = append(line, row.Record.Get(f))
		}
		if err := writer.Write(line); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvFields(rows []core.Row) []domain.Field {
	fields := domain.KnownFields()
	seen := make(map[string]bool)
	var extra []string
	for _, row := range rows {
		for _, name := range row.Record.Names() {
			if !domain.Field(name).IsKnown() && !seen[name] {
				seen[name] = true
				extra = append(extra, name)
			}
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		fields = append(fields, domain.Field(name))
	}
	return fields
}
