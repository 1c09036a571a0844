// Package races serves the race records page, its JSON/CSV API, visitor
// preferences and exports over HTTP.
package races

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"raceview/internal/core"
	"raceview/internal/render"
	"raceview/pkg/domain"
)

// Cookie names.
const (
	VisitorCookie  = "raceview_visitor"
	ThemeCookie    = "raceview_theme"
	LanguageCookie = "raceview_language"
)

const cookieMaxAge = 365 * 24 * 60 * 60

type viewKey struct {
	generation uint64
	sort       domain.Field
	order      core.Order
	filter     string
}

// Handler routes raceview HTTP requests.
type Handler struct {
	svc      *core.Service
	renderer *render.Renderer
	exports  ExportScheduler
	metrics  http.Handler
	logger   *zap.Logger
	cache    *lru.Cache[viewKey, core.View]
	secure   bool
	router   *mux.Router
}

type handlerOptions struct {
	exports   ExportScheduler
	metrics   http.Handler
	logger    *zap.Logger
	cacheSize int
	secure    bool
}

// Option customises a Handler.
type Option func(*handlerOptions)

// WithExports enables the export endpoints.
func WithExports(s ExportScheduler) Option {
	return func(o *handlerOptions) { o.exports = s }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *handlerOptions) { o.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *handlerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCacheSize bounds the derived-view cache (default 128 entries).
func WithCacheSize(n int) Option {
	return func(o *handlerOptions) { o.cacheSize = n }
}

// WithSecureCookies marks preference cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(o *handlerOptions) { o.secure = secure }
}

// NewHandler builds the router over svc.
func NewHandler(svc *core.Service, renderer *render.Renderer, opts ...Option) (*Handler, error) {
	o := handlerOptions{logger: zap.NewNop(), cacheSize: 128}
	for _, opt := range opts {
		opt(&o)
	}
	if svc == nil || renderer == nil {
		return nil, fmt.Errorf("service and renderer are required")
	}
	cache, err := lru.New[viewKey, core.View](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("view cache: %w", err)
	}
	h := &Handler{
		svc:      svc,
		renderer: renderer,
		exports:  o.exports,
		metrics:  o.metrics,
		logger:   o.logger,
		cache:    cache,
		secure:   o.secure,
	}
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.handlePage).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/races/records/{index:[0-9]+}", h.handleRecord).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/preferences/theme", h.handleToggleTheme).Methods(http.MethodPost)
	r.HandleFunc("/preferences/language", h.handleToggleLanguage).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	r.HandleFunc(apiPrefix+"/races", h.handleRows).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/races/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/races/reload", h.handleReload).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/races/exports", h.handleExportCreate).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/races/exports/{id}", h.handleExportGet).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/preferences", h.handlePreferences).Methods(http.MethodGet)

	// API routes live on the root router: a mux subrouter drops the method
	// mismatch and reports every wrong-method call as not found.
	r.NotFoundHandler = h.logRequests(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if isAPI(req) {
			writeError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		http.NotFound(w, req)
	}))
	r.MethodNotAllowedHandler = h.logRequests(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if isAPI(req) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}))

	r.Use(h.logRequests)
	return r
}

const apiPrefix = "/api/v1"

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, apiPrefix+"/")
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// viewState reads sort, order, q and toggle from the query. An unknown sort
// or toggle field is ignored.
func (h *Handler) viewState(q url.Values) core.ViewState {
	state, err := core.ParseViewState(q)
	if err != nil {
		h.logger.Warn("ignoring sort parameter", zap.Error(err))
	}
	if toggle := q.Get("toggle"); toggle != "" {
		f := domain.Field(strings.ToLower(strings.TrimSpace(toggle)))
		if core.IsSortable(f) {
			state = state.Toggled(f)
		} else {
			h.logger.Warn("ignoring toggle parameter", zap.String("field", toggle))
		}
	}
	return state
}

// view derives the rows for state, reusing a cached derivation of the same
// snapshot generation when available.
func (h *Handler) view(state core.ViewState) core.View {
	snap := h.svc.Snapshot()
	if snap.Status == core.StatusReady {
		if v, ok := h.cache.Get(keyFor(snap.Generation, state)); ok {
			return v
		}
	}
	v := h.svc.NewController(state, nil).View()
	if v.Snapshot.Status == core.StatusReady {
		h.cache.Add(keyFor(v.Snapshot.Generation, v.State), v)
	}
	return v
}

func keyFor(generation uint64, s core.ViewState) viewKey {
	k := viewKey{generation: generation, sort: s.SortField, filter: strings.ToLower(s.Filter)}
	if s.SortField != "" {
		k.order = s.Order()
	}
	return k
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	v := h.view(h.viewState(r.URL.Query()))
	prefs := h.preferences(r)
	h.writeHTML(w, func(buf *bytes.Buffer) error {
		return h.renderer.RenderPage(buf, render.Page{View: v, Prefs: prefs, Query: r.URL.Query().Get("q")})
	})
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rec, _, err := h.svc.Record(index)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	prefs := h.preferences(r)
	back := safeReturn(r.URL.Query().Get("return"))
	h.writeHTML(w, func(buf *bytes.Buffer) error {
		return h.renderer.RenderDetail(buf, render.Detail{Index: index, Record: rec, Prefs: prefs, Back: back})
	})
}

func (h *Handler) writeHTML(w http.ResponseWriter, fn func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.logger.Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type rowsResponse struct {
	Status     core.LoadStatus `json:"status"`
	Generation uint64          `json:"generation"`
	State      core.ViewState  `json:"state"`
	Visible    int             `json:"visible"`
	Total      int             `json:"total"`
	Rows       []core.Row      `json:"rows"`
}

func newRowsResponse(v core.View) rowsResponse {
	rows := v.Rows
	if rows == nil {
		rows = []core.Row{}
	}
	return rowsResponse{
		Status:     v.Status(),
		Generation: v.Snapshot.Generation,
		State:      v.State,
		Visible:    v.Visible,
		Total:      v.Total,
		Rows:       rows,
	}
}

func (h *Handler) handleRows(w http.ResponseWriter, r *http.Request) {
	format := negotiateFormat(r)
	if format == "" {
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
		return
	}
	v := h.view(h.viewState(r.URL.Query()))
	if format == FormatCSV {
		streamCSV(w, v)
		return
	}
	writeJSON(w, http.StatusOK, newRowsResponse(v))
}

// negotiateFormat picks json or csv from ?format or the Accept header. It
// returns "" for anything else.
func negotiateFormat(r *http.Request) ExportFormat {
	wanted := strings.ToLower(r.URL.Query().Get("format"))
	if wanted == "" {
		if strings.Contains(r.Header.Get("Accept"), "text/csv") {
			return FormatCSV
		}
		return FormatJSON
	}
	switch f := ExportFormat(wanted); f {
	case FormatCSV, FormatJSON:
		return f
	}
	return ""
}

func streamCSV(w http.ResponseWriter, v core.View) {
	filename := fmt.Sprintf("races-%d-%s.csv", v.Snapshot.Generation, time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_ = writeCSV(w, v.Rows)
}

type statusResponse struct {
	core.Snapshot
	Records int `json:"records"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.svc.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, Records: snap.Count()})
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Reload(r.Context())
	switch {
	case err == nil, errors.Is(err, core.ErrStaleLoad):
		writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, Records: snap.Count()})
	default:
		h.logger.Warn("reload failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"status": statusResponse{Snapshot: snap, Records: snap.Count()},
		})
	}
}

type exportRequest struct {
	Sort    string   `json:"sort"`
	Order   string   `json:"order"`
	Query   string   `json:"q"`
	Formats []string `json:"formats"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	state, err := core.ParseViewState(url.Values{"sort": {req.Sort}, "order": {req.Order}, "q": {req.Query}})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	formats := make([]ExportFormat, 0, len(req.Formats))
	for _, name := range req.Formats {
		f, ok := ParseExportFormat(strings.ToLower(name))
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported export format")
			return
		}
		formats = append(formats, f)
	}
	record, err := h.exports.EnqueueExport(r.Context(), ExportInput{
		State:       state,
		Preferences: h.preferences(r),
		Formats:     formats,
		RequestedBy: visitorID(r),
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportGet(w http.ResponseWriter, r *http.Request) {
	if h.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	record, ok := h.exports.GetExport(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

type preferencesResponse struct {
	Visitor string `json:"visitor,omitempty"`
	domain.Preferences
}

func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, preferencesResponse{Visitor: visitorID(r), Preferences: h.preferences(r)})
}

func (h *Handler) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.ToggleTheme)
}

func (h *Handler) handleToggleLanguage(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.ToggleLanguage)
}

type toggleFunc func(ctx context.Context, visitorID string, current domain.Preferences) (domain.Preferences, error)

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn toggleFunc) {
	visitor := visitorID(r)
	if visitor == "" {
		visitor = uuid.NewString()
		h.setCookie(w, VisitorCookie, visitor, true)
	}
	next, err := fn(r.Context(), visitor, h.preferences(r))
	if err != nil {
		h.logger.Warn("store preferences", zap.String("visitor", visitor), zap.Error(err))
	}
	h.setCookie(w, ThemeCookie, string(next.Theme), false)
	h.setCookie(w, LanguageCookie, string(next.Language), false)
	http.Redirect(w, r, safeReturn(r.FormValue("return")), http.StatusSeeOther)
}

// preferences resolves the visitor's preferences: the store first, then the
// mirror cookies, then defaults.
func (h *Handler) preferences(r *http.Request) domain.Preferences {
	if visitor := visitorID(r); visitor != "" {
		prefs, found, err := h.svc.Preferences(r.Context(), visitor)
		if err != nil {
			h.logger.Warn("load preferences", zap.String("visitor", visitor), zap.Error(err))
		}
		if found {
			return prefs
		}
	}
	prefs := domain.DefaultPreferences()
	if c, err := r.Cookie(ThemeCookie); err == nil {
		if t, ok := domain.ParseTheme(c.Value); ok {
			prefs.Theme = t
		}
	}
	if c, err := r.Cookie(LanguageCookie); err == nil {
		if l, ok := domain.ParseLanguage(c.Value); ok {
			prefs.Language = l
		}
	}
	return prefs
}

// visitorID returns the visitor cookie when it holds a valid UUID.
func visitorID(r *http.Request) string {
	c, err := r.Cookie(VisitorCookie)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: httpOnly,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeReturn keeps redirects on this site: only absolute paths without a
// host are accepted.
func safeReturn(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.RequestURI()
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "dataset": h.svc.Snapshot().Status})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
