package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"regcal/internal/catalog"
	"regcal/internal/config"
	"regcal/internal/ics"
	appLog "regcal/internal/log"
	"regcal/internal/meeting"
	"regcal/internal/model"
	"regcal/internal/schedule"
	"regcal/internal/upload"
)

// uploadField is the multipart form field carrying the spreadsheet.
const uploadField = "file"

// Catalog provides the current catalog snapshot. *catalog.Store implements it.
type Catalog interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Server provides the upload page and the conversion API.
type Server struct {
	cfg     *config.Config
	catalog Catalog
	loc     *time.Location
	now     func() time.Time
	mux     *http.ServeMux
}

//go:embed static
var embeddedStatic embed.FS

// NewServer constructs a new Server. loc is the wall-clock zone events are
// built in; nil means time.Local.
func NewServer(cfg *config.Config, cat Catalog, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:     cfg,
		catalog: cat,
		loc:     loc,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/courses", s.handleCourses)
	s.mux.HandleFunc("POST /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("POST /api/preview", s.handlePreview)
	s.mux.Handle("GET /", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCourses passes the upstream catalog feed through as JSON.
func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	snap, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", snap.FetchedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Raw)
}

// handleCalendar converts an uploaded registration spreadsheet into an
// iCalendar download.
//
// POST /api/calendar (multipart/form-data, field "file")
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	events, ok := s.convert(w, r)
	if !ok {
		return
	}

	body, err := ics.Serialize(events, ics.WriteOptions{
		Name:  s.cfg.CalendarName,
		Stamp: s.now(),
	})
	if err != nil {
		appLog.Error("calendar serialization failed", err)
		writeError(w, http.StatusInternalServerError, "failed to write calendar")
		return
	}

	w.Header().Set("Content-Type", ics.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ics.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// previewResponse is the JSON response shape for /api/preview.
type previewResponse struct {
	Events        []eventDTO         `json:"events"`
	Occurrences   []model.Occurrence `json:"occurrences"`
	TruncatedUIDs []string           `json:"truncated_uids,omitempty"`
}

// eventDTO is a JSON-friendly view of an event.
type eventDTO struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location"`
	Categories  []string  `json:"categories"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	RRule       string    `json:"rrule"`
}

// handlePreview runs the same conversion as /api/calendar and returns the
// events and their expanded occurrences as JSON.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	events, ok := s.convert(w, r)
	if !ok {
		return
	}

	expanded, err := schedule.Expand(events, schedule.ExpandConfig{})
	if err != nil {
		appLog.Error("preview expansion failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		cats := ev.Categories
		if cats == nil {
			cats = []string{}
		}
		dtos = append(dtos, eventDTO{
			UID:         ev.UID,
			Title:       ev.Title,
			Description: ev.Description,
			Location:    ev.Location,
			Categories:  cats,
			Start:       ev.Start,
			End:         ev.End,
			RRule:       ev.Recurrence.String(),
		})
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Events:        dtos,
		Occurrences:   expanded.Occurrences,
		TruncatedUIDs: expanded.TruncatedEvents,
	})
}

// convert reads the uploaded spreadsheet, validates it, and joins it
// against the catalog. It writes the error response itself and reports
// false on failure.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) ([]model.Event, bool) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form with a \""+uploadField+"\" file")
		return nil, false
	}

	file, hdr, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return nil, false
	}
	defer file.Close()

	// Validate the whole upload before touching the catalog.
	rows, err := upload.ReadXLSX(file)
	if err != nil {
		appLog.Info("upload rejected", "filename", hdr.Filename, "reason", err.Error())
		writeFailure(w, err)
		return nil, false
	}

	snap, err := s.catalog.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}

	events, err := schedule.Build(rows, snap.Index, schedule.Options{Location: s.loc})
	if err != nil {
		appLog.Error("schedule build failed", err, "rows", len(rows))
		writeFailure(w, err)
		return nil, false
	}

	appLog.Info("schedule built",
		"rows", len(rows),
		"events", len(events),
		"unmatched", len(rows)-len(events),
	)
	return events, true
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	var (
		parseErr *meeting.ParseError
		dateErr  *schedule.DateError
	)
	switch {
	case errors.Is(err, upload.ErrMalformedUpload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &parseErr), errors.As(err, &dateErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, catalog.ErrUpstreamUnavailable), errors.Is(err, catalog.ErrMalformedFeed):
		writeError(w, http.StatusBadGateway, "course catalog unavailable")
	default:
		appLog.Error("unhandled request failure", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// staticFileServer serves the embedded upload page.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

// StartServer serves s.Handler on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
