package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/Deathbringer98/Firemap-WebApp/internal/notify"
	"github.com/Deathbringer98/Firemap-WebApp/internal/reports"
)

const (
	DefaultPath           = "/api.php"
	DefaultMaxBody        = 1 << 20
	DefaultPublishTimeout = 10 * time.Second

	ActionGetReports = "get_reports"
	ActionAddReport  = "add_report"
)

// Store is the part of the report store the API needs.
type Store interface {
	Append(body []byte) (reports.Report, error)
	ListActive(now time.Time) ([]reports.Report, error)
}

// Handler dispatches the single API path by method and ?action=.
// Notifications are delivered in the background, off the request path.
type Handler struct {
	store          Store
	publisher      notify.Publisher
	logger         *log.Logger
	maxBody        int64
	publishTimeout time.Duration
	now            func() time.Time

	inflight sync.WaitGroup
}

// New builds the API handler. publisher may be nil.
func New(store Store, publisher notify.Publisher, logger *log.Logger, maxBody int64) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Handler{
		store:          store,
		publisher:      publisher,
		logger:         logger,
		maxBody:        maxBody,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
}

// Wait blocks until every pending notification has been delivered or has
// timed out. Call it before closing the publisher.
func (h *Handler) Wait() { h.inflight.Wait() }

// RegisterRoutes mounts the handler on path for every method.
func (h *Handler) RegisterRoutes(r chi.Router, path string) {
	r.HandleFunc(path, h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		h.logger.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
		http.Error(w, fmt.Sprintf("Server error: %v", rec), http.StatusInternalServerError)
	}()

	action := r.URL.Query().Get("action")
	switch {
	case r.Method == http.MethodOptions:
		Preflight(w, r)
	case r.Method == http.MethodGet && action == ActionGetReports:
		h.getReports(w, r)
	case r.Method == http.MethodPost && action == ActionAddReport:
		h.addReport(w, r)
	default:
		http.Error(w, "Invalid action", http.StatusBadRequest)
	}
}

func (h *Handler) getReports(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.ListActive(h.now())
	if err != nil {
		h.logger.Printf("get_reports failed: %v", err)
		writeJSON(w, failure(err))
		return
	}
	if active == nil {
		active = []reports.Report{}
	}
	writeJSON(w, map[string]any{"success": true, "reports": active})
}

func (h *Handler) addReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.logger.Printf("add_report body read failed: %v", err)
		writeJSON(w, failure(errors.Wrap(err, "read request body")))
		return
	}

	report, err := h.store.Append(body)
	if err != nil {
		h.logger.Printf("add_report failed: %v", err)
		writeJSON(w, failure(err))
		return
	}

	if h.publisher != nil {
		h.notify(notify.NewReportAdded(report, h.now()))
	}
	writeJSON(w, map[string]any{
		"success": true,
		"message": "Report added successfully",
		"report":  report,
	})
}

// notify publishes ev on its own goroutine. The report is already stored, so
// delivery is bounded by publishTimeout rather than by the request.
func (h *Handler) notify(ev notify.Event) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.publishTimeout)
		defer cancel()
		if err := h.publisher.Publish(ctx, ev); err != nil {
			h.logger.Printf("report notification %s failed: %v", ev.ID, err)
		}
	}()
}

func failure(err error) map[string]any {
	msg := err.Error()
	if errors.Is(err, reports.ErrInvalidPayload) {
		msg = "Invalid JSON data"
	}
	return map[string]any{"success": false, "error": msg}
}

// writeJSON always answers 200; callers signal failure through "success".
func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Server error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	SetCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
