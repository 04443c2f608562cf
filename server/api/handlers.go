package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/task"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Lists   ListManager
	Bus     comms.Bus
	Logger  *slog.Logger
	Version string
	StartAt time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/lists", h.listLists)
	mux.HandleFunc("GET /api/lists/{entity}/items", h.listItems)
	mux.HandleFunc("POST /api/lists/{entity}/items", h.addItem)
	mux.HandleFunc("POST /api/lists/{entity}/jobs/{kind}", h.submitJob)

	mux.HandleFunc("POST /api/smartlists/rebuild", h.rebuildSmartLists)
	mux.HandleFunc("POST /api/parse", h.parse)
	mux.HandleFunc("GET /api/guards", h.guards)
	mux.HandleFunc("GET /api/workers", h.workers)

	mux.HandleFunc("GET /api/events", h.listEvents)

	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a list manager error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownList), errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case task.IsUnsupported(err):
		return http.StatusNotImplemented
	}
	return http.StatusBadGateway
}

// --- List handlers ---

func (h *Handlers) listLists(w http.ResponseWriter, _ *http.Request) {
	lists := h.Lists.Lists()
	if lists == nil {
		lists = []ListInfo{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *Handlers) listItems(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	items, err := h.Lists.Items(r.Context(), entity)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if items == nil {
		items = []task.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// addItemRequest is the body accepted by POST /api/lists/{entity}/items.
type addItemRequest struct {
	Summary string `json:"summary"`
	Due     string `json:"due,omitempty"` // "2006-01-02" or "2006-01-02 15:04"
}

func (h *Handlers) addItem(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	var body addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Summary) == "" {
		writeError(w, http.StatusBadRequest, "summary is required")
		return
	}
	req := task.AddRequest{Summary: body.Summary}
	if body.Due != "" {
		due, err := task.ParseDue(body.Due, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Due = &due
	}
	if err := h.Lists.AddItem(r.Context(), entity, req); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"entity": entity, "summary": body.Summary})
}

// jobResponse is returned when a job is accepted.
type jobResponse struct {
	Entity string            `json:"entity"`
	Job    reconcile.JobKind `json:"job"`
	Queued bool              `json:"queued"` // false when the same job was already pending
}

func (h *Handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	kind, err := reconcile.ParseJobKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	queued, err := h.Lists.Submit(entity, kind)
	if err != nil {
		if errors.Is(err, ErrUnknownList) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Entity: entity, Job: kind, Queued: queued})
}

func (h *Handlers) rebuildSmartLists(w http.ResponseWriter, _ *http.Request) {
	queued, err := h.Lists.RebuildSmartLists()
	if err != nil {
		if errors.Is(err, ErrUnknownList) {
			writeError(w, http.StatusNotFound, "smart lists are not configured")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{Entity: reconcile.SmartListsWorker, Job: reconcile.JobSmartLists, Queued: queued})
}

// --- Parsing / introspection ---

// parseRequest is the body accepted by POST /api/parse.
type parseRequest struct {
	Title string `json:"title"`
}

func (h *Handlers) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	writeJSON(w, http.StatusOK, h.Lists.Preview(req.Title))
}

func (h *Handlers) guards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Lists.Guards())
}

func (h *Handlers) workers(w http.ResponseWriter, _ *http.Request) {
	workers := h.Lists.Workers()
	if workers == nil {
		workers = []reconcile.WorkerInfo{}
	}
	writeJSON(w, http.StatusOK, workers)
}

// --- Event handlers ---

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.Bus.History(entity, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*comms.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		body["uptime"] = time.Since(h.StartAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, body)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
