// Package adminapi implements the read-only operator surface named in
// spec.md §6.2, served as GET /admin/events and GET /admin/stats: the
// event log, the bus's current admission-queue depth and per-state item
// counts. Routes are registered on a standard library net/http mux.
package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vmunix/wantarr/internal/events"
	"github.com/vmunix/wantarr/internal/item"
	"github.com/vmunix/wantarr/internal/store"
)

// EventLog is the subset of internal/events.EventLog the admin API needs.
type EventLog interface {
	Since(t time.Time) ([]events.RawEvent, error)
}

// Bus is the subset of internal/events.Bus the admin API needs.
type Bus interface {
	Stats() events.QueueStats
}

// ItemStore is the subset of internal/store.Store the admin API needs
// to report per-state item counts.
type ItemStore interface {
	CountWhere(f store.Filter) (int, error)
}

// Server serves the admin API's read-only routes.
type Server struct {
	log    EventLog
	bus    Bus
	store  ItemStore
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Server. bus and store may be nil (e.g. a deployment
// still bootstrapping), in which case the corresponding fields in the
// /stats response are omitted.
func New(log EventLog, bus Bus, st ItemStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{log: log, bus: bus, store: st, now: time.Now, logger: logger.With("component", "adminapi")}
}

// RegisterRoutes registers the admin routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/events", s.listEvents)
	mux.HandleFunc("GET /admin/stats", s.getStats)
}

type eventResponse struct {
	ID         int64  `json:"id"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload"`
	OccurredAt string `json:"occurred_at"`
}

// listEvents serves GET /admin/events?since=<RFC3339>, defaulting to
// the last hour when since is absent or unparsable.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	since := s.now().Add(-time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}

	raw, err := s.log.Since(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "EVENTS_ERROR", err.Error())
		return
	}

	resp := make([]eventResponse, len(raw))
	for i, e := range raw {
		resp[i] = eventResponse{
			ID:         e.ID,
			EventType:  e.EventType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    e.Payload,
			OccurredAt: e.OccurredAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Queue        *queueStatsResponse `json:"queue,omitempty"`
	ItemsByState map[string]int      `json:"items_by_state,omitempty"`
}

type queueStatsResponse struct {
	Queued  map[string]int `json:"queued"`
	Running map[string]int `json:"running"`
}

// statesReported are the item.State values surfaced in GET /admin/stats,
// every lifecycle stage named in spec.md §3 except StateUnknown (never
// a real item's terminal state, only DeriveState's zero value).
var statesReported = []item.State{
	item.StateRequested,
	item.StateIndexed,
	item.StateScraped,
	item.StateDownloaded,
	item.StateSymlinked,
	item.StateCompleted,
	item.StatePartiallyCompleted,
	item.StateFailed,
	item.StateUnreleased,
}

// getStats serves GET /admin/stats: current queue depth per service and
// item counts per lifecycle state.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{}

	if s.bus != nil {
		qs := s.bus.Stats()
		queued := make(map[string]int, len(qs.Queued))
		for name, n := range qs.Queued {
			queued[string(name)] = n
		}
		running := make(map[string]int, len(qs.Running))
		for name, n := range qs.Running {
			running[string(name)] = n
		}
		resp.Queue = &queueStatsResponse{Queued: queued, Running: running}
	}

	if s.store != nil {
		byState := make(map[string]int, len(statesReported))
		for _, st := range statesReported {
			n, err := s.store.CountWhere(store.Filter{States: []item.State{st}})
			if err != nil {
				writeError(w, http.StatusInternalServerError, "STATS_ERROR", err.Error())
				return
			}
			byState[string(st)] = n
		}
		resp.ItemsByState = byState
	}

	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
