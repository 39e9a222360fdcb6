package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"scalper_go/internal/domain"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// JournalReader is the query side of the execution journal. Implemented by *storage.Journal.
type JournalReader interface {
	Recent(kind string, limit int) ([]domain.JournalEntry, error)
	ByClientID(clientID string) ([]domain.JournalEntry, error)
}

// Deps is what the ops endpoints read from.
type Deps struct {
	Status  *StatusService
	Metrics http.Handler                     // promhttp handler
	Journal JournalReader                    // nil disables /journal
	Streams map[string]domain.ExchangeWorker // reported by /healthz
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRouter builds the ops routes: /healthz, /metrics, /status and /journal.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()
	h := &handlers{deps: deps}

	r.HandleFunc("/healthz", h.health).Methods("GET")
	r.HandleFunc("/status", h.status).Methods("GET")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods("GET")
	}
	if deps.Journal != nil {
		r.HandleFunc("/journal", h.journal).Methods("GET")
		r.HandleFunc("/journal/{clientID}", h.journalByID).Methods("GET")
	}
	return r
}

// Server serves the ops router until its context ends.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wraps router with CORS for allowedOrigins (none means same-origin only).
func NewServer(addr string, router http.Handler, allowedOrigins []string) *Server {
	handler := router
	if len(allowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
		}).Handler(router)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: slog.Default().With("module", "ops"),
	}
}

// Run listens until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Ops server started", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
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
		return s.srv.Shutdown(shutdownCtx)
	}
}

type handlers struct {
	deps Deps
}

type healthResponse struct {
	Status  string          `json:"status"`
	Streams map[string]bool `json:"streams,omitempty"`
	Updates uint64          `json:"updates"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Streams: make(map[string]bool, len(h.deps.Streams))}
	for name, s := range h.deps.Streams {
		up := s.IsConnected()
		resp.Streams[name] = up
		if !up {
			resp.Status = "degraded"
		}
	}
	if h.deps.Status != nil {
		resp.Updates = h.deps.Status.Updates()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondStatus(w, status, resp)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	if h.deps.Status == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "status not wired")
		return
	}
	snap, ok := h.deps.Status.Snapshot()
	if !ok {
		respondError(w, http.StatusServiceUnavailable, "warming_up", "no event processed yet")
		return
	}
	respondJSON(w, snap)
}

func (h *handlers) journal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.deps.Journal.Recent(r.URL.Query().Get("kind"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal", err.Error())
		return
	}
	respondJSON(w, entries)
}

func (h *handlers) journalByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["clientID"]
	entries, err := h.deps.Journal.ByClientID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal", err.Error())
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, "not_found", "no entries for "+id)
		return
	}
	respondJSON(w, entries)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondStatus(w, status, ErrorResponse{Error: error, Message: message})
}
