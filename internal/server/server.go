// Package server is a minimal reference sink for availability payloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"PharmacyScanner/internal/database"
	"PharmacyScanner/internal/delivery"
	"PharmacyScanner/internal/models"
)

// ListResponse is the body of GET /internal/availability.
type ListResponse struct {
	Data       []database.Observation `json:"data"`
	Pagination Pagination             `json:"pagination"`
}

// Pagination describes the returned page.
type Pagination struct {
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
	Total       int `json:"total"`
}

// Server exposes the sink endpoints over a SQLite repository.
type Server struct {
	repo   *database.Repository
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(repo *database.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{repo: repo, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(delivery.AvailabilityPath, s.handleCreate)
	r.Get(delivery.AvailabilityPath, s.handleList)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p models.AvailabilityPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if p.PharmacyID == "" || p.Product == "" || !p.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pharmacyId, product and a valid status are required"})
		return
	}
	if _, err := p.ObservedAt(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timestamp must be RFC3339"})
		return
	}

	id, err := s.repo.SaveObservation(r.Context(), p)
	if err != nil {
		s.logger.Error("server: save observation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store observation"})
		return
	}
	s.logger.Info("server: observation stored", "id", id, "pharmacyId", p.PharmacyID, "product", p.Product, "status", p.Status)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}

	filters := database.Filters{
		PharmacyID: q.Get("pharmacyId"),
		Product:    q.Get("product"),
		Status:     models.Status(q.Get("status")),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	total, err := s.repo.CountObservations(r.Context(), filters)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to count observations"})
		return
	}
	data, err := s.repo.ListObservations(r.Context(), filters)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list observations"})
		return
	}
	if data == nil {
		data = []database.Observation{}
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Data: data,
		Pagination: Pagination{
			TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
			CurrentPage: page,
			Total:       total,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
