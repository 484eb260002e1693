package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/auth"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/places"
	"github.com/hyperjump/shopassist/internal/storage"
	"github.com/hyperjump/shopassist/internal/validate"
)

const (
	maintenanceCompleted = "MaintenanceTasks completed"
	maintenanceFailed    = "MaintenanceTasks failed. Try again by refreshing."
)

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.auth.Login(req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Info("login rejected", zap.String("email", req.Email))
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.fail(w, "issue token", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := places.ParseNearbyRequest(q.Get("latitude"), q.Get("longitude"), q.Get("distanceInKm"), q.Get("count"), s.limits)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("nearby request",
		zap.Stringer("origin", req.Origin),
		zap.Float64("distance_km", req.DistanceKm),
		zap.Int("count", req.Count))
	results, err := s.engine.FindNearby(r.Context(), req.Origin, req.MaxDistanceMeters(), req.Count)
	if err != nil {
		s.fail(w, "nearby search", err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleListPlaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPlaces(r.Context())
	if err != nil {
		s.fail(w, "list places", err)
		return
	}
	respondList(w, list)
}

func (s *Server) handleCreatePlace(w http.ResponseWriter, r *http.Request) {
	var p models.Place
	if !s.decodeValid(w, r, &p) {
		return
	}
	p.ID = 0
	if err := s.store.CreatePlace(r.Context(), &p); err != nil {
		s.fail(w, "create place", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.store.GetPlace(r.Context(), id)
	if err != nil {
		s.fail(w, "get place", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p models.Place
	if !s.decodeValid(w, r, &p) {
		return
	}
	p.ID = id
	if err := s.store.UpdatePlace(r.Context(), &p); err != nil {
		s.fail(w, "update place", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.deleted(w, "place", strconv.FormatInt(id, 10), s.store.DeletePlace(r.Context(), id))
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.maintainer.RebuildFromStore(r.Context()); err != nil {
		s.logger.Error("index rebuild failed", zap.Error(err), zap.Bool("transient", places.IsTransient(err)))
		respondError(w, http.StatusServiceUnavailable, maintenanceFailed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": maintenanceCompleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	placeCount, err := s.store.CountPlaces(ctx)
	if err != nil {
		s.fail(w, "status: count places", err)
		return
	}
	resp := map[string]interface{}{
		"places":       placeCount,
		"index":        s.config.Index.Backend,
		"degraded_geo": s.engine.DegradedGeo(),
	}
	if s.index != nil {
		docs, err := s.index.Count(ctx)
		if err != nil {
			s.logger.Warn("status: count index documents failed", zap.Error(err))
		} else {
			resp["indexed_documents"] = docs
		}
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.BleveIndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	respondJSON(w, http.StatusOK, resp)
}

// fail logs err and writes the matching status.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	respondError(w, status, err.Error())
}

// deleted answers a delete. A missing entity is logged and still reported as deleted.
func (s *Server) deleted(w http.ResponseWriter, kind, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info(kind+" not found, skipping deletion", zap.String("id", id))
		err = nil
	}
	if err != nil {
		s.fail(w, "delete "+kind, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func statusForError(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch places.KindOf(err) {
	case places.BadRequest:
		return http.StatusBadRequest
	case places.Transient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// decodeValid decodes v and also checks coordinates when v is a place.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if !s.decode(w, r, v) {
		return false
	}
	if p, ok := v.(*models.Place); ok {
		if err := p.Location.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// respondList writes items as a JSON array, never null.
func respondList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	respondJSON(w, http.StatusOK, items)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
