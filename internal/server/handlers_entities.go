package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/auth"
	"github.com/hyperjump/shopassist/internal/metrics"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/notify"
	"github.com/hyperjump/shopassist/internal/recommend"
	"github.com/hyperjump/shopassist/internal/storage"
)

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListOffers(r.Context())
	if err != nil {
		s.fail(w, "list offers", err)
		return
	}
	respondList(w, list)
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var o models.Offer
	if !s.decode(w, r, &o) {
		return
	}
	o.ID = 0
	if err := s.store.CreateOffer(r.Context(), &o); err != nil {
		s.fail(w, "create offer", err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := s.store.GetOffer(r.Context(), id)
	if err != nil {
		s.fail(w, "get offer", err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var o models.Offer
	if !s.decode(w, r, &o) {
		return
	}
	o.ID = id
	if err := s.store.UpdateOffer(r.Context(), &o); err != nil {
		s.fail(w, "update offer", err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.deleted(w, "offer", strconv.FormatInt(id, 10), s.store.DeleteOffer(r.Context(), id))
}

// handleListRecommendations returns every unexpired recommendation. The placeId
// parameter is accepted but does not filter.
func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	if placeID := r.URL.Query().Get("placeId"); placeID != "" {
		s.logger.Debug("listing recommendations", zap.String("place_id", placeID))
	}
	list, err := s.store.ListActiveRecommendations(r.Context(), s.now())
	if err != nil {
		s.fail(w, "list recommendations", err)
		return
	}
	respondList(w, list)
}

func (s *Server) handleInsertRecommendation(w http.ResponseWriter, r *http.Request) {
	var rec models.Recommendation
	if !s.decode(w, r, &rec) {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.store.SaveRecommendation(r.Context(), &rec); err != nil {
		s.fail(w, "insert recommendation", err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	var rec models.Recommendation
	if !s.decode(w, r, &rec) {
		return
	}
	if rec.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	if _, err := s.store.GetRecommendation(r.Context(), rec.ID); err != nil {
		s.fail(w, "update recommendation", err)
		return
	}
	if err := s.store.SaveRecommendation(r.Context(), &rec); err != nil {
		s.fail(w, "update recommendation", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.deleted(w, "recommendation", id, s.store.DeleteRecommendation(r.Context(), id))
}

// handleRegister records a device for push notifications. Registering a known device is a no-op.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	regID := chi.URLParam(r, "regId")
	existing, err := s.store.FindRegistration(r.Context(), regID)
	if err == nil {
		s.logger.Info("device already registered, skipping", zap.String("reg_id", regID))
		respondJSON(w, http.StatusOK, existing)
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, "find registration", err)
		return
	}
	reg := &models.Registration{RegID: regID}
	if err := s.store.CreateRegistration(r.Context(), reg); err != nil {
		s.fail(w, "register device", err)
		return
	}
	respondJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	regID := chi.URLParam(r, "regId")
	s.deleted(w, "registration", regID, s.store.DeleteRegistration(r.Context(), regID))
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	count := s.config.Notifications.MaxDevices
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}
	list, err := s.store.ListRegistrations(r.Context(), count)
	if err != nil {
		s.fail(w, "list registrations", err)
		return
	}
	respondList(w, list)
}

type checkInRequest struct {
	PlaceID string `json:"placeId" validate:"required"`
}

// handleCheckIn stores a check-in for the caller and queues recommendation generation.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	c := &models.CheckIn{
		PlaceID:     req.PlaceID,
		UserEmail:   caller.Email,
		CheckInDate: s.now().UTC(),
	}
	if err := s.store.CreateCheckIn(r.Context(), c); err != nil {
		s.fail(w, "check in", err)
		return
	}
	if s.jobs != nil {
		if err := s.jobs.Enqueue(recommend.Job{PlaceID: c.PlaceID, UserEmail: c.UserEmail}); err != nil {
			metrics.IncRecommendationJob("dropped")
			s.logger.Warn("recommendation job not queued", zap.String("place_id", c.PlaceID), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCheckIns(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListCheckIns(r.Context())
	if err != nil {
		s.fail(w, "list check-ins", err)
		return
	}
	respondList(w, list)
}

func (s *Server) handleGetCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.store.GetCheckIn(r.Context(), id)
	if err != nil {
		s.fail(w, "get check-in", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var c models.CheckIn
	if !s.decode(w, r, &c) {
		return
	}
	c.ID = id
	if c.CheckInDate.IsZero() {
		c.CheckInDate = s.now().UTC()
	}
	if err := s.store.UpdateCheckIn(r.Context(), &c); err != nil {
		s.fail(w, "update check-in", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.deleted(w, "check-in", strconv.FormatInt(id, 10), s.store.DeleteCheckIn(r.Context(), id))
}

// handleSendMessage pushes the posted key/value payload to registered devices.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload notify.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start := time.Now()
	if err := s.notifier.Send(r.Context(), payload); err != nil {
		s.fail(w, "send message", err)
		return
	}
	s.logger.Debug("message dispatched", zap.Int("keys", len(payload)), zap.Duration("duration", time.Since(start)))
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
