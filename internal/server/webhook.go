package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"portal-sync/internal/domain"
	"portal-sync/internal/store"
)

const (
	SecretHeader  = "x-portal-secret"
	maxTitleLen   = 128
	maxBodyLen    = 512
	maxUpdateSize = 64 << 10
)

var allowedUpdateTypes = []string{
	domain.UpdateTypeUpdate,
	domain.UpdateTypeAction,
	domain.UpdateTypeMilestone,
	domain.UpdateTypeMessage,
}

// pushUpdate is the payload the CRM workflow posts. ProjectID is the HubSpot
// service id, not the local one.
type pushUpdate struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	ProjectID  string `json:"projectId"`
	OccurredAt string `json:"occurred_at"`
	Type       string `json:"type"`
}

type apiError struct {
	Error string `json:"error"`
}

func (s *Server) handlePushUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, apiError{"Unauthorized"})
		return
	}

	var in pushUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{"Invalid request"})
		return
	}
	status, msg, occurred := validateUpdate(in)
	if status != 0 {
		writeJSON(w, status, apiError{msg})
		return
	}

	ctx := r.Context()
	project, err := s.store.GetProjectByServiceID(ctx, in.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, apiError{"Could not find project"})
		return
	}
	if err != nil {
		s.log.Error("webhook project lookup failed", zap.String("service_id", in.ProjectID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{"Could not load project"})
		return
	}

	u := &domain.ServiceUpdate{
		ProjectID:  project.ID,
		Title:      in.Title,
		Body:       in.Body,
		Type:       in.Type,
		OccurredAt: occurred,
	}
	if err := s.store.InsertServiceUpdate(ctx, u); err != nil {
		s.log.Error("webhook insert failed", zap.String("service_id", in.ProjectID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{err.Error()})
		return
	}

	s.log.Info("service update stored",
		zap.String("service_id", in.ProjectID), zap.String("update_id", u.ID), zap.String("type", u.Type))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": u.ID})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.WebhookSecret == "" {
		return false
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) == 1
}

// validateUpdate returns a non-zero status and message when the payload is rejected.
func validateUpdate(in pushUpdate) (int, string, time.Time) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Body) == "" ||
		strings.TrimSpace(in.ProjectID) == "" || strings.TrimSpace(in.OccurredAt) == "" || in.Type == "" {
		return http.StatusBadRequest, "Missing required field", time.Time{}
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return http.StatusUnprocessableEntity, "Title is too long (max 128)", time.Time{}
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLen {
		return http.StatusUnprocessableEntity, "Body is too long (max 512)", time.Time{}
	}
	if !slices.Contains(allowedUpdateTypes, in.Type) {
		return http.StatusUnprocessableEntity, "Invalid type. Must be one of: " + strings.Join(allowedUpdateTypes, ", ") + ".", time.Time{}
	}
	occurred, err := time.Parse(time.RFC3339, strings.TrimSpace(in.OccurredAt))
	if err != nil {
		return http.StatusUnprocessableEntity, "occurred_at must be an RFC 3339 timestamp", time.Time{}
	}
	return 0, "", occurred
}
