package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yuanying/epubrsvp/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	success(w, s.settings.Load(r.Context()), s.logger)
}

// handleSaveSettings replaces every setting.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	st := s.settings.Load(r.Context())
	if err := decodeJSON(w, r, &st); err != nil {
		badRequest(w, "invalid request body", s.logger)
		return
	}
	if err := s.settings.Save(r.Context(), st); err != nil {
		s.settingsError(w, err)
		return
	}
	success(w, st, s.logger)
}

// handleSetSetting updates one setting from {"value": ...}.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value any `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Value == nil {
		badRequest(w, "value is required", s.logger)
		return
	}
	st, err := s.settings.Set(r.Context(), chi.URLParam(r, "key"), fmt.Sprint(req.Value))
	if err != nil {
		s.settingsError(w, err)
		return
	}
	success(w, st, s.logger)
}

func (s *Server) settingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settings.ErrUnknownKey):
		notFound(w, err.Error(), s.logger)
	case errors.Is(err, settings.ErrInvalid):
		badRequest(w, err.Error(), s.logger)
	default:
		internalError(w, err, s.logger)
	}
}
