package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/model"
	"github.com/omniview-labs/omniview/internal/source"
)

// componentTypeFromPath maps the URL segment to a component type.
func componentTypeFromPath(segment string) (model.ComponentType, bool) {
	switch model.ComponentType(segment) {
	case model.TypeIntegrationProcedure, model.TypeOmniScript, model.TypeDataMapper:
		return model.ComponentType(segment), true
	}
	return "", false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"persistentCache": s.service.PersistentCacheAvailable(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	summary, err := s.service.LoadAll(r.Context(), tenant)
	if err != nil {
		if errors.Is(err, source.ErrListingFailed) {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Caller went away; the reload keeps running server-side.
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	name := chi.URLParam(r, "name")
	componentType, ok := componentTypeFromPath(chi.URLParam(r, "componentType"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, errors.New("unknown component type"))
		return
	}

	ec, found, requiresReload := s.service.GetCached(r.Context(), tenant, componentType, name)
	if requiresReload {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"found":          false,
			"requiresReload": true,
		})
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"found":          false,
			"requiresReload": false,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"found":          true,
		"requiresReload": false,
		"component":      ec,
	})
}

func (s *Server) handleChildHierarchy(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	name := chi.URLParam(r, "name")

	steps, found := s.service.GetChildHierarchy(r.Context(), tenant, name)
	if !found {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"found": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"found": true, "steps": steps})
}

func (s *Server) handleClearTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	s.service.ClearCache(r.Context(), tenant)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.service.ClearAllCaches(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
