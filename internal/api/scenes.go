package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scenewatch/scenewatch/internal/scene"
)

// handleListScenes returns every scene's runtime status.
//
// GET /api/v1/scenes
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	statuses, err := s.engine.Statuses()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": statuses,
		"count":  len(statuses),
	})
}

// handleGetScene returns one scene's runtime status.
//
// GET /api/v1/scenes/{id}
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.engine.Status(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleActivateScene triggers optimistic scene activation.
//
// POST /api/v1/scenes/{id}/activate
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.Activate(id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("scene activated via API", "scene_id", id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scene_id": id,
		"active":   true,
	})
}

// handleDeactivateScene turns off a scene's member entities.
//
// POST /api/v1/scenes/{id}/deactivate
func (s *Server) handleDeactivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.engine.Deactivate(id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("scene deactivated via API", "scene_id", id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scene_id": id,
		"active":   false,
	})
}

// handleListTransitions returns a scene's recent published-state flips,
// newest first.
//
// GET /api/v1/scenes/{id}/transitions?limit=50
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "transition history not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.engine.Status(id); err != nil {
		writeEngineError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	transitions, err := s.store.RecentTransitions(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("transition query failed", "scene_id", id, "error", err)
		writeInternalError(w, "failed to query transitions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scene_id":    id,
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// handleReload re-reads scene definitions from disk and installs them.
//
// POST /api/v1/reload
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reload not enabled")
		return
	}

	count, err := s.reloader.Reload(r.Context())
	if err != nil {
		s.logger.Error("scene reload failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	s.logger.Info("scenes reloaded via API", "scenes", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": count,
	})
}

// writeEngineError maps scene engine errors onto HTTP responses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scene.ErrSceneNotFound):
		writeNotFound(w, "scene not found")
	case errors.Is(err, scene.ErrUnresolvedEntity):
		writeError(w, http.StatusConflict, ErrCodeConflict, "no host scene entity resolved for this scene")
	case errors.Is(err, scene.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "engine is shutting down")
	default:
		writeInternalError(w, err.Error())
	}
}
