package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ielts-speaking/internal/storage"
)

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		respondError(w, msgNoArchive, http.StatusNotFound)
		return
	}
	summaries, err := s.deps.Archive.ListResults()
	if err != nil {
		s.log.Error("list results", "error", err)
		respondError(w, msgResultsFailed, http.StatusInternalServerError)
		return
	}
	respondJSON(w, summaries, http.StatusOK)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		respondError(w, msgNoArchive, http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")

	result, err := s.deps.Archive.LoadResult(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, msgResultNotFound, http.StatusNotFound)
	case err != nil:
		s.log.Error("load result", "id", id, "error", err)
		respondError(w, msgResultsFailed, http.StatusInternalServerError)
	default:
		respondJSON(w, result, http.StatusOK)
	}
}
