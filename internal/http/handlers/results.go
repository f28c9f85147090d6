package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"imagejob/internal/storage"
)

// Result serves an artifact stored by a finished stream.
func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "*"))
	if key == "" {
		a.error(w, http.StatusNotFound, "not found")
		return
	}
	data, err := a.Store.Read(r.Context(), key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		a.error(w, http.StatusNotFound, "not found")
		return
	case err != nil:
		a.Logger.Warn().Err(err).Str("key", key).Msg("http: read result")
		a.error(w, http.StatusBadRequest, "invalid result key")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
