package handlers

import (
	"net/http"
	"sort"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	kinds := make([]string, 0, len(a.Controllers))
	for kind := range a.Controllers {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "kinds": kinds})
}
