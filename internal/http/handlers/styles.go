package handlers

import (
	"net/http"
)

// FigurineStyles lists the styles a figurine job accepts.
func (a *App) FigurineStyles(w http.ResponseWriter, r *http.Request) {
	styles, err := a.Styles.List(r.Context())
	if err != nil {
		a.error(w, http.StatusServiceUnavailable, "style list unavailable")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"styles": styles})
}
