package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"imagejob/internal/domain"
	"imagejob/internal/imagegen"
	"imagejob/internal/infra"
	"imagejob/internal/jobs"
	"imagejob/internal/storage"
)

// App holds what the gateway handlers share: one controller per job kind,
// the style catalog and the artifact store.
type App struct {
	Controllers        map[domain.JobKind]*jobs.Controller
	Styles             *imagegen.StyleCatalog
	Store              storage.Store
	MaxUploadDimension int
	AllowedOrigins     []string
	Logger             *infra.Logger
}

// NewApp wires a controller for every known job kind on top of transport.
func NewApp(transport jobs.Transport, styles *imagegen.StyleCatalog, store storage.Store, cfg *infra.Config, logger *infra.Logger) *App {
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	opts := jobs.Options{Logger: logger}
	maxDim := 0
	var origins []string
	if cfg != nil {
		opts.PollInterval = cfg.PollInterval
		opts.PollMaxAttempts = cfg.PollMaxAttempts
		maxDim = cfg.MaxUploadDimension
		origins = cfg.CORSAllowedOrigins
	}
	controllers := make(map[domain.JobKind]*jobs.Controller)
	for _, kind := range imagegen.Kinds() {
		controllers[kind.Kind] = jobs.NewController(transport, kind.Configure(cfg).Spec, opts)
	}
	return &App{
		Controllers:        controllers,
		Styles:             styles,
		Store:              store,
		MaxUploadDimension: maxDim,
		AllowedOrigins:     origins,
		Logger:             logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
