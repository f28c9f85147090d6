package imagegen

import (
	"fmt"
	"sort"
	"strings"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
	"imagejob/internal/jobs"
)

// Kind describes one remote job type: its routes, the fields its result
// body may carry a link in, and a human readable title.
type Kind struct {
	jobs.Spec
	Title string
}

var kinds = map[domain.JobKind]Kind{
	domain.JobKindTryOn: {
		Title: "Virtual try-on",
		Spec: jobs.Spec{
			Kind: domain.JobKindTryOn,
			Routes: jobs.Routes{
				Submit:         "/try-on",
				Status:         "/try-on/status/{task_id}",
				StatusFallback: "/status/{task_id}",
				Result:         "/try-on/result/{task_id}",
				ResultFallback: "/result/{task_id}",
			},
			ResultFields: jobs.DefaultResultFields,
		},
	},
	domain.JobKindHairstyle: {
		Title: "Hairstyle change",
		Spec: jobs.Spec{
			Kind: domain.JobKindHairstyle,
			Routes: jobs.Routes{
				Submit:         "/hairstyle",
				Status:         "/hairstyle/status/{task_id}",
				StatusFallback: "/status/{task_id}",
				Result:         "/hairstyle/result/{task_id}",
				ResultFallback: "/result/{task_id}",
			},
			ResultFields: []string{"image_url", "result_url", "result", "url", "output_url"},
		},
	},
	// The figurine service has no shared status route.
	domain.JobKindFigurine: {
		Title: "Figurine",
		Spec: jobs.Spec{
			Kind: domain.JobKindFigurine,
			Routes: jobs.Routes{
				Submit:         "/figurine",
				Status:         "/figurine/status/{task_id}",
				Result:         "/figurine/result/{task_id}",
				ResultFallback: "/result/{task_id}",
			},
			ResultFields: jobs.DefaultResultFields,
		},
	},
}

// Lookup resolves a job kind by name. Underscores and case are tolerated so
// "TRY_ON" and "try-on" name the same kind.
func Lookup(name string) (Kind, error) {
	key := domain.JobKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-"))
	if key == "tryon" {
		key = domain.JobKindTryOn
	}
	kind, ok := kinds[key]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, name)
	}
	return kind, nil
}

// Kinds lists every supported kind ordered by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Configure returns k with the route overrides for its kind from cfg applied.
func (k Kind) Configure(cfg *infra.Config) Kind {
	if cfg == nil {
		return k
	}
	o, ok := cfg.Routes[string(k.Kind)]
	if !ok {
		return k
	}
	apply := func(dst *string, v string) {
		switch v {
		case "":
		case infra.RouteDisabled:
			*dst = ""
		default:
			*dst = v
		}
	}
	apply(&k.Routes.Submit, o.Submit)
	apply(&k.Routes.Status, o.Status)
	apply(&k.Routes.StatusFallback, o.StatusFallback)
	apply(&k.Routes.Result, o.Result)
	apply(&k.Routes.ResultFallback, o.ResultFallback)
	return k
}

// CheckRoutes rejects route overrides naming a kind that does not exist.
func CheckRoutes(cfg *infra.Config) error {
	if cfg == nil {
		return nil
	}
	for name := range cfg.Routes {
		if _, ok := kinds[domain.JobKind(name)]; !ok {
			return fmt.Errorf("route override: %w: %q", domain.ErrUnknownKind, name)
		}
	}
	return nil
}
