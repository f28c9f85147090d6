package imagegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestLookupKinds(t *testing.T) {
	for _, name := range []string{"try-on", "TRY_ON", "tryon"} {
		kind, err := Lookup(name)
		if err != nil {
			t.Fatalf("lookup %q: %v", name, err)
		}
		if kind.Kind != domain.JobKindTryOn {
			t.Fatalf("lookup %q = %s", name, kind.Kind)
		}
	}
	if _, err := Lookup("upscale"); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestKindsShareOneShape(t *testing.T) {
	all := Kinds()
	if len(all) != 3 {
		t.Fatalf("kinds = %d, want 3", len(all))
	}
	for _, k := range all {
		if k.Routes.Submit == "" || !strings.Contains(k.Routes.Status, "{task_id}") || !strings.Contains(k.Routes.Result, "{task_id}") {
			t.Fatalf("kind %s has incomplete routes: %+v", k.Kind, k.Routes)
		}
		if len(k.ResultFields) == 0 {
			t.Fatalf("kind %s has no result fields", k.Kind)
		}
	}
	figurine, _ := Lookup("figurine")
	if figurine.Routes.StatusFallback != "" {
		t.Fatalf("figurine should not have a status fallback")
	}
}

func TestKindConfigureAppliesRouteOverrides(t *testing.T) {
	cfg := &infra.Config{Routes: map[string]infra.RouteOverride{
		"try-on": {Status: "/v2/jobs/{task_id}", StatusFallback: infra.RouteDisabled},
	}}
	kind, err := Lookup("try-on")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	got := kind.Configure(cfg).Routes
	if got.Status != "/v2/jobs/{task_id}" || got.StatusFallback != "" {
		t.Fatalf("routes = %+v", got)
	}
	if got.Submit != "/try-on" || got.ResultFallback != "/result/{task_id}" {
		t.Fatalf("untouched routes changed: %+v", got)
	}
	if kind.Routes.Status != "/try-on/status/{task_id}" {
		t.Fatalf("built-in routes must not be mutated: %+v", kind.Routes)
	}

	hair, _ := Lookup("hairstyle")
	if hair.Configure(cfg).Routes != hair.Routes {
		t.Fatalf("other kinds must keep their routes")
	}
	if hair.Configure(nil).Routes != hair.Routes {
		t.Fatalf("nil config must keep the routes")
	}
}

func TestCheckRoutesRejectsUnknownKinds(t *testing.T) {
	ok := &infra.Config{Routes: map[string]infra.RouteOverride{"figurine": {Submit: "/v2/figurine"}}}
	if err := CheckRoutes(ok); err != nil {
		t.Fatalf("check: %v", err)
	}
	bad := &infra.Config{Routes: map[string]infra.RouteOverride{"upscale": {Submit: "/upscale"}}}
	if err := CheckRoutes(bad); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestTryOnPayload(t *testing.T) {
	payload, err := TryOnPayload(pngHeader, []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Media) != 2 {
		t.Fatalf("media = %d, want 2", len(payload.Media))
	}
	if payload.Media[0].Field != "person_image" || payload.Media[0].MIME != "image/png" || payload.Media[0].Filename != "person_image.png" {
		t.Fatalf("person media = %+v", payload.Media[0])
	}
	if payload.Media[1].MIME != "image/jpeg" {
		t.Fatalf("garment mime = %q", payload.Media[1].MIME)
	}
	if _, err := TryOnPayload(pngHeader, nil); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestHairstylePayloadNormalizesDescription(t *testing.T) {
	payload, err := HairstylePayload(pngHeader, "  short\tbob \n with   bangs ")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got := payload.Fields["description"]; got != "short bob with bangs" {
		t.Fatalf("description = %q", got)
	}
	if _, err := HairstylePayload(pngHeader, " \n "); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	long := NormalizeDescription(strings.Repeat("é", maxDescriptionRunes+20))
	if n := len([]rune(long)); n != maxDescriptionRunes {
		t.Fatalf("runes = %d, want %d", n, maxDescriptionRunes)
	}
}

type stubStyles struct {
	keys []string
	err  error
}

func (s stubStyles) Styles(ctx context.Context) ([]string, error) {
	return s.keys, s.err
}

func TestStyleCatalogList(t *testing.T) {
	catalog := NewStyleCatalog(stubStyles{keys: []string{"Pixel Art", "pixel_art", "resin-kit", " "}}, nil)
	styles, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(styles) != 2 {
		t.Fatalf("styles = %+v, want 2 after dedupe", styles)
	}
	if styles[0].Key != "pixel_art" || styles[0].Title != "Pixel Art" {
		t.Fatalf("first style = %+v", styles[0])
	}
	if styles[1].Title != "Resin Kit" {
		t.Fatalf("second style = %+v", styles[1])
	}
}

func TestStyleCatalogFallsBackToBuiltIns(t *testing.T) {
	catalog := NewStyleCatalog(stubStyles{err: errors.New("status 404")}, nil)
	styles, err := catalog.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(styles) != len(DefaultStyleKeys) {
		t.Fatalf("styles = %d, want built-ins", len(styles))
	}
}

func TestStyleCatalogResolve(t *testing.T) {
	catalog := NewStyleCatalog(nil, nil)
	style, err := catalog.Resolve(context.Background(), " Chibi ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	payload, err := FigurinePayload(pngHeader, style)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Fields["style"] != "chibi" {
		t.Fatalf("style field = %q", payload.Fields["style"])
	}
	if _, err := catalog.Resolve(context.Background(), "baroque"); !errors.Is(err, domain.ErrUnknownStyle) {
		t.Fatalf("err = %v, want ErrUnknownStyle", err)
	}
}

func TestBuildPayloadPerKind(t *testing.T) {
	ctx := context.Background()
	catalog := NewStyleCatalog(nil, nil)
	req := Request{Person: pngHeader, Garment: pngHeader, Photo: pngHeader, Description: "curly", Style: "clay"}

	tryOn, err := BuildPayload(ctx, catalog, domain.JobKindTryOn, req, 1024)
	if err != nil || len(tryOn.Media) != 2 {
		t.Fatalf("try-on payload = %+v, %v", tryOn, err)
	}
	hair, err := BuildPayload(ctx, catalog, domain.JobKindHairstyle, req, 1024)
	if err != nil || hair.Fields["description"] != "curly" {
		t.Fatalf("hairstyle payload = %+v, %v", hair, err)
	}
	fig, err := BuildPayload(ctx, nil, domain.JobKindFigurine, req, 1024)
	if err != nil || fig.Fields["style"] != "clay" {
		t.Fatalf("figurine payload = %+v, %v", fig, err)
	}
	if _, err := BuildPayload(ctx, catalog, domain.JobKind("upscale"), req, 1024); !errors.Is(err, domain.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := BuildPayload(ctx, catalog, domain.JobKindFigurine, Request{Photo: pngHeader, Style: "oil"}, 0); !errors.Is(err, domain.ErrUnknownStyle) {
		t.Fatalf("err = %v, want ErrUnknownStyle", err)
	}
}
