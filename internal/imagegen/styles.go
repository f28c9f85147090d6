package imagegen

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// DefaultStyleKeys is used when the remote style list cannot be fetched.
var DefaultStyleKeys = []string{"collectible", "chibi", "anime", "clay", "plush", "pixel_art"}

// Style is one figurine style.
type Style struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// StyleSource fetches the style keys offered by the remote service.
type StyleSource interface {
	Styles(ctx context.Context) ([]string, error)
}

// StyleCatalog lists and validates figurine styles.
type StyleCatalog struct {
	source StyleSource
	logger *infra.Logger
}

func NewStyleCatalog(source StyleSource, logger *infra.Logger) *StyleCatalog {
	return &StyleCatalog{source: source, logger: logger}
}

// List returns the available styles. A failing or empty remote list falls
// back to DefaultStyleKeys.
func (c *StyleCatalog) List(ctx context.Context) ([]Style, error) {
	keys := DefaultStyleKeys
	if c.source != nil {
		remote, err := c.source.Styles(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			if c.logger != nil {
				c.logger.Warn().Err(err).Msg("imagegen: style list unavailable; using built-in styles")
			}
		case len(remote) > 0:
			keys = remote
		}
	}

	title := cases.Title(language.English)
	seen := make(map[string]struct{}, len(keys))
	styles := make([]Style, 0, len(keys))
	for _, raw := range keys {
		key := normalizeStyleKey(raw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		styles = append(styles, Style{
			Key:   key,
			Title: title.String(strings.NewReplacer("_", " ", "-", " ").Replace(key)),
		})
	}
	return styles, nil
}

// Resolve validates a requested style key against the catalog.
func (c *StyleCatalog) Resolve(ctx context.Context, requested string) (Style, error) {
	styles, err := c.List(ctx)
	if err != nil {
		return Style{}, err
	}
	key := normalizeStyleKey(requested)
	for _, s := range styles {
		if s.Key == key {
			return s, nil
		}
	}
	return Style{}, fmt.Errorf("%w: %q", domain.ErrUnknownStyle, requested)
}

func normalizeStyleKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}
