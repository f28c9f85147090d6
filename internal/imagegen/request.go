package imagegen

import (
	"context"
	"fmt"

	"imagejob/internal/domain"
	"imagejob/internal/media"
)

// Request carries the raw inputs of any job kind. Only the fields the kind
// needs are read.
type Request struct {
	Person      []byte
	Garment     []byte
	Photo       []byte
	Description string
	Style       string
}

// BuildPayload validates req for kind and turns it into a submission payload.
// Images are bounded to maxDim pixels first; figurine styles are checked
// against catalog.
func BuildPayload(ctx context.Context, catalog *StyleCatalog, kind domain.JobKind, req Request, maxDim int) (domain.Payload, error) {
	for _, img := range []*[]byte{&req.Person, &req.Garment, &req.Photo} {
		normalized, err := media.Normalize(*img, maxDim)
		if err != nil {
			return domain.Payload{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		*img = normalized
	}

	switch kind {
	case domain.JobKindTryOn:
		return TryOnPayload(req.Person, req.Garment)
	case domain.JobKindHairstyle:
		return HairstylePayload(req.Photo, req.Description)
	case domain.JobKindFigurine:
		if catalog == nil {
			catalog = NewStyleCatalog(nil, nil)
		}
		style, err := catalog.Resolve(ctx, req.Style)
		if err != nil {
			return domain.Payload{}, err
		}
		return FigurinePayload(req.Photo, style)
	default:
		return domain.Payload{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
}
