package imagegen

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"imagejob/internal/domain"
)

const maxDescriptionRunes = 500

// NewMedia wraps raw bytes for the given multipart field. The MIME type is
// sniffed from the content.
func NewMedia(field, filename string, data []byte) domain.Media {
	mime := http.DetectContentType(data)
	if filename == "" {
		filename = field + extensionFor(mime)
	}
	return domain.Media{
		Field:    field,
		Filename: filepath.Base(filename),
		MIME:     mime,
		Data:     data,
	}
}

// TryOnPayload pairs a photo of a person with a garment image.
func TryOnPayload(person, garment []byte) (domain.Payload, error) {
	if len(person) == 0 || len(garment) == 0 {
		return domain.Payload{}, fmt.Errorf("%w: try-on needs a person and a garment image", domain.ErrInvalidPayload)
	}
	return domain.Payload{Media: []domain.Media{
		NewMedia("person_image", "", person),
		NewMedia("garment_image", "", garment),
	}}, nil
}

// HairstylePayload pairs a portrait with a free text hairstyle description.
func HairstylePayload(photo []byte, description string) (domain.Payload, error) {
	if len(photo) == 0 {
		return domain.Payload{}, fmt.Errorf("%w: hairstyle needs a photo", domain.ErrInvalidPayload)
	}
	desc := NormalizeDescription(description)
	if desc == "" {
		return domain.Payload{}, fmt.Errorf("%w: hairstyle needs a description", domain.ErrInvalidPayload)
	}
	return domain.Payload{
		Media:  []domain.Media{NewMedia("image", "", photo)},
		Fields: map[string]string{"description": desc},
	}, nil
}

// FigurinePayload pairs a photo with a style key. The key must already be
// validated against a StyleCatalog.
func FigurinePayload(photo []byte, style Style) (domain.Payload, error) {
	if len(photo) == 0 {
		return domain.Payload{}, fmt.Errorf("%w: figurine needs a photo", domain.ErrInvalidPayload)
	}
	if style.Key == "" {
		return domain.Payload{}, fmt.Errorf("%w: figurine needs a style", domain.ErrInvalidPayload)
	}
	return domain.Payload{
		Media:  []domain.Media{NewMedia("image", "", photo)},
		Fields: map[string]string{"style": style.Key},
	}, nil
}

// NormalizeDescription applies NFC normalization, collapses whitespace and
// bounds the length of user supplied text.
func NormalizeDescription(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	runes := []rune(s)
	if len(runes) > maxDescriptionRunes {
		s = strings.TrimSpace(string(runes[:maxDescriptionRunes]))
	}
	return s
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
