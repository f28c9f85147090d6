// Package media prepares user supplied images before they are uploaded.
package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// Normalize bounds the longer side of an image to maxDim pixels and re-encodes
// the result as JPEG. Images already inside the bound are returned unchanged,
// as is anything that does not decode: the service may accept formats this
// process cannot read. A maxDim of zero or less disables resizing.
func Normalize(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 || len(data) == 0 {
		return data, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}

	var resized image.Image
	if cfg.Width >= cfg.Height {
		resized = resize.Resize(uint(maxDim), 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, uint(maxDim), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("media: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
