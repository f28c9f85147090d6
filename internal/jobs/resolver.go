package jobs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// DefaultResultFields is the preference order used to find a result link in
// a JSON result body.
var DefaultResultFields = []string{"result_url", "result", "image_url", "url", "output_url"}

// Resolver turns a completed snapshot into image bytes.
type Resolver struct {
	fetchResult ResultFetcher
	download    BytesFetcher
	fields      []string
	logger      *infra.Logger
}

// NewResolver wires the result route (already decorated with its fallback,
// if the job kind has one) and the plain URL downloader.
func NewResolver(fetchResult ResultFetcher, download BytesFetcher, fields []string, logger *infra.Logger) *Resolver {
	if len(fields) == 0 {
		fields = DefaultResultFields
	}
	return &Resolver{
		fetchResult: fetchResult,
		download:    download,
		fields:      fields,
		logger:      orDiscard(logger),
	}
}

// Resolve obtains the artifact of a completed job. A direct result reference
// on the snapshot wins over the result route.
func (r *Resolver) Resolve(ctx context.Context, snap domain.StatusSnapshot, handle domain.JobHandle) (domain.Artifact, error) {
	if snap.State != domain.JobStateCompleted {
		return domain.Artifact{}, &domain.ResolutionError{Reason: fmt.Sprintf("job is %s, not completed", snap.State)}
	}
	ref := snap.ResultRef
	switch {
	case isDataURI(ref):
		blob, err := decodeDataURI(ref)
		if err != nil {
			return domain.Artifact{}, corrupt(err)
		}
		return r.fromBlob(ctx, handle, blob, "", false)
	case isFetchable(ref):
		blob, err := r.download(ctx, ref)
		if err != nil {
			return domain.Artifact{}, &domain.ResolutionError{Reason: "download result: " + err.Error(), Err: err}
		}
		return r.fromBlob(ctx, handle, blob, ref, true)
	}

	blob, err := r.fetchResult(ctx, handle)
	if err != nil {
		return domain.Artifact{}, &domain.ResolutionError{Reason: "fetch result: " + err.Error(), Err: err}
	}
	return r.fromBlob(ctx, handle, blob, "", true)
}

// fromBlob classifies a fetched body. A JSON body may point at the image
// through one of the result fields; that link is followed at most once.
func (r *Resolver) fromBlob(ctx context.Context, handle domain.JobHandle, blob domain.Blob, source string, follow bool) (domain.Artifact, error) {
	if len(bytes.TrimSpace(blob.Data)) == 0 {
		return domain.Artifact{}, noArtifact()
	}
	contentType := mediaType(blob.ContentType)
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return decodeArtifact(handle, blob.Data, source)
	case isJSON(contentType, blob.Data):
		link := extractLink(blob.Data, r.fields)
		if link == "" || !follow {
			return domain.Artifact{}, noArtifact()
		}
		r.logger.Debug().Str("task_id", handle.String()).Str("url", truncate(link, 96)).Msg("jobs: following result link")
		if isDataURI(link) {
			inline, err := decodeDataURI(link)
			if err != nil {
				return domain.Artifact{}, corrupt(err)
			}
			return r.fromBlob(ctx, handle, inline, "", false)
		}
		next, err := r.download(ctx, link)
		if err != nil {
			return domain.Artifact{}, &domain.ResolutionError{Reason: "download result: " + err.Error(), Err: err}
		}
		return r.fromBlob(ctx, handle, next, link, false)
	case contentType == "application/octet-stream":
		return decodeArtifact(handle, blob.Data, source)
	}
	if strings.HasPrefix(http.DetectContentType(blob.Data), "image/") {
		return decodeArtifact(handle, blob.Data, source)
	}
	return domain.Artifact{}, noArtifact()
}

func decodeArtifact(handle domain.JobHandle, data []byte, source string) (domain.Artifact, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Artifact{}, corrupt(err)
	}
	return domain.Artifact{
		Handle:    handle,
		Data:      data,
		Format:    "image/" + format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SourceURL: source,
	}, nil
}

func noArtifact() error {
	return &domain.ResolutionError{Reason: domain.ErrNoArtifact.Error(), Err: domain.ErrNoArtifact}
}

func corrupt(err error) error {
	return &domain.ResolutionError{
		Reason: "decode result image: " + err.Error(),
		Err:    fmt.Errorf("%w: %v", domain.ErrCorruptArtifact, err),
	}
}

// extractLink searches the top level of a JSON object for the first field in
// fields holding a usable link, then one level of nested objects.
func extractLink(data []byte, fields []string) string {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	if link := linkIn(doc, fields); link != "" {
		return link
	}
	for _, key := range append(append([]string{}, fields...), "data", "output") {
		if nested, ok := doc[key].(map[string]any); ok {
			if link := linkIn(nested, fields); link != "" {
				return link
			}
		}
	}
	return ""
}

func linkIn(doc map[string]any, fields []string) string {
	for _, field := range fields {
		value, ok := doc[field].(string)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if isFetchable(value) || isDataURI(value) {
			return value
		}
	}
	return ""
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return parsed
}

func isJSON(contentType string, data []byte) bool {
	if contentType == "application/json" || strings.HasSuffix(contentType, "+json") {
		return true
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// isFetchable reports whether ref is an absolute http(s) URL or a path on the
// service itself, which the downloader resolves against its base URL.
func isFetchable(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(ref, "/")
}

func isDataURI(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "data:")
}

// decodeDataURI handles base64 "data:" URIs, the inline result form some
// backends use instead of a link.
func decodeDataURI(ref string) (domain.Blob, error) {
	header, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return domain.Blob{}, errors.New("malformed data uri")
	}
	contentType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return domain.Blob{}, errors.New("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return domain.Blob{}, fmt.Errorf("decode inline data: %w", err)
	}
	return domain.Blob{Data: data, ContentType: contentType}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
