package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagejob/internal/domain"
	"imagejob/internal/infra"
)

// ErrMissingBaseURL indicates that the client was configured without a service address.
var ErrMissingBaseURL = errors.New("remote: base url is required")

const (
	taskIDPlaceholder = "{task_id}"
	maxErrorBody      = 512
	maxBodyBytes      = 64 << 20
)

// Options configures the job service client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client speaks HTTP to the remote job service. Per-request timeouts live on
// the underlying http.Client.
type Client struct {
	apiKey     string
	baseURL    *url.URL
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Submit uploads the payload as multipart form data and returns the task id.
func (c *Client) Submit(ctx context.Context, route string, payload domain.Payload) (domain.JobHandle, error) {
	body, contentType, err := encodeMultipart(payload)
	if err != nil {
		return "", fmt.Errorf("remote: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(route, ""), body)
	if err != nil {
		return "", fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", uuid.NewString())

	raw, _, err := c.do(req, route)
	if err != nil {
		return "", err
	}
	decoded, err := decodeObject(raw)
	if err != nil {
		return "", fmt.Errorf("remote: decode submit response: %w", err)
	}
	return domain.JobHandle(firstString(decoded, "task_id", "taskId", "job_id", "id")), nil
}

// Status reads one status snapshot.
func (c *Client) Status(ctx context.Context, route string, handle domain.JobHandle) (domain.StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(route, handle), nil)
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("remote: build request: %w", err)
	}
	raw, _, err := c.do(req, route)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return decodeStatus(raw)
}

// Result reads the result body of a task as is.
func (c *Client) Result(ctx context.Context, route string, handle domain.JobHandle) (domain.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(route, handle), nil)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("remote: build request: %w", err)
	}
	raw, contentType, err := c.do(req, route)
	if err != nil {
		return domain.Blob{}, err
	}
	return domain.Blob{Data: raw, ContentType: contentType}, nil
}

// Download fetches an absolute URL. Relative references are resolved against
// the base URL. Credentials are only sent to the service's own host.
func (c *Client) Download(ctx context.Context, rawURL string) (domain.Blob, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.Blob{}, fmt.Errorf("remote: invalid download url %q", rawURL)
	}
	target := c.baseURL.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("remote: build download request: %w", err)
	}
	raw, contentType, err := c.do(req, "download")
	if err != nil {
		return domain.Blob{}, err
	}
	return domain.Blob{Data: raw, ContentType: contentType}, nil
}

// Styles lists the figurine style keys offered by the service. Both a bare
// array and an object with a "styles" array are accepted; entries may be
// strings or objects with a key or name.
func (c *Client) Styles(ctx context.Context) ([]string, error) {
	const route = "/figurine/styles"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(route, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	raw, _, err := c.do(req, route)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Styles []json.RawMessage `json:"styles"`
	}
	entries := []json.RawMessage{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("remote: decode styles: %w", err)
		}
		entries = envelope.Styles
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		var name string
		if err := json.Unmarshal(entry, &name); err == nil {
			keys = append(keys, name)
			continue
		}
		if obj, err := decodeObject(entry); err == nil {
			if key := firstString(obj, "key", "name", "id"); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (c *Client) do(req *http.Request, route string) ([]byte, string, error) {
	if c.apiKey != "" && strings.EqualFold(req.URL.Host, c.baseURL.Host) {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, image/*")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("remote: read response: %w", err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("route", route).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("remote: request done")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &domain.HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *Client) endpoint(route string, handle domain.JobHandle) string {
	path := strings.ReplaceAll(route, taskIDPlaceholder, url.PathEscape(handle.String()))
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

func encodeMultipart(payload domain.Payload) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, m := range payload.Media {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, m.Field, m.Filename))
		mime := m.MIME
		if mime == "" {
			mime = "application/octet-stream"
		}
		header.Set("Content-Type", mime)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(m.Data); err != nil {
			return nil, "", err
		}
	}
	names := make([]string, 0, len(payload.Fields))
	for name := range payload.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, payload.Fields[name]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func decodeStatus(raw []byte) (domain.StatusSnapshot, error) {
	decoded, err := decodeObject(raw)
	if err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("remote: decode status: %w", err)
	}
	if nested, ok := decoded["data"].(map[string]any); ok && firstString(decoded, "status", "state") == "" {
		decoded = nested
	}
	state := domain.ParseJobState(firstString(decoded, "status", "state"))
	return domain.NewStatusSnapshot(
		state,
		firstString(decoded, "message", "progress_message"),
		firstString(decoded, "result_url", "output_url", "image_url", "result"),
		errorText(decoded),
	), nil
}

func errorText(doc map[string]any) string {
	for _, key := range []string{"error", "error_message", "detail"} {
		switch v := doc[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if msg := firstString(v, "message", "detail"); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func errorMessage(raw []byte) string {
	if doc, err := decodeObject(raw); err == nil {
		if msg := firstString(doc, "message", "detail"); msg != "" {
			return msg
		}
		if msg := errorText(doc); msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

// decodeObject keeps numbers as json.Number so numeric task ids survive
// beyond float64 precision.
func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// firstString returns the first non-empty string or integer under keys.
// Fractional or exponent numbers are never identifiers and are skipped.
func firstString(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := doc[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			if s := v.String(); !strings.ContainsAny(s, ".eE") {
				return s
			}
		}
	}
	return ""
}
