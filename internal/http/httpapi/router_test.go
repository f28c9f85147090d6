package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"imagejob/internal/domain"
	"imagejob/internal/http/handlers"
	"imagejob/internal/imagegen"
	"imagejob/internal/infra"
	"imagejob/internal/storage"
)

type fakeTransport struct {
	mu       sync.Mutex
	submits  int
	failWith string
	image    []byte
}

func (f *fakeTransport) Submit(ctx context.Context, route string, payload domain.Payload) (domain.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return "job-1", nil
}

func (f *fakeTransport) Status(ctx context.Context, route string, handle domain.JobHandle) (domain.StatusSnapshot, error) {
	if f.failWith != "" {
		return domain.NewStatusSnapshot(domain.JobStateFailed, "", "", f.failWith), nil
	}
	return domain.NewStatusSnapshot(domain.JobStateCompleted, "", "", ""), nil
}

func (f *fakeTransport) Result(ctx context.Context, route string, handle domain.JobHandle) (domain.Blob, error) {
	return domain.Blob{Data: f.image, ContentType: "image/png"}, nil
}

func (f *fakeTransport) Download(ctx context.Context, url string) (domain.Blob, error) {
	return domain.Blob{}, errors.New("unexpected download")
}

type fixedStyles []string

func (s fixedStyles) Styles(ctx context.Context) ([]string, error) { return s, nil }

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, transport *fakeTransport) *httptest.Server {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	cfg := &infra.Config{
		PollInterval:       time.Millisecond,
		PollMaxAttempts:    3,
		MaxUploadDimension: 1024,
		RateLimitPerMin:    100,
	}
	styles := imagegen.NewStyleCatalog(fixedStyles{"chibi", "clay"}, nil)
	app := handlers.NewApp(transport, styles, store, cfg, nil)
	srv := httptest.NewServer(NewRouter(app, cfg))
	t.Cleanup(srv.Close)
	return srv
}

type event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
	Result  *struct {
		URL    string `json:"url"`
		Format string `json:"format"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"result"`
}

func runStream(t *testing.T, srv *httptest.Server, kind string, request any) []event {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + kind + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(request); err != nil {
		t.Fatalf("write request: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var events []event
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("read: %v", err)
			}
			return events
		}
		events = append(events, ev)
	}
}

func TestStreamDeliversEventsAndStoresResult(t *testing.T) {
	transport := &fakeTransport{image: pngImage(t)}
	srv := newTestServer(t, transport)

	photo := base64.StdEncoding.EncodeToString(pngImage(t))
	events := runStream(t, srv, "figurine", map[string]string{"image": "data:image/png;base64," + photo, "style": "Clay"})

	if len(events) < 2 || events[0].Type != "loading" {
		t.Fatalf("events = %+v", events)
	}
	last := events[len(events)-1]
	if last.Type != "success" || last.TaskID != "job-1" || last.Result == nil {
		t.Fatalf("terminal = %+v", last)
	}
	if last.Result.Width != 3 || last.Result.Height != 2 || last.Result.Format != "image/png" {
		t.Fatalf("result = %+v", last.Result)
	}

	resp, err := http.Get(srv.URL + last.Result.URL)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" || !bytes.Equal(body, transport.image) {
		t.Fatalf("result fetch = %d %s (%d bytes)", resp.StatusCode, resp.Header.Get("Content-Type"), len(body))
	}
}

func TestStreamReportsJobFailure(t *testing.T) {
	transport := &fakeTransport{failWith: "model overloaded"}
	srv := newTestServer(t, transport)

	photo := base64.StdEncoding.EncodeToString(pngImage(t))
	events := runStream(t, srv, "hairstyle", map[string]string{"image": photo, "description": "bob"})
	last := events[len(events)-1]
	if last.Type != "error" || last.Message != "model overloaded" {
		t.Fatalf("terminal = %+v", last)
	}
}

func TestStreamRejectsInvalidRequests(t *testing.T) {
	transport := &fakeTransport{}
	srv := newTestServer(t, transport)

	events := runStream(t, srv, "figurine", map[string]string{"image": "!!!", "style": "clay"})
	if len(events) != 1 || events[0].Type != "error" || !strings.Contains(events[0].Message, "base64") {
		t.Fatalf("events = %+v", events)
	}

	photo := base64.StdEncoding.EncodeToString(pngImage(t))
	events = runStream(t, srv, "figurine", map[string]string{"image": photo, "style": "baroque"})
	if len(events) != 1 || !strings.Contains(events[0].Message, "unknown figurine style") {
		t.Fatalf("events = %+v", events)
	}
	if transport.submits != 0 {
		t.Fatalf("invalid requests must not be submitted")
	}

	resp, err := http.Get(srv.URL + "/v1/jobs/upscale/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown kind status = %d", resp.StatusCode)
	}
}

func TestStylesAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeTransport{})

	resp, err := http.Get(srv.URL + "/v1/figurine/styles")
	if err != nil {
		t.Fatalf("get styles: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Styles []imagegen.Style `json:"styles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Styles) != 2 || body.Styles[1].Title != "Clay" {
		t.Fatalf("styles = %+v", body.Styles)
	}

	health, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK || health.Header.Get("X-Request-ID") == "" {
		t.Fatalf("health = %d, request id %q", health.StatusCode, health.Header.Get("X-Request-ID"))
	}

	missing, err := http.Get(srv.URL + "/v1/results/figurine/none.png")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing result status = %d", missing.StatusCode)
	}
}
