package jobs

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"imagejob/internal/domain"
)

func newTestResolver(transport *stubTransport, fields []string) *Resolver {
	result := ResultFetcher(func(ctx context.Context, handle domain.JobHandle) (domain.Blob, error) {
		return transport.Result(ctx, "/result/{task_id}", handle)
	})
	return NewResolver(result, transport.Download, fields, nil)
}

func completed(ref string) domain.StatusSnapshot {
	return domain.NewStatusSnapshot(domain.JobStateCompleted, "", ref, "")
}

func TestResolveSplitsCorruptFromMissing(t *testing.T) {
	cases := []struct {
		name    string
		blob    domain.Blob
		corrupt bool
	}{
		{"empty body", domain.Blob{ContentType: "image/png"}, false},
		{"plain text", domain.Blob{Data: []byte("still cooking"), ContentType: "text/plain"}, false},
		{"json without link", domain.Blob{Data: []byte(`{"status":"done"}`), ContentType: "application/json"}, false},
		{"bad image", domain.Blob{Data: []byte("not really a png"), ContentType: "image/png"}, true},
		{"bad octet stream", domain.Blob{Data: []byte{0x00, 0x01, 0x02}, ContentType: "application/octet-stream"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &stubTransport{result: func(string) (domain.Blob, error) { return tc.blob, nil }}
			_, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
			var resErr *domain.ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("err = %v, want ResolutionError", err)
			}
			if got := errors.Is(err, domain.ErrCorruptArtifact); got != tc.corrupt {
				t.Fatalf("corrupt = %v, want %v (%v)", got, tc.corrupt, err)
			}
			if got := errors.Is(err, domain.ErrNoArtifact); got == tc.corrupt {
				t.Fatalf("no-artifact = %v, want %v (%v)", got, !tc.corrupt, err)
			}
		})
	}
}

func TestResolveNoArtifactReason(t *testing.T) {
	transport := &stubTransport{result: func(string) (domain.Blob, error) {
		return domain.Blob{Data: []byte(`{}`), ContentType: "application/json"}, nil
	}}
	_, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	if err == nil || err.Error() != "no artifact found" {
		t.Fatalf("err = %v, want no artifact found", err)
	}
}

func TestResolveSniffsUntypedImage(t *testing.T) {
	img := pngBytes(t, 3, 2)
	transport := &stubTransport{result: func(string) (domain.Blob, error) {
		return domain.Blob{Data: img}, nil
	}}
	artifact, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if artifact.Width != 3 || artifact.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", artifact.Width, artifact.Height)
	}
}

func TestResolveInlineDataURI(t *testing.T) {
	img := pngBytes(t, 1, 1)
	ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
	transport := &stubTransport{}
	artifact, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(ref), "t")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if artifact.Format != "image/png" {
		t.Fatalf("format = %q", artifact.Format)
	}
	if len(transport.calls) != 0 {
		t.Fatalf("inline result must not touch the network: %v", transport.calls)
	}
}

func TestResolveFieldPreferenceOrder(t *testing.T) {
	img := pngBytes(t, 1, 1)
	body := `{"url": "http://x/second.png", "image_url": "http://x/first.png", "result": "done"}`
	transport := &stubTransport{
		result: func(string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(body), ContentType: "application/json"}, nil
		},
		download: func(url string) (domain.Blob, error) {
			return domain.Blob{Data: img, ContentType: "image/png"}, nil
		},
	}
	artifact, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if artifact.SourceURL != "http://x/first.png" {
		t.Fatalf("source = %q, want image_url to win over url", artifact.SourceURL)
	}

	artifact, err = newTestResolver(transport, []string{"url"}).Resolve(context.Background(), completed(""), "t")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if artifact.SourceURL != "http://x/second.png" {
		t.Fatalf("source = %q, want custom field order", artifact.SourceURL)
	}
}

func TestResolveNestedJSONLink(t *testing.T) {
	img := pngBytes(t, 1, 1)
	transport := &stubTransport{
		result: func(string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(`{"data": {"output_url": "https://cdn/x.png"}}`)}, nil
		},
		download: func(url string) (domain.Blob, error) {
			return domain.Blob{Data: img, ContentType: "image/png"}, nil
		},
	}
	if _, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if transport.callCount("download https://cdn/x.png") != 1 {
		t.Fatalf("nested link not followed: %v", transport.calls)
	}
}

func TestResolveFollowsAtMostOneLink(t *testing.T) {
	transport := &stubTransport{
		result: func(string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(`{"result_url": "http://x/a"}`), ContentType: "application/json"}, nil
		},
		download: func(url string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(`{"result_url": "http://x/b"}`), ContentType: "application/json"}, nil
		},
	}
	_, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	if !errors.Is(err, domain.ErrNoArtifact) {
		t.Fatalf("err = %v, want ErrNoArtifact", err)
	}
	if transport.callCount("download http://x/b") != 0 {
		t.Fatalf("second link must not be followed")
	}
}

func TestResolveSurfacesFetchFailure(t *testing.T) {
	transport := &stubTransport{result: func(string) (domain.Blob, error) {
		return domain.Blob{}, &domain.HTTPError{StatusCode: http.StatusNotFound}
	}}
	_, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	var resErr *domain.ResolutionError
	if !errors.As(err, &resErr) || !domain.IsRouteMissing(err) {
		t.Fatalf("err = %v, want ResolutionError wrapping the 404", err)
	}
}

func TestResolveRejectsUnfinishedJob(t *testing.T) {
	transport := &stubTransport{}
	snap := domain.NewStatusSnapshot(domain.JobStateProcessing, "", "http://x/img.png", "")
	if _, err := newTestResolver(transport, nil).Resolve(context.Background(), snap, "t"); err == nil {
		t.Fatalf("expected error for a job that is not completed")
	}
	if len(transport.calls) != 0 {
		t.Fatalf("no fetch expected: %v", transport.calls)
	}
}

func TestResolveFollowsServiceRelativeLinks(t *testing.T) {
	img := pngBytes(t, 2, 2)
	download := func(url string) (domain.Blob, error) {
		return domain.Blob{Data: img, ContentType: "image/png"}, nil
	}

	transport := &stubTransport{download: download}
	artifact, err := newTestResolver(transport, nil).Resolve(context.Background(), completed("/outputs/t.png"), "t")
	if err != nil {
		t.Fatalf("resolve snapshot ref: %v", err)
	}
	if artifact.SourceURL != "/outputs/t.png" || transport.callCount("download /outputs/t.png") != 1 {
		t.Fatalf("source = %q calls = %v", artifact.SourceURL, transport.calls)
	}
	if transport.callCount("result /result/{task_id}") != 0 {
		t.Fatalf("result route must not be used when the snapshot has a link")
	}

	transport = &stubTransport{
		result: func(string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(`{"result_url": "/outputs/t.png"}`), ContentType: "application/json"}, nil
		},
		download: download,
	}
	if _, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t"); err != nil {
		t.Fatalf("resolve json link: %v", err)
	}
	if transport.callCount("download /outputs/t.png") != 1 {
		t.Fatalf("relative json link not followed: %v", transport.calls)
	}
}

func TestResolveOctetStreamJSONLink(t *testing.T) {
	img := pngBytes(t, 1, 1)
	transport := &stubTransport{
		result: func(string) (domain.Blob, error) {
			return domain.Blob{Data: []byte(`{"image_url": "https://cdn/y.png"}`), ContentType: "application/octet-stream"}, nil
		},
		download: func(url string) (domain.Blob, error) {
			return domain.Blob{Data: img, ContentType: "image/png"}, nil
		},
	}
	artifact, err := newTestResolver(transport, nil).Resolve(context.Background(), completed(""), "t")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if artifact.SourceURL != "https://cdn/y.png" {
		t.Fatalf("source = %q", artifact.SourceURL)
	}
}
