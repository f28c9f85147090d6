package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"imagejob/internal/domain"
	"imagejob/internal/imagegen"
	"imagejob/internal/storage"
)

const (
	maxRequestBytes    = 32 << 20
	requestReadTimeout = 30 * time.Second
	writeTimeout       = 10 * time.Second
)

// streamRequest is the first and only message a client sends. Images are
// base64, optionally as data URIs.
type streamRequest struct {
	Person      string `json:"person_image"`
	Garment     string `json:"garment_image"`
	Photo       string `json:"image"`
	Description string `json:"description"`
	Style       string `json:"style"`
}

type wireEvent struct {
	Type      domain.EventKind `json:"type"`
	Message   string           `json:"message"`
	TaskID    string           `json:"task_id,omitempty"`
	ElapsedMS int64            `json:"elapsed_ms,omitempty"`
	Result    *wireResult      `json:"result,omitempty"`
}

type wireResult struct {
	URL    string `json:"url,omitempty"`
	Data   string `json:"data,omitempty"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Stream runs one job per WebSocket connection. The client sends a job
// request, the server answers with progress events and closes the
// connection after the terminal one. Closing the connection early cancels
// the job.
func (a *App) Stream(w http.ResponseWriter, r *http.Request) {
	kind, err := imagegen.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		a.error(w, http.StatusNotFound, err.Error())
		return
	}
	controller, ok := a.Controllers[kind.Kind]
	if !ok {
		a.error(w, http.StatusNotFound, "job kind not served")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Debug().Err(err).Msg("http: websocket upgrade")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	var msg streamRequest
	if err := conn.ReadJSON(&msg); err != nil {
		a.finish(conn, wireEvent{Type: domain.EventError, Message: "invalid job request"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Any further read error means the client went away.
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	req, err := msg.decode()
	if err != nil {
		a.finish(conn, failureEvent("", err))
		return
	}
	payload, err := imagegen.BuildPayload(ctx, a.Styles, kind.Kind, req, a.MaxUploadDimension)
	if err != nil {
		a.finish(conn, failureEvent("", err))
		return
	}

	log := a.Logger.With().Str("kind", string(kind.Kind)).Logger()
	for ev := range controller.Run(ctx, payload) {
		out := a.toWire(ctx, kind.Kind, ev)
		if ev.Terminal() {
			log.Info().Str("task_id", ev.Handle.String()).Str("outcome", string(ev.Kind)).Msg("http: stream finished")
			a.finish(conn, out)
			return
		}
		if err := writeEvent(conn, out); err != nil {
			log.Debug().Err(err).Msg("http: client gone")
			return
		}
	}
	// Cancelled before a terminal event.
	log.Info().Msg("http: stream cancelled")
}

func (a *App) toWire(ctx context.Context, kind domain.JobKind, ev domain.Event) wireEvent {
	out := wireEvent{
		Type:      ev.Kind,
		Message:   ev.Message,
		TaskID:    ev.Handle.String(),
		ElapsedMS: ev.Elapsed.Milliseconds(),
	}
	if ev.Kind == domain.EventError {
		out.Message = clientMessage(ev.Err, ev.Message)
	}
	if ev.Artifact == nil {
		return out
	}
	res := &wireResult{Format: ev.Artifact.Format, Width: ev.Artifact.Width, Height: ev.Artifact.Height}
	if a.Store != nil {
		key, err := storage.SaveArtifact(ctx, a.Store, kind, *ev.Artifact)
		if err == nil {
			res.URL = "/v1/results/" + key
		} else {
			a.Logger.Warn().Err(err).Str("task_id", ev.Handle.String()).Msg("http: store artifact")
		}
	}
	if res.URL == "" {
		res.Data = base64.StdEncoding.EncodeToString(ev.Artifact.Data)
	}
	out.Result = res
	return out
}

func (a *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range a.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (a *App) finish(conn *websocket.Conn, ev wireEvent) {
	if err := writeEvent(conn, ev); err != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)),
		time.Now().Add(writeTimeout))
}

func writeEvent(conn *websocket.Conn, ev wireEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}

func failureEvent(handle domain.JobHandle, err error) wireEvent {
	return wireEvent{Type: domain.EventError, TaskID: handle.String(), Message: clientMessage(err, "job failed")}
}

// clientMessage keeps transport internals such as upstream URLs out of what
// browsers see.
func clientMessage(err error, fallback string) string {
	var (
		submission *domain.SubmissionError
		status     *domain.StatusError
		timeout    *domain.TimeoutError
		failed     *domain.JobFailedError
		resolution *domain.ResolutionError
	)
	switch {
	case err == nil:
		return fallback
	case errors.As(err, &submission):
		return submission.Error()
	case errors.As(err, &status):
		return "status check failed"
	case errors.As(err, &timeout):
		return timeout.Error()
	case errors.As(err, &failed):
		return failed.Error()
	case errors.As(err, &resolution):
		return resolution.Error()
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrUnknownStyle):
		return err.Error()
	default:
		return fallback
	}
}

func (m streamRequest) decode() (imagegen.Request, error) {
	var req imagegen.Request
	fields := []struct {
		name string
		raw  string
		dst  *[]byte
	}{
		{"person_image", m.Person, &req.Person},
		{"garment_image", m.Garment, &req.Garment},
		{"image", m.Photo, &req.Photo},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		data, err := decodeImage(f.raw)
		if err != nil {
			return imagegen.Request{}, fmt.Errorf("%w: %s is not valid base64", domain.ErrInvalidPayload, f.name)
		}
		*f.dst = data
	}
	req.Description = m.Description
	req.Style = m.Style
	return req, nil
}

func decodeImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		idx := strings.Index(raw, ",")
		if idx < 0 {
			return nil, errors.New("malformed data uri")
		}
		raw = raw[idx+1:]
	}
	return base64.StdEncoding.DecodeString(raw)
}
