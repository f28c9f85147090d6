package domain

import "time"

// EventKind tags a ProgressEvent.
type EventKind string

const (
	EventLoading EventKind = "loading"
	EventSuccess EventKind = "success"
	EventError   EventKind = "error"
)

// Event is the unit emitted by the lifecycle controller. A job's event
// sequence is zero or more Loading events followed by exactly one Success or
// Error.
type Event struct {
	Kind     EventKind
	Message  string
	Handle   JobHandle
	Elapsed  time.Duration
	Artifact *Artifact
	Err      error
}

// Terminal reports whether the event ends a job's sequence.
func (e Event) Terminal() bool {
	return e.Kind == EventSuccess || e.Kind == EventError
}

func Loading(message string) Event {
	return Event{Kind: EventLoading, Message: message}
}

func Success(artifact Artifact) Event {
	return Event{Kind: EventSuccess, Message: "completed", Handle: artifact.Handle, Artifact: &artifact}
}

func Failure(handle JobHandle, err error) Event {
	msg := "job failed"
	if err != nil {
		msg = err.Error()
	}
	return Event{Kind: EventError, Message: msg, Handle: handle, Err: err}
}
