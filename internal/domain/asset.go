package domain

// Blob is raw bytes as returned by a fetch, tagged with the reported content type.
type Blob struct {
	Data        []byte
	ContentType string
}

// Artifact is the decoded image produced by a completed job.
type Artifact struct {
	Handle    JobHandle
	Data      []byte
	Format    string
	Width     int
	Height    int
	SourceURL string
}
