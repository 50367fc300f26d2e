package youtube

import (
	"errors"
	"fmt"
)

// ErrNoVideos is returned when a channel's uploads playlist comes back empty.
// An empty list is far more likely an API hiccup than a channel with no uploads,
// so the channel is failed rather than written as empty.
var ErrNoVideos = errors.New("no videos returned for channel")

// Stage names the ingestion step that failed
type Stage string

const (
	StageResolve Stage = "resolve"
	StageStats   Stage = "stats"
	StageList    Stage = "list"
	StageDetect  Stage = "detect"
)

// IngestError reports which channel failed and at which step
type IngestError struct {
	Channel string
	Stage   Stage
	Err     error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.Channel, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}
