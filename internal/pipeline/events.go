package pipeline

type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageFinished  EventKind = "stage_finished"
	EventDiagramDropped EventKind = "diagram_dropped"
)

// Event is a progress notification for streaming surfaces.
type Event struct {
	RequestID string    `json:"requestId"`
	Kind      EventKind `json:"kind"`
	Stage     Stage     `json:"stage"`
	Count     int       `json:"count,omitempty"`
	Index     int       `json:"index"`
	Title     string    `json:"title,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ElapsedMS int64     `json:"elapsedMs,omitempty"`
}

// Observer receives events synchronously from the goroutine running the pipeline.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
