package model

// EventType tags every frame pushed to console subscribers.
type EventType string

const (
	EventBatches     EventType = "batches"
	EventBatch       EventType = "batch"
	EventBatchClosed EventType = "closed"
	EventJobProgress EventType = "progress"
	EventJobComplete EventType = "complete"
	EventJobError    EventType = "error"
	EventPing        EventType = "ping"
	EventPong        EventType = "pong"
)

// Event is the single frame shape on every topic. Seq grows per topic, so a
// replayed snapshot carries the same Seq the live frame had.
//
// Data holds []Batch for "batches", *BatchDetail for "batch",
// ClosedEvent for "closed" and JobEvent for the job frames.
type Event struct {
	Type  EventType   `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Seq   uint64      `json:"seq,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

type ClosedEvent struct {
	BatchID string `json:"batchId"`
}

// JobEvent reports export job state on a job topic.
type JobEvent struct {
	JobID       string      `json:"jobId"`
	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	Error       *EventError `json:"error,omitempty"`
}

type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
