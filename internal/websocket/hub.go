package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/bofstudio/pipeline-console/internal/model"
)

// Topic names. Detail and job topics are suffixed with their id.
const (
	TopicBatches = "batches"
	topicBatch   = "batch:"
	topicJob     = "job:"
)

const (
	sendBuffer   = 64
	queueSize    = 256
	pingInterval = 30 * time.Second
)

func BatchTopic(batchID string) string { return topicBatch + batchID }
func JobTopic(jobID string) string     { return topicJob + jobID }

// subscriber is one websocket connection listening on one topic.
type subscriber struct {
	topic string
	conn  *websocket.Conn
	out   chan []byte
}

type topicState struct {
	subs map[*subscriber]struct{}
	seq  uint64
	// current holds the frame replayed to late subscribers
	current []byte
}

type outbound struct {
	topic  string
	event  model.Event
	retain bool
}

// Hub owns every topic and serialises all fan-out through Run.
type Hub struct {
	topics map[string]*topicState
	mu     sync.RWMutex

	join   chan *subscriber
	leave  chan *subscriber
	events chan outbound

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]*topicState),
		join:   make(chan *subscriber),
		leave:  make(chan *subscriber),
		events: make(chan outbound, queueSize),
		log:    log.With().Str("component", "ws-hub").Logger(),
	}
}

// Run processes joins, leaves and events until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.join:
			h.add(s)
		case s := <-h.leave:
			h.remove(s)
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *Hub) state(topic string) *topicState {
	st, ok := h.topics[topic]
	if !ok {
		st = &topicState{subs: make(map[*subscriber]struct{})}
		h.topics[topic] = st
	}
	return st
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state(s.topic)
	st.subs[s] = struct{}{}
	if st.current != nil {
		select {
		case s.out <- st.current:
		default:
		}
	}
	h.log.Debug().Str("topic", s.topic).Int("subscribers", len(st.subs)).Msg("subscriber joined")
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.topics[s.topic]
	if !ok {
		return
	}
	if _, ok := st.subs[s]; !ok {
		return
	}
	delete(st.subs, s)
	close(s.out)
	if len(st.subs) == 0 && st.current == nil {
		delete(h.topics, s.topic)
	}
	h.log.Debug().Str("topic", s.topic).Msg("subscriber left")
}

func (h *Hub) deliver(ev outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state(ev.topic)
	st.seq++
	ev.event.Topic = ev.topic
	ev.event.Seq = st.seq
	data, err := json.Marshal(ev.event)
	if err != nil {
		h.log.Error().Err(err).Str("topic", ev.topic).Str("type", string(ev.event.Type)).Msg("failed to marshal event")
		return
	}

	if ev.retain {
		st.current = data
	} else {
		st.current = nil
		if len(st.subs) == 0 {
			delete(h.topics, ev.topic)
		}
	}
	for s := range st.subs {
		select {
		case s.out <- data:
		default:
			// Frames are full snapshots, so a slow reader just skips one.
			h.log.Debug().Str("topic", ev.topic).Uint64("seq", st.seq).Msg("subscriber behind, frame skipped")
		}
	}
}

// Subscribers returns the number of connections on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.topics[topic]; ok {
		return len(st.subs)
	}
	return 0
}

func (h *Hub) publish(topic string, typ model.EventType, data interface{}, retain bool) {
	select {
	case h.events <- outbound{topic: topic, event: model.Event{Type: typ, Data: data}, retain: retain}:
	default:
		h.log.Warn().Str("topic", topic).Str("type", string(typ)).Msg("event queue full, dropping")
	}
}

// PublishBatches sends the full batch list to list subscribers.
func (h *Hub) PublishBatches(batches []model.Batch) {
	if batches == nil {
		batches = []model.Batch{}
	}
	h.publish(TopicBatches, model.EventBatches, batches, true)
}

// PublishBatch sends the full detail of the open batch.
func (h *Hub) PublishBatch(detail *model.BatchDetail) {
	if detail == nil {
		return
	}
	h.publish(BatchTopic(detail.BatchID), model.EventBatch, detail, true)
}

// PublishClosed forgets the retained detail right away, so no late
// subscriber is replayed a closed view, and then queues the close frame.
// The close is never dropped; it waits for room in the queue instead.
func (h *Hub) PublishClosed(batchID string) {
	topic := BatchTopic(batchID)
	h.forget(topic)
	h.events <- outbound{
		topic: topic,
		event: model.Event{Type: model.EventBatchClosed, Data: model.ClosedEvent{BatchID: batchID}},
	}
}

func (h *Hub) forget(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.topics[topic]; ok {
		st.current = nil
	}
}

func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.publish(JobTopic(jobID), model.EventJobProgress, model.JobEvent{
		JobID:       jobID,
		Status:      status,
		Progress:    progress,
		CurrentStep: step,
	}, true)
}

func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	h.publish(JobTopic(jobID), model.EventJobComplete, model.JobEvent{
		JobID:    jobID,
		Status:   model.JobStatusSucceeded,
		Progress: 100,
		Result:   result,
	}, true)
}

func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(JobTopic(jobID), model.EventJobError, model.JobEvent{
		JobID:  jobID,
		Status: model.JobStatusFailed,
		Error:  &model.EventError{Code: code, Message: message},
	}, true)
}

// HandleConnection serves one subscriber until it disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, topic string) {
	s := &subscriber{topic: topic, conn: c, out: make(chan []byte, sendBuffer)}

	h.join <- s
	defer func() { h.leave <- s }()

	go s.writePump()
	h.readPump(s)
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.out:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump answers application-level pings; everything else is ignored.
func (h *Hub) readPump(s *subscriber) {
	pong, _ := json.Marshal(model.Event{Type: model.EventPong})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("topic", s.topic).Msg("websocket read error")
			}
			return
		}

		var ev model.Event
		if json.Unmarshal(raw, &ev) != nil || ev.Type != model.EventPing {
			continue
		}
		select {
		case s.out <- pong:
		default:
		}
	}
}
