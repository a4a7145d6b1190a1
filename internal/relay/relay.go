// Package relay forwards committed transcript items to the conversation
// store and to room participants over the "transcription" data topic. Both
// effects are best-effort: a failure of one never blocks the other, and
// neither interrupts the speech pipeline.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/pipeline"
)

// Topic is the side-channel data topic transcript items are published on.
const Topic = "transcription"

const queueSize = 64

// ConversationLog persists transcript items. Satisfied by *store.Store.
type ConversationLog interface {
	AddMessage(ctx context.Context, convID, role, content string, at time.Time) error
}

// Publisher broadcasts payloads to room participants. Satisfied by
// *room.Client.
type Publisher interface {
	PublishData(ctx context.Context, payload []byte, topic string, reliable bool) error
}

// item is the wire shape broadcast on the transcription topic.
type item struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Relay consumes pipeline transcript events and fans them out. Items are
// processed by a single worker so delivery order matches commit order.
type Relay struct {
	log       ConversationLog
	publisher Publisher
	logger    *zap.Logger

	mu     sync.Mutex
	convID string

	jobs chan item
	done chan struct{}
}

func New(log ConversationLog, publisher Publisher, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		log:       log,
		publisher: publisher,
		logger:    logger,
		jobs:      make(chan item, queueSize),
		done:      make(chan struct{}),
	}
	go r.worker()
	return r
}

// Bind attaches the relay to a conversation. Items arriving before Bind are
// broadcast but not persisted.
func (r *Relay) Bind(convID string) {
	r.mu.Lock()
	r.convID = convID
	r.mu.Unlock()
}

// HandleUserUtterance enqueues a transcribed caller utterance.
func (r *Relay) HandleUserUtterance(ev pipeline.UserUtteranceEvent) {
	r.enqueue(item{Role: "user", Content: ev.Text, Timestamp: ev.TimestampMS})
}

// HandleAssistantItem enqueues a committed assistant reply. Only assistant
// text reaches the transcript; tool traffic stays internal to the pipeline.
func (r *Relay) HandleAssistantItem(ev pipeline.AssistantItemEvent) {
	if ev.Role != "assistant" {
		return
	}
	r.enqueue(item{Role: ev.Role, Content: ev.Content, Timestamp: ev.TimestampMS})
}

func (r *Relay) enqueue(it item) {
	if it.Content == "" {
		return
	}
	select {
	case r.jobs <- it:
	default:
		r.logger.Warn("transcript queue full, dropping item", zap.String("role", it.Role))
	}
}

// Close stops intake, drains queued items and waits for the worker.
func (r *Relay) Close() {
	close(r.jobs)
	<-r.done
}

func (r *Relay) worker() {
	defer close(r.done)
	for it := range r.jobs {
		r.deliver(it)
	}
}

func (r *Relay) deliver(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	convID := r.convID
	r.mu.Unlock()

	if r.log != nil && convID != "" {
		at := time.UnixMilli(it.Timestamp)
		if err := r.log.AddMessage(ctx, convID, it.Role, it.Content, at); err != nil {
			r.logger.Error("transcript store append failed",
				zap.String("conversation", convID),
				zap.String("role", it.Role),
				zap.Error(err))
		}
	}

	if r.publisher != nil {
		payload, err := json.Marshal(it)
		if err != nil {
			r.logger.Error("transcript encode failed", zap.Error(err))
			return
		}
		if err := r.publisher.PublishData(ctx, payload, Topic, true); err != nil {
			r.logger.Error("transcript broadcast failed",
				zap.String("role", it.Role),
				zap.Error(err))
		}
	}
}
