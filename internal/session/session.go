// Package session ties one room to one conversation: it joins the room,
// waits for the caller, opens a conversation record, wires the transcript
// relay and drives the speech pipeline until the call ends.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/interfaces"
	"github.com/voxcare-ai/voice-agent/internal/pipeline"
	"github.com/voxcare-ai/voice-agent/internal/prompts"
	"github.com/voxcare-ai/voice-agent/internal/relay"
	"github.com/voxcare-ai/voice-agent/internal/room"
	"github.com/voxcare-ai/voice-agent/internal/tools"
	"github.com/voxcare-ai/voice-agent/internal/vad"
)

// ConversationStore is the slice of the Redis store a session needs.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID string, metadata map[string]string) (string, error)
	AddMessage(ctx context.Context, convID, role, content string, at time.Time) error
}

// roomConn is what a session needs from a joined room. Satisfied by
// *room.Client.
type roomConn interface {
	Connect() error
	WaitForParticipant(ctx context.Context) (string, error)
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteAudio(ctx context.Context, pcm []byte) error
	PublishData(ctx context.Context, payload []byte, topic string, reliable bool) error
	Close() error
}

// Orchestrator runs sessions. One orchestrator serves the whole worker; each
// Run call handles a single room.
type Orchestrator struct {
	cfg     *config.Settings
	prompts *prompts.Prompts
	store   ConversationStore
	stt     interfaces.STT
	llm     interfaces.LLM
	tts     interfaces.TTS
	logger  *zap.Logger

	// dial is swapped out in tests
	dial func(url, token, roomName, identity string) roomConn
}

func New(cfg *config.Settings, p *prompts.Prompts, store ConversationStore, stt interfaces.STT, llm interfaces.LLM, tts interfaces.TTS, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		prompts: p,
		store:   store,
		stt:     stt,
		llm:     llm,
		tts:     tts,
		logger:  logger,
		dial: func(url, token, roomName, identity string) roomConn {
			return room.NewClient(url, token, roomName, identity, logger)
		},
	}
}

// Run joins the room and serves the call until the context ends or the
// caller's audio stops. It blocks for the lifetime of the session.
func (o *Orchestrator) Run(ctx context.Context, roomName, identity, token string) error {
	logger := o.logger.With(zap.String("room", roomName))

	client := o.dial(o.cfg.LiveKitURL, token, roomName, identity)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("join room %s: %w", roomName, err)
	}
	defer client.Close()

	participant, err := client.WaitForParticipant(ctx)
	if err != nil {
		return fmt.Errorf("wait for participant: %w", err)
	}
	logger.Info("serving participant", zap.String("identity", participant))

	// The conversation record must exist before anything is spoken; a store
	// fault here ends this session, not the worker.
	convID := ""
	if o.store != nil {
		convID, err = o.store.CreateConversation(ctx, participant, map[string]string{"room_name": roomName})
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
	}

	rel := relay.New(o.store, client, logger)
	defer rel.Close()
	if convID != "" {
		rel.Bind(convID)
		logger.Info("conversation opened", zap.String("conversation", convID))
	}

	sess := pipeline.New(o.stt, o.llm, o.tts, client, pipeline.Config{
		SystemPrompt: o.prompts.SystemPrompt,
		Tools:        []tools.Tool{tools.BookMeeting(logger)},
		VAD:          vad.Config{},
		Logger:       logger,
	})
	sess.OnUserUtterance(rel.HandleUserUtterance)
	sess.OnAssistantItem(rel.HandleAssistantItem)

	done := make(chan error, 1)
	go func() { done <- sess.Start(ctx, client) }()

	if err := sess.Say(ctx, o.prompts.InitialGreeting, true); err != nil {
		logger.Error("greeting failed", zap.Error(err))
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("session ended")
	return nil
}
