// Package pipeline runs the speech loop for one session: caller audio is
// segmented into utterances, transcribed, answered by the language model and
// spoken back. Tool calls requested by the model are executed inline before
// the final answer is synthesized.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/interfaces"
	"github.com/voxcare-ai/voice-agent/internal/tools"
	"github.com/voxcare-ai/voice-agent/internal/vad"
)

// maxToolRounds bounds the chat/tool loop for a single user turn.
const maxToolRounds = 4

// AudioSource yields PCM frames from the room. ReadFrame blocks until a
// frame is available and returns io.EOF when the remote track ends.
type AudioSource interface {
	ReadFrame(ctx context.Context) ([]byte, error)
}

// AudioSink plays PCM back into the room.
type AudioSink interface {
	WriteAudio(ctx context.Context, pcm []byte) error
}

// UserUtteranceEvent is emitted after a caller utterance is transcribed.
type UserUtteranceEvent struct {
	Text        string
	TimestampMS int64
}

// AssistantItemEvent is emitted when the assistant commits a reply to the
// conversation, including the initial greeting.
type AssistantItemEvent struct {
	Role        string
	Content     string
	TimestampMS int64
}

// Config carries the per-session knobs.
type Config struct {
	SystemPrompt string
	Tools        []tools.Tool
	VAD          vad.Config
	Logger       *zap.Logger
}

// Session is the speech pipeline for one conversation. Create it with New,
// register listeners, then call Start with the room's audio endpoints.
type Session struct {
	stt    interfaces.STT
	llm    interfaces.LLM
	tts    interfaces.TTS
	sink   AudioSink
	cfg    Config
	logger *zap.Logger

	det        *vad.Detector
	utterances chan []byte

	mu      sync.Mutex
	history []interfaces.ChatMessage
	onUser  []func(UserUtteranceEvent)
	onItem  []func(AssistantItemEvent)

	speakMu     sync.Mutex
	speakCancel context.CancelFunc
}

func New(stt interfaces.STT, llm interfaces.LLM, tts interfaces.TTS, sink AudioSink, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Session{
		stt:        stt,
		llm:        llm,
		tts:        tts,
		sink:       sink,
		cfg:        cfg,
		logger:     cfg.Logger,
		det:        vad.New(cfg.VAD),
		utterances: make(chan []byte, 4),
	}
	if cfg.SystemPrompt != "" {
		s.history = append(s.history, interfaces.ChatMessage{Role: "system", Content: cfg.SystemPrompt})
	}
	return s
}

// OnUserUtterance registers a listener for transcribed caller speech.
// Register before Start; listeners run on the pipeline goroutine.
func (s *Session) OnUserUtterance(fn func(UserUtteranceEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUser = append(s.onUser, fn)
}

// OnAssistantItem registers a listener for committed assistant replies.
func (s *Session) OnAssistantItem(fn func(AssistantItemEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onItem = append(s.onItem, fn)
}

// Start consumes the source until it returns io.EOF or the context is
// cancelled. Utterances are answered sequentially; a new utterance arriving
// while the assistant is speaking cancels the playback first.
func (s *Session) Start(ctx context.Context, src AudioSource) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for pcm := range s.utterances {
			s.respond(ctx, pcm)
		}
	}()

	err := s.readLoop(ctx, src)
	close(s.utterances)
	<-done
	return err
}

func (s *Session) readLoop(ctx context.Context, src AudioSource) error {
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				if pcm := s.det.Flush(); pcm != nil {
					s.enqueue(pcm)
				}
				return nil
			}
			return err
		}
		if pcm := s.det.Push(frame); pcm != nil {
			s.interruptSpeech()
			s.enqueue(pcm)
		}
	}
}

func (s *Session) enqueue(pcm []byte) {
	select {
	case s.utterances <- pcm:
	default:
		s.logger.Warn("utterance queue full, dropping segment", zap.Int("bytes", len(pcm)))
	}
}

// Say speaks text without consulting the model and records it as an
// assistant item. Used for the session greeting. When allowInterruptions is
// false the playback ignores barge-in.
func (s *Session) Say(ctx context.Context, text string, allowInterruptions bool) error {
	s.commitAssistant(text)
	return s.speak(ctx, text, allowInterruptions)
}

func (s *Session) respond(ctx context.Context, pcm []byte) {
	text, confidence, err := s.stt.Recognize(ctx, pcm)
	if err != nil {
		s.logger.Error("stt failed", zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	s.logger.Debug("user utterance", zap.String("text", text), zap.Float32("confidence", confidence))

	ev := UserUtteranceEvent{Text: text, TimestampMS: time.Now().UnixMilli()}
	s.mu.Lock()
	s.history = append(s.history, interfaces.ChatMessage{Role: "user", Content: text})
	listeners := append([]func(UserUtteranceEvent){}, s.onUser...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}

	reply, err := s.chat(ctx)
	if err != nil {
		s.logger.Error("llm failed", zap.Error(err))
		return
	}
	if reply == "" {
		return
	}

	s.commitAssistant(reply)
	if err := s.speak(ctx, reply, true); err != nil {
		s.logger.Error("tts playback failed", zap.Error(err))
	}
}

// chat runs the model, executing requested tool calls until it produces a
// plain answer or the round limit is hit.
func (s *Session) chat(ctx context.Context) (string, error) {
	specs := make([]interfaces.ToolSpec, 0, len(s.cfg.Tools))
	for _, t := range s.cfg.Tools {
		specs = append(specs, t.Spec())
	}

	for round := 0; round < maxToolRounds; round++ {
		s.mu.Lock()
		msgs := append([]interfaces.ChatMessage{}, s.history...)
		s.mu.Unlock()

		res, err := s.llm.Chat(ctx, msgs, specs)
		if err != nil {
			return "", err
		}
		if len(res.ToolCalls) == 0 {
			return res.Content, nil
		}

		s.mu.Lock()
		s.history = append(s.history, interfaces.ChatMessage{
			Role:      "assistant",
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		})
		s.mu.Unlock()

		for _, call := range res.ToolCalls {
			out := s.runTool(ctx, call)
			s.mu.Lock()
			s.history = append(s.history, interfaces.ChatMessage{
				Role:       "tool",
				Content:    out,
				ToolCallID: call.ID,
			})
			s.mu.Unlock()
		}
	}
	return "", errors.New("tool loop exceeded round limit")
}

func (s *Session) runTool(ctx context.Context, call interfaces.ToolCall) string {
	for _, t := range s.cfg.Tools {
		if t.Name != call.Name {
			continue
		}
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				s.logger.Error("bad tool arguments", zap.String("tool", call.Name), zap.Error(err))
				return "invalid arguments"
			}
		}
		out, err := t.Handler(ctx, args)
		if err != nil {
			s.logger.Error("tool failed", zap.String("tool", call.Name), zap.Error(err))
			return "tool failed: " + err.Error()
		}
		return out
	}
	s.logger.Warn("model called unknown tool", zap.String("tool", call.Name))
	return "unknown tool"
}

func (s *Session) commitAssistant(text string) {
	ev := AssistantItemEvent{Role: "assistant", Content: text, TimestampMS: time.Now().UnixMilli()}
	s.mu.Lock()
	s.history = append(s.history, interfaces.ChatMessage{Role: "assistant", Content: text})
	listeners := append([]func(AssistantItemEvent){}, s.onItem...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Session) speak(ctx context.Context, text string, interruptible bool) error {
	if s.sink == nil {
		return nil
	}
	playCtx := ctx
	if interruptible {
		var cancel context.CancelFunc
		playCtx, cancel = context.WithCancel(ctx)
		s.speakMu.Lock()
		s.speakCancel = cancel
		s.speakMu.Unlock()
		defer func() {
			s.speakMu.Lock()
			s.speakCancel = nil
			s.speakMu.Unlock()
			cancel()
		}()
	}

	pcm, err := s.tts.Synthesize(playCtx, text)
	if err != nil {
		return err
	}
	if err := s.sink.WriteAudio(playCtx, pcm); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("playback interrupted")
			return nil
		}
		return err
	}
	return nil
}

// interruptSpeech cancels in-progress playback so the caller can barge in.
func (s *Session) interruptSpeech() {
	s.speakMu.Lock()
	cancel := s.speakCancel
	s.speakMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []interfaces.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]interfaces.ChatMessage{}, s.history...)
}
