package interfaces

import (
	"context"
	"io"
)

// STT is the speech-to-text interface. Implementations should be swappable.
type STT interface {
	// Recognize converts one utterance of 16 kHz mono PCM into text,
	// returning the transcript and the provider's confidence.
	Recognize(ctx context.Context, audio []byte) (string, float32, error)
}

// ChatMessage is one turn of a model conversation. Role is one of "system",
// "user", "assistant", or "tool".
type ChatMessage struct {
	Role       string
	Content    string
	ToolCallID string     // set on "tool" messages answering a call
	ToolCalls  []ToolCall // set on "assistant" messages requesting calls
}

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolSpec describes a callable exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ChatResult is the model's reply: either content to speak, tool calls to
// execute, or both.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// LLM is the language model interface.
type LLM interface {
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResult, error)
}

// TTS is the text-to-speech interface.
type TTS interface {
	// Synthesize converts text into 16 kHz mono PCM audio bytes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// SynthesizeStream writes audio for the given text to w as it is
	// produced, for low-latency playback.
	SynthesizeStream(ctx context.Context, text string, w io.Writer) error
}
