package room

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestParticipantIdentity(t *testing.T) {
	var msg map[string]interface{}
	raw := `{"type":"participant_connected","participant":{"identity":"user-1","sid":"PA_x"}}`
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	if got := participantIdentity(msg); got != "user-1" {
		t.Errorf("identity = %q", got)
	}
	if got := participantIdentity(map[string]interface{}{"type": "join"}); got != "" {
		t.Errorf("identity from join = %q", got)
	}
}

func TestWaitForParticipantAlreadyPresent(t *testing.T) {
	c := NewClient("ws://localhost", "tok", "room-1", "agent-room-1", zap.NewNop())
	c.addParticipant("user-1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	identity, err := c.WaitForParticipant(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if identity != "user-1" {
		t.Errorf("identity = %q", identity)
	}
}

func TestWaitForParticipantIgnoresSelf(t *testing.T) {
	c := NewClient("ws://localhost", "tok", "room-1", "agent-room-1", zap.NewNop())
	c.addParticipant("agent-room-1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.WaitForParticipant(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestReadFrameAfterClose(t *testing.T) {
	c := NewClient("ws://localhost", "tok", "room-1", "agent-room-1", zap.NewNop())
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.ReadFrame(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestPublishDataWithoutChannel(t *testing.T) {
	c := NewClient("ws://localhost", "tok", "room-1", "agent-room-1", zap.NewNop())
	if err := c.PublishData(context.Background(), []byte(`{}`), "transcription", true); err == nil {
		t.Fatal("expected error without a data channel")
	}
}
