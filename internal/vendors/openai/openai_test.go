package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxcare-ai/voice-agent/internal/interfaces"
)

func TestChat(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Certainly."}}]}`)
	}))
	defer srv.Close()

	llm := NewWithEndpointModel("sk-test", srv.URL, "gpt-4o-mini")
	res, err := llm.Chat(context.Background(), []interfaces.ChatMessage{
		{Role: "system", Content: "You are a receptionist."},
		{Role: "user", Content: "Can you help me?"},
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Content != "Certainly." {
		t.Errorf("content = %q", res.Content)
	}
	if len(res.ToolCalls) != 0 {
		t.Errorf("unexpected tool calls: %+v", res.ToolCalls)
	}
	if gotReq.Model != "gpt-4o-mini" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first message role = %q", gotReq.Messages[0].Role)
	}
}

func TestChatToolCalls(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"book_meeting","arguments":"{\"time\":\"tomorrow at 3pm\"}"}}]}}]}`)
	}))
	defer srv.Close()

	llm := NewWithEndpointModel("sk-test", srv.URL, "")
	res, err := llm.Chat(context.Background(),
		[]interfaces.ChatMessage{{Role: "user", Content: "Book me in for tomorrow at 3pm"}},
		[]interfaces.ToolSpec{{
			Name:        "book_meeting",
			Description: "Book a meeting with the user",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"time": map[string]any{"type": "string"}},
			},
		}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(res.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", res.ToolCalls)
	}
	tc := res.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "book_meeting" {
		t.Errorf("tool call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("tool arguments not JSON: %v", err)
	}
	if args["time"] != "tomorrow at 3pm" {
		t.Errorf("args = %v", args)
	}

	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "book_meeting" {
		t.Errorf("tools on wire = %+v", gotReq.Tools)
	}
}

func TestChatToolResultRoundTrip(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Your meeting is booked."}}]}`)
	}))
	defer srv.Close()

	llm := NewWithEndpointModel("sk-test", srv.URL, "")
	_, err := llm.Chat(context.Background(), []interfaces.ChatMessage{
		{Role: "user", Content: "Book me in"},
		{Role: "assistant", ToolCalls: []interfaces.ToolCall{{ID: "call_1", Name: "book_meeting", Arguments: `{"time":"3pm"}`}}},
		{Role: "tool", ToolCallID: "call_1", Content: "Meeting booked for 3pm"},
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(gotReq.Messages) != 3 {
		t.Fatalf("messages on wire = %d", len(gotReq.Messages))
	}
	if gotReq.Messages[1].ToolCalls[0].Function.Name != "book_meeting" {
		t.Errorf("assistant tool call = %+v", gotReq.Messages[1])
	}
	if gotReq.Messages[2].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", gotReq.Messages[2])
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	llm := NewWithEndpointModel("sk-test", srv.URL, "")
	if _, err := llm.Chat(context.Background(), []interfaces.ChatMessage{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error when no choices returned")
	}
}
