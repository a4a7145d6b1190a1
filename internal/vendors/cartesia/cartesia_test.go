package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize(t *testing.T) {
	var gotReq ttsRequest
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotVersion = r.Header.Get("Cartesia-Version")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("PCMPCMPCM"))
	}))
	defer srv.Close()

	tts := NewWithEndpoint("ca-key", "voice-1", srv.URL)
	audio, err := tts.Synthesize(context.Background(), "Hello, how can I help you?")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.Equal(audio, []byte("PCMPCMPCM")) {
		t.Errorf("audio = %q", audio)
	}
	if gotKey != "ca-key" || gotVersion != apiVersion {
		t.Errorf("headers = %q / %q", gotKey, gotVersion)
	}
	if gotReq.Transcript != "Hello, how can I help you?" {
		t.Errorf("transcript = %q", gotReq.Transcript)
	}
	if gotReq.Voice.ID != "voice-1" || gotReq.Voice.Mode != "id" {
		t.Errorf("voice = %+v", gotReq.Voice)
	}
	if gotReq.OutputFormat.Encoding != "pcm_s16le" || gotReq.OutputFormat.SampleRate != 16000 {
		t.Errorf("output format = %+v", gotReq.OutputFormat)
	}
}

func TestSynthesizeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "chunk1chunk2")
	}))
	defer srv.Close()

	tts := NewWithEndpoint("ca-key", "voice-1", srv.URL)
	var buf bytes.Buffer
	if err := tts.SynthesizeStream(context.Background(), "hello", &buf); err != nil {
		t.Fatalf("synthesize stream: %v", err)
	}
	if buf.String() != "chunk1chunk2" {
		t.Errorf("streamed audio = %q", buf.String())
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	tts := NewWithEndpoint("ca-key", "bad-voice", srv.URL)
	if _, err := tts.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 404")
	}
}
