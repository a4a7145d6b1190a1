package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxcare-ai/voice-agent/internal/interfaces"
)

const (
	defaultEndpoint = "https://api.cartesia.ai/tts/bytes"
	apiVersion      = "2024-06-10"
	modelID         = "sonic-2"
)

// cartesiaTTS synthesizes speech through Cartesia's bytes endpoint,
// requesting raw 16 kHz s16le PCM so the audio can go straight to the
// playback track without transcoding.
type cartesiaTTS struct {
	endpoint string
	apiKey   string
	voiceID  string
	client   *http.Client
}

// New returns a Cartesia TTS adapter for the hosted endpoint.
func New(apiKey, voiceID string) interfaces.TTS {
	return NewWithEndpoint(apiKey, voiceID, defaultEndpoint)
}

// NewWithEndpoint allows overriding the Cartesia endpoint.
func NewWithEndpoint(apiKey, voiceID, endpoint string) interfaces.TTS {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	// Larger timeout: long replies stream for several seconds.
	return &cartesiaTTS{
		endpoint: endpoint,
		apiKey:   apiKey,
		voiceID:  voiceID,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type ttsRequest struct {
	ModelID    string `json:"model_id"`
	Transcript string `json:"transcript"`
	Voice      struct {
		Mode string `json:"mode"`
		ID   string `json:"id"`
	} `json:"voice"`
	OutputFormat struct {
		Container  string `json:"container"`
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sample_rate"`
	} `json:"output_format"`
}

func (c *cartesiaTTS) newRequest(ctx context.Context, text string) (*http.Request, error) {
	body := ttsRequest{ModelID: modelID, Transcript: text}
	body.Voice.Mode = "id"
	body.Voice.ID = c.voiceID
	body.OutputFormat.Container = "raw"
	body.OutputFormat.Encoding = "pcm_s16le"
	body.OutputFormat.SampleRate = 16000

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *cartesiaTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req, err := c.newRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to cartesia: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// SynthesizeStream copies the chunked audio response directly to w for
// low-latency playback.
func (c *cartesiaTTS) SynthesizeStream(ctx context.Context, text string, w io.Writer) error {
	req, err := c.newRequest(ctx, text)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to cartesia: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cartesia bad status %d: %s", resp.StatusCode, string(b))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("stream tts response: %w", err)
	}
	return nil
}
