package deepgram

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

const defaultEndpoint = "https://api.deepgram.com/v1/listen"

// deepgramSTT posts finalized utterance audio to Deepgram's pre-recorded
// transcription API and returns the top alternative.
type deepgramSTT struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New constructs a Deepgram STT adapter using the hosted endpoint.
func New(apiKey string) interfaces.STT {
	return NewWithEndpoint(apiKey, defaultEndpoint)
}

// NewWithEndpoint constructs a Deepgram STT adapter with a custom endpoint.
func NewWithEndpoint(apiKey, endpoint string) interfaces.STT {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &deepgramSTT{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float32 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *deepgramSTT) Recognize(ctx context.Context, audio []byte) (string, float32, error) {
	url := d.endpoint + "?model=nova-2&encoding=linear16&sample_rate=16000&smart_format=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("post to deepgram: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, string(body))
	}

	var out deepgramResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", 0, nil
	}
	alt := out.Results.Channels[0].Alternatives[0]
	return alt.Transcript, alt.Confidence, nil
}
