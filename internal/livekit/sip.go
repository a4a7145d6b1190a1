package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTrunkNotConfigured is returned when dialing without a SIP trunk id.
var ErrTrunkNotConfigured = errors.New("sip trunk not configured")

// SIPClient dials phone numbers into rooms through LiveKit's SIP service.
// The Twirp endpoint is called directly over HTTP with JSON bodies; the
// service answers on the same host as the signaling URL.
type SIPClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
}

// NewSIPClient builds a client for the LiveKit deployment at url. The url
// may use the ws/wss scheme of the signaling endpoint; it is rewritten to
// http/https.
func NewSIPClient(url, apiKey, apiSecret string) *SIPClient {
	base := strings.TrimSuffix(url, "/")
	if strings.HasPrefix(base, "wss") {
		base = "https" + base[3:]
	} else if strings.HasPrefix(base, "ws") {
		base = "http" + base[2:]
	}
	return &SIPClient{
		baseURL:   base,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type createSIPParticipantRequest struct {
	SIPTrunkID          string `json:"sip_trunk_id"`
	SIPCallTo           string `json:"sip_call_to"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name,omitempty"`
}

type createSIPParticipantResponse struct {
	ParticipantID       string `json:"participant_id"`
	ParticipantIdentity string `json:"participant_identity"`
	SIPCallID           string `json:"sip_call_id"`
}

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// CreateSIPParticipant asks the telephony bridge to dial phone into room
// under the given participant identity. It returns the SIP call id.
func (c *SIPClient) CreateSIPParticipant(ctx context.Context, trunkID, phone, room, identity string) (string, error) {
	if trunkID == "" {
		return "", ErrTrunkNotConfigured
	}

	token, err := ServerToken(c.apiKey, c.apiSecret, time.Minute)
	if err != nil {
		return "", fmt.Errorf("mint server token: %w", err)
	}

	reqBody := createSIPParticipantRequest{
		SIPTrunkID:          trunkID,
		SIPCallTo:           phone,
		RoomName:            room,
		ParticipantIdentity: identity,
		ParticipantName:     "Phone Caller",
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal sip request: %w", err)
	}

	url := c.baseURL + "/twirp/livekit.SIP/CreateSIPParticipant"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("new sip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post to sip service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read sip response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te twirpError
		if err := json.Unmarshal(body, &te); err == nil && te.Msg != "" {
			return "", fmt.Errorf("sip service error (%s): %s", te.Code, te.Msg)
		}
		return "", fmt.Errorf("sip service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out createSIPParticipantResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode sip response: %w", err)
	}
	return out.SIPCallID, nil
}
