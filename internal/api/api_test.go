package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/config"
)

type fakeDialer struct {
	trunkID  string
	phone    string
	room     string
	identity string
	err      error
}

func (f *fakeDialer) CreateSIPParticipant(ctx context.Context, trunkID, phone, room, identity string) (string, error) {
	f.trunkID, f.phone, f.room, f.identity = trunkID, phone, room, identity
	if f.err != nil {
		return "", f.err
	}
	return "SCL_123", nil
}

func testServer(trunkID string, dialer SIPDialer) *Server {
	cfg := &config.Settings{
		LiveKitURL:       "wss://example.livekit.cloud",
		LiveKitAPIKey:    "devkey",
		LiveKitAPISecret: "devsecret-devsecret-devsecret-xx",
		SIPTrunkID:       trunkID,
	}
	return NewServer(cfg, dialer, zap.NewNop())
}

func TestToken(t *testing.T) {
	srv := httptest.NewServer(testServer("", nil).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/token")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"accessToken"`
		URL         string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.URL != "wss://example.livekit.cloud" {
		t.Errorf("url = %q", out.URL)
	}

	tok, err := jwt.Parse(out.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte("devsecret-devsecret-devsecret-xx"), nil
	})
	if err != nil || !tok.Valid {
		t.Fatalf("token invalid: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)
	sub, _ := claims["sub"].(string)
	if !strings.HasPrefix(sub, "user-") {
		t.Errorf("identity = %q", sub)
	}
	video, _ := claims["video"].(map[string]interface{})
	room, _ := video["room"].(string)
	if !strings.HasPrefix(room, "room-") {
		t.Errorf("room = %q", room)
	}
}

func TestTokenRoomsAreUnique(t *testing.T) {
	srv := httptest.NewServer(testServer("", nil).Routes())
	defer srv.Close()

	rooms := make(map[string]bool)
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/api/token")
		if err != nil {
			t.Fatal(err)
		}
		var out struct {
			AccessToken string `json:"accessToken"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()

		tok, _, err := jwt.NewParser().ParseUnverified(out.AccessToken, jwt.MapClaims{})
		if err != nil {
			t.Fatal(err)
		}
		video := tok.Claims.(jwt.MapClaims)["video"].(map[string]interface{})
		rooms[video["room"].(string)] = true
	}
	if len(rooms) != 5 {
		t.Errorf("got %d distinct rooms from 5 requests", len(rooms))
	}
}

func TestCall(t *testing.T) {
	dialer := &fakeDialer{}
	srv := httptest.NewServer(testServer("ST_trunk", dialer).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/call", "application/json", strings.NewReader(`{"phone":"+15551234567"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["message"] != "Call initiated" {
		t.Errorf("message = %q", out["message"])
	}
	if !strings.HasPrefix(out["room_name"], "call-") {
		t.Errorf("room_name = %q", out["room_name"])
	}

	if dialer.trunkID != "ST_trunk" || dialer.phone != "+15551234567" {
		t.Errorf("dialer got trunk=%q phone=%q", dialer.trunkID, dialer.phone)
	}
	if dialer.room != out["room_name"] {
		t.Errorf("dialer room = %q, response room = %q", dialer.room, out["room_name"])
	}
}

func TestCallWithoutTrunk(t *testing.T) {
	srv := httptest.NewServer(testServer("", &fakeDialer{}).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/call", "application/json", strings.NewReader(`{"phone":"+15551234567"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out["error"] != "SIP_TRUNK_ID not configured" {
		t.Errorf("error = %q", out["error"])
	}
}

func TestCallDialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("trunk rejected the call")}
	srv := httptest.NewServer(testServer("ST_trunk", dialer).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/call", "application/json", strings.NewReader(`{"phone":"+15551234567"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCallRequiresPhone(t *testing.T) {
	srv := httptest.NewServer(testServer("ST_trunk", &fakeDialer{}).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/call", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	srv := httptest.NewServer(testServer("", nil).Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/token", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}
