// Package api serves the client-facing HTTP endpoints: token minting for
// browser participants and outbound phone calls through the SIP bridge. The
// server is stateless; the worker picks sessions up via webhooks.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/livekit"
)

const tokenTTL = time.Hour

// SIPDialer dials a phone number into a room. Satisfied by
// *livekit.SIPClient.
type SIPDialer interface {
	CreateSIPParticipant(ctx context.Context, trunkID, phone, room, identity string) (string, error)
}

type Server struct {
	cfg    *config.Settings
	dialer SIPDialer
	logger *zap.Logger
}

func NewServer(cfg *config.Settings, dialer SIPDialer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, dialer: dialer, logger: logger}
}

// Routes returns the handler with CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/api/call", s.handleCall)
	return cors(mux)
}

// handleToken mints a join token for a fresh room. Every request gets its
// own room and identity; the worker joins once the participant connects.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomName := "room-" + uuid.NewString()
	identity := "user-" + uuid.NewString()

	token, err := livekit.AccessToken(s.cfg.LiveKitAPIKey, s.cfg.LiveKitAPISecret, roomName, identity, tokenTTL)
	if err != nil {
		s.logger.Error("mint token failed", zap.Error(err))
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken": token,
		"url":         s.cfg.LiveKitURL,
	})
}

type callRequest struct {
	Phone string `json:"phone"`
}

// handleCall dials the given phone number into a new room. An unconfigured
// trunk is reported in the body with a 200, matching what dialer frontends
// expect; transport failures are real errors.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone required"})
		return
	}

	if s.cfg.SIPTrunkID == "" {
		writeJSON(w, http.StatusOK, map[string]string{"error": "SIP_TRUNK_ID not configured"})
		return
	}

	roomName := "call-" + uuid.NewString()
	identity := "phone-" + req.Phone

	callID, err := s.dialer.CreateSIPParticipant(r.Context(), s.cfg.SIPTrunkID, req.Phone, roomName, identity)
	if err != nil {
		s.logger.Error("sip dial failed", zap.String("phone", req.Phone), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("call initiated",
		zap.String("room", roomName),
		zap.String("sip_call_id", callID))
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Call initiated",
		"room_name": roomName,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// cors allows any origin; the API carries no credentials.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
