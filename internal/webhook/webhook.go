// Package webhook receives LiveKit server events and turns them into agent
// lifecycle actions: a caller joining a room spawns an agent, a caller
// leaving or a room closing stops it.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/registry"
)

// AgentManager is the slice of the agent manager the webhook drives.
type AgentManager interface {
	Spawn(roomName string) (string, error)
	Stop(roomName string) error
	Has(roomName string) bool
}

type Handler struct {
	secret string // LiveKit api secret; empty disables signature checks
	mgr    AgentManager
	reg    *registry.Registry
	logger *zap.Logger
}

func NewHandler(secret string, mgr AgentManager, reg *registry.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{secret: secret, mgr: mgr, reg: reg, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		sig := r.Header.Get("X-LiveKit-Signature")
		if sig == "" {
			sig = r.Header.Get("Livekit-Signature")
		}
		if sig == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		if !h.verify(body, sig) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var evt map[string]interface{}
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.dispatch(evt)
	w.WriteHeader(http.StatusNoContent)
}

// verify accepts the HMAC-SHA256 of the body in either hex or base64,
// LiveKit deployments differ.
func (h *Handler) verify(body []byte, sig string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if hmac.Equal([]byte(hex.EncodeToString(expected)), []byte(sig)) {
		return true
	}
	return hmac.Equal([]byte(base64.StdEncoding.EncodeToString(expected)), []byte(sig))
}

func (h *Handler) dispatch(evt map[string]interface{}) {
	evtType, _ := evt["type"].(string)
	roomName := roomNameOf(evt)
	identity := participantIdentityOf(evt)

	switch evtType {
	case "participant_joined":
		if roomName == "" || isAgentIdentity(identity) {
			return
		}
		if h.reg != nil {
			if err := h.reg.UpsertRoom(roomName, "", "active"); err != nil {
				h.logger.Error("record room failed", zap.String("room", roomName), zap.Error(err))
			}
		}
		if h.mgr.Has(roomName) {
			return
		}
		sessionID, err := h.mgr.Spawn(roomName)
		if err != nil {
			h.logger.Error("spawn agent failed", zap.String("room", roomName), zap.Error(err))
			return
		}
		h.logger.Info("agent dispatched",
			zap.String("room", roomName),
			zap.String("session", sessionID),
			zap.String("caller", identity))

	case "participant_left":
		if roomName == "" || isAgentIdentity(identity) {
			return
		}
		if err := h.mgr.Stop(roomName); err != nil {
			h.logger.Debug("stop agent", zap.String("room", roomName), zap.Error(err))
		}
		if h.reg != nil {
			_ = h.reg.UpdateRoomStatus(roomName, "ended")
		}

	case "room_finished", "room_disconnected", "room_ended":
		if roomName == "" {
			return
		}
		if err := h.mgr.Stop(roomName); err != nil {
			h.logger.Debug("stop agent", zap.String("room", roomName), zap.Error(err))
		}
		if h.reg != nil {
			_ = h.reg.UpdateRoomStatus(roomName, "ended")
		}
	}
}

func roomNameOf(evt map[string]interface{}) string {
	room, _ := evt["room"].(map[string]interface{})
	name, _ := room["name"].(string)
	return name
}

func participantIdentityOf(evt map[string]interface{}) string {
	p, _ := evt["participant"].(map[string]interface{})
	identity, _ := p["identity"].(string)
	return identity
}

func isAgentIdentity(identity string) bool {
	return strings.HasPrefix(identity, "agent-")
}
