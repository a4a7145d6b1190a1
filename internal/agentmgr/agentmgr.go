// Package agentmgr tracks the agent sessions a worker is running, one per
// room. Spawning mints the agent's room token, records the session in the
// registry and hands the call to a runner in the background.
package agentmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/livekit"
	"github.com/voxcare-ai/voice-agent/internal/registry"
)

const sessionTokenTTL = time.Hour

// Runner serves one call. Satisfied by *session.Orchestrator.
type Runner interface {
	Run(ctx context.Context, roomName, identity, token string) error
}

type running struct {
	sessionID string
	cancel    context.CancelFunc
}

type Manager struct {
	runner Runner
	reg    *registry.Registry
	cfg    *config.Settings
	logger *zap.Logger

	mu     sync.Mutex
	agents map[string]running // room name -> session
}

func New(runner Runner, reg *registry.Registry, cfg *config.Settings, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runner: runner,
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		agents: make(map[string]running),
	}
}

// Spawn starts an agent session for the room and returns its session id.
// One agent per room; a second Spawn for the same room is an error.
func (m *Manager) Spawn(roomName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[roomName]; ok {
		return "", fmt.Errorf("agent already exists for room %s", roomName)
	}

	identity := "agent-" + roomName
	sessionID, err := m.reg.CreateSession(roomName, identity, "new")
	if err != nil {
		return "", err
	}

	token, err := livekit.AccessToken(m.cfg.LiveKitAPIKey, m.cfg.LiveKitAPISecret, roomName, identity, sessionTokenTTL)
	if err != nil {
		return "", err
	}
	_ = m.reg.UpdateSessionToken(sessionID, token)
	_ = m.reg.UpdateSessionStatus(sessionID, "active")

	ctx, cancel := context.WithCancel(context.Background())
	m.agents[roomName] = running{sessionID: sessionID, cancel: cancel}

	go func() {
		defer cancel()
		if err := m.runner.Run(ctx, roomName, identity, token); err != nil {
			m.logger.Error("agent session failed",
				zap.String("room", roomName),
				zap.String("session", sessionID),
				zap.Error(err))
		}
		m.mu.Lock()
		delete(m.agents, roomName)
		m.mu.Unlock()
		_ = m.reg.UpdateSessionStatus(sessionID, "ended")
	}()

	m.logger.Info("agent spawned",
		zap.String("room", roomName),
		zap.String("session", sessionID))
	return sessionID, nil
}

// Stop cancels the agent session for the room, if any.
func (m *Manager) Stop(roomName string) error {
	m.mu.Lock()
	r, ok := m.agents[roomName]
	delete(m.agents, roomName)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no agent for room %s", roomName)
	}
	r.cancel()
	_ = m.reg.UpdateSessionStatus(r.sessionID, "ended")
	m.logger.Info("agent stopped", zap.String("room", roomName))
	return nil
}

// Has reports whether an agent is serving the room.
func (m *Manager) Has(roomName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.agents[roomName]
	return ok
}

// StopAll cancels every running session, for worker shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	agents := m.agents
	m.agents = make(map[string]running)
	m.mu.Unlock()
	for room, r := range agents {
		r.cancel()
		_ = m.reg.UpdateSessionStatus(r.sessionID, "ended")
		m.logger.Info("agent stopped", zap.String("room", room))
	}
}
