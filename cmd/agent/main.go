// The agent worker joins LiveKit rooms and holds voice conversations.
// LiveKit webhooks drive its lifecycle: a participant joining a room spawns
// an agent session, a participant leaving or the room closing ends it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/agentmgr"
	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/factory"
	"github.com/voxcare-ai/voice-agent/internal/prompts"
	"github.com/voxcare-ai/voice-agent/internal/registry"
	"github.com/voxcare-ai/voice-agent/internal/session"
	"github.com/voxcare-ai/voice-agent/internal/store"
	"github.com/voxcare-ai/voice-agent/internal/webhook"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	if cfg.LiveKitURL == "" {
		logger.Fatal("LIVEKIT_URL is required")
	}

	p := prompts.Load(cfg.PromptPath, logger)

	st, err := store.Open(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("open conversation store", zap.Error(err))
	}
	defer st.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, transcripts will not be persisted", zap.Error(err))
	}
	cancelPing()

	if err := os.MkdirAll(filepath.Dir(cfg.RegistryPath), 0o755); err != nil {
		logger.Fatal("create registry dir", zap.Error(err))
	}
	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		logger.Fatal("open registry", zap.Error(err))
	}
	defer reg.Close()

	stt, err := factory.NewSTT(cfg)
	if err != nil {
		logger.Fatal("new stt", zap.Error(err))
	}
	llm, err := factory.NewLLM(cfg)
	if err != nil {
		logger.Fatal("new llm", zap.Error(err))
	}
	tts, err := factory.NewTTS(cfg)
	if err != nil {
		logger.Fatal("new tts", zap.Error(err))
	}

	orch := session.New(cfg, p, st, stt, llm, tts, logger)
	mgr := agentmgr.New(orch, reg, cfg, logger)

	mux := http.NewServeMux()
	mux.Handle("/webhook/livekit", webhook.NewHandler(cfg.LiveKitAPISecret, mgr, reg, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":" + cfg.WebhookPort, Handler: mux}
	go func() {
		logger.Info("webhook listener up", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("webhook server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	mgr.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
