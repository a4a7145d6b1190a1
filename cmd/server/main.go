// The API server mints room tokens for browser clients and places outbound
// phone calls through the SIP bridge. It keeps no state; the agent worker
// reacts to room events on its own.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/api"
	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/livekit"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	if cfg.LiveKitURL == "" || cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		logger.Fatal("LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	dialer := livekit.NewSIPClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: api.NewServer(cfg, dialer, logger).Routes(),
	}

	go func() {
		logger.Info("api server up", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
