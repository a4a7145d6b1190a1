package factory

import (
	"errors"

	"github.com/voxcare-ai/voice-agent/internal/config"
	"github.com/voxcare-ai/voice-agent/internal/interfaces"
	"github.com/voxcare-ai/voice-agent/internal/vendors/cartesia"
	"github.com/voxcare-ai/voice-agent/internal/vendors/deepgram"
	"github.com/voxcare-ai/voice-agent/internal/vendors/openai"
)

func NewSTT(cfg *config.Settings) (interfaces.STT, error) {
	switch cfg.STTVendor {
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			return nil, errors.New("DEEPGRAM_API_KEY required")
		}
		return deepgram.NewWithEndpoint(cfg.DeepgramAPIKey, cfg.DeepgramEndpoint), nil
	default:
		return nil, errors.New("unknown stt vendor")
	}
}

func NewLLM(cfg *config.Settings) (interfaces.LLM, error) {
	switch cfg.LLMVendor {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY required")
		}
		return openai.NewWithEndpointModel(cfg.OpenAIAPIKey, cfg.OpenAIEndpoint, ""), nil
	default:
		return nil, errors.New("unknown llm vendor")
	}
}

func NewTTS(cfg *config.Settings) (interfaces.TTS, error) {
	switch cfg.TTSVendor {
	case "cartesia":
		if cfg.CartesiaAPIKey == "" {
			return nil, errors.New("CARTESIA_API_KEY required")
		}
		return cartesia.NewWithEndpoint(cfg.CartesiaAPIKey, cfg.CartesiaVoice, cfg.CartesiaEndpoint), nil
	default:
		return nil, errors.New("unknown tts vendor")
	}
}
