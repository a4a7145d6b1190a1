package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultCartesiaVoiceID is used when CARTESIA_VOICE_ID is not set.
const DefaultCartesiaVoiceID = "248be419-3632-4f4d-b671-2ab23ede5d4d"

// Settings contains runtime configuration for both the agent worker and the
// token/call API server. All values come from the environment, with a .env
// file in the working directory as fallback.
type Settings struct {
	// LiveKit
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Speech-stage API keys
	DeepgramAPIKey string
	OpenAIAPIKey   string
	CartesiaAPIKey string
	CartesiaVoice  string

	// Vendor selection, overridable for tests and local stacks.
	STTVendor string
	LLMVendor string
	TTSVendor string

	// Optional endpoint overrides for the vendor adapters.
	DeepgramEndpoint string
	OpenAIEndpoint   string
	CartesiaEndpoint string

	// Conversation store
	RedisURL string

	// Telephony bridge. Empty disables outbound calling.
	SIPTrunkID string

	// Local state
	RegistryPath string
	PromptPath   string

	// HTTP listen ports
	APIPort     string
	WebhookPort string
}

// Load constructs Settings from environment variables. Missing speech-stage
// keys are not an error here; pipeline construction fails on first use.
func Load() *Settings {
	return &Settings{
		LiveKitURL:       getEnv("LIVEKIT_URL", ""),
		LiveKitAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnv("LIVEKIT_API_SECRET", ""),

		DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		CartesiaAPIKey: getEnv("CARTESIA_API_KEY", ""),
		CartesiaVoice:  getEnv("CARTESIA_VOICE_ID", DefaultCartesiaVoiceID),

		STTVendor: getEnv("STT_VENDOR", "deepgram"),
		LLMVendor: getEnv("LLM_VENDOR", "openai"),
		TTSVendor: getEnv("TTS_VENDOR", "cartesia"),

		DeepgramEndpoint: getEnv("DEEPGRAM_ENDPOINT", ""),
		OpenAIEndpoint:   getEnv("OPENAI_ENDPOINT", ""),
		CartesiaEndpoint: getEnv("CARTESIA_ENDPOINT", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		SIPTrunkID: getEnv("SIP_TRUNK_ID", ""),

		RegistryPath: getEnv("REGISTRY_PATH", "data/voice-agent.db"),
		PromptPath:   getEnv("PROMPT_PATH", "prompts.yaml"),

		APIPort:     getEnv("API_PORT", "8080"),
		WebhookPort: getEnv("WEBHOOK_PORT", "8081"),
	}
}

func getEnv(key, def string) string {
	v := ""
	if val, ok := lookupEnv(key); ok {
		v = val
	} else {
		loadDotEnvOnce.Do(loadDotEnv)
		if dotEnv != nil {
			if val2, ok := dotEnv[key]; ok && val2 != "" {
				v = val2
			}
		}
	}
	if v == "" {
		return def
	}
	return v
}

// lookupEnv is a thin wrapper over os.LookupEnv so tests can replace it if needed.
var lookupEnv = func(key string) (string, bool) { return os.LookupEnv(key) }

var (
	dotEnv         map[string]string
	loadDotEnvOnce sync.Once
)

// loadDotEnv loads a .env file from the current working directory. Lines
// starting with '#' and empty lines are ignored; values keep everything
// after the first '='.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	data, err := os.ReadFile(filepath.Join(cwd, ".env"))
	if err != nil {
		// no .env present - nothing to do
		return
	}

	m := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:idx])
		v := strings.TrimSpace(line[idx+1:])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		m[k] = v
	}
	dotEnv = m
}
