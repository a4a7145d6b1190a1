package prompts

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults used when the prompt file is missing or malformed.
const (
	DefaultSystemPrompt    = "You are a helpful assistant."
	DefaultInitialGreeting = "Hello, how can I help you?"
)

// Prompts holds the agent's system prompt and the greeting spoken when a
// participant joins.
type Prompts struct {
	SystemPrompt    string `yaml:"system_prompt"`
	InitialGreeting string `yaml:"initial_greeting"`
}

// Load reads the prompt file at path. A missing or unparseable file is not
// fatal: the hardcoded defaults are returned and the problem is logged.
func Load(path string, logger *zap.Logger) *Prompts {
	p := &Prompts{
		SystemPrompt:    DefaultSystemPrompt,
		InitialGreeting: DefaultInitialGreeting,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("prompt file unreadable, using defaults", zap.String("path", path), zap.Error(err))
		return p
	}

	var loaded Prompts
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		logger.Warn("prompt file malformed, using defaults", zap.String("path", path), zap.Error(err))
		return p
	}

	if loaded.SystemPrompt != "" {
		p.SystemPrompt = loaded.SystemPrompt
	}
	if loaded.InitialGreeting != "" {
		p.InitialGreeting = loaded.InitialGreeting
	}
	return p
}
