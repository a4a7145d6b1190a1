package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := "system_prompt: You are the clinic receptionist.\ninitial_greeting: Welcome to the clinic.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}

	p := Load(path, zap.NewNop())
	if p.SystemPrompt != "You are the clinic receptionist." {
		t.Errorf("SystemPrompt = %q", p.SystemPrompt)
	}
	if p.InitialGreeting != "Welcome to the clinic." {
		t.Errorf("InitialGreeting = %q", p.InitialGreeting)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	p := Load(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if p.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q, want default", p.SystemPrompt)
	}
	if p.InitialGreeting != DefaultInitialGreeting {
		t.Errorf("InitialGreeting = %q, want default", p.InitialGreeting)
	}
}

func TestLoadMalformedFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte("system_prompt: [unterminated"), 0644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}

	p := Load(path, zap.NewNop())
	if p.SystemPrompt != DefaultSystemPrompt || p.InitialGreeting != DefaultInitialGreeting {
		t.Errorf("expected defaults, got %+v", p)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte("system_prompt: Only this.\n"), 0644); err != nil {
		t.Fatalf("write prompt file: %v", err)
	}

	p := Load(path, zap.NewNop())
	if p.SystemPrompt != "Only this." {
		t.Errorf("SystemPrompt = %q", p.SystemPrompt)
	}
	if p.InitialGreeting != DefaultInitialGreeting {
		t.Errorf("InitialGreeting = %q, want default", p.InitialGreeting)
	}
}
