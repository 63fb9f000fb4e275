package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY",
		"FLUX_LIVE_MODEL", "FLUX_VOICE", "FLUX_COMPANION_NAME", "DATABASE_URL", "FLUX_DEBUG"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CompanionName != "Nova" {
		t.Errorf("expected default companion name, got %q", cfg.CompanionName)
	}
	if cfg.Debug {
		t.Error("expected debug off by default")
	}
}

func TestLoadKeyFallbackOrder(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("API_KEY", "plain-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "google-key" {
		t.Errorf("expected GOOGLE_API_KEY to win, got %q", cfg.APIKey)
	}
}

func TestLoadRejectsBadDebugFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLUX_DEBUG", "not-a-bool")
	if _, err := Load(); err == nil {
		t.Error("expected an error for a malformed FLUX_DEBUG")
	}
}
