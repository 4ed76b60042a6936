package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Memory.DecayThresholdDays != 30 {
		t.Errorf("decay threshold: got %d, want 30", cfg.Memory.DecayThresholdDays)
	}
	if cfg.Scheduler.PublishTimesPerDay != 2 {
		t.Errorf("publish times: got %d, want 2", cfg.Scheduler.PublishTimesPerDay)
	}
	if len(cfg.Scheduler.PublishWindows) != 3 {
		t.Errorf("windows: got %v", cfg.Scheduler.PublishWindows)
	}
	if cfg.Profile.CooldownMinutes != 30 || cfg.Profile.IntensityThreshold != 0.6 {
		t.Errorf("profile defaults: got %+v", cfg.Profile)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("EIDOLON_TEST_PORT", "9999")
	cfg, err := Load(writeConfig(t, `{
		"server": {"port": ${EIDOLON_TEST_PORT:8080}},
		"persona": {"name": "${EIDOLON_TEST_NAME:mira}"}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port: got %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Persona.Name != "mira" {
		t.Errorf("name: got %q, want default %q", cfg.Persona.Name, "mira")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad port", `{"server": {"port": 99999}}`, "server.port"},
		{"bad log level", `{"server": {"log_level": "loud"}}`, "log_level"},
		{"bad timezone", `{"persona": {"timezone": "Mars/Olympus"}}`, "timezone"},
		{"bad sweep interval", `{"memory": {"sweep_interval": "daily"}}`, "sweep_interval"},
		{"bad probability", `{"scheduler": {"insomnia_probability": 1.5}}`, "insomnia_probability"},
		{"provider without id", `{"providers": [{"type": "openai"}]}`, "missing id"},
		{"discord without token", `{"gateway": {"discord": {"enabled": true}}}`, "bot_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("want error for missing file")
	}
}
