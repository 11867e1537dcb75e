package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "tok"
  chat_id: -100
feed:
  token: "ghp_x"
relay:
  poll_interval: "5m"
  remind_after: "2h"
storage:
  path: "./db"
logging:
  level: "debug"
  console: true
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Telegram.ChatID != -100 {
		t.Fatalf("ChatID = %d", cfg.Telegram.ChatID)
	}
	if cfg.Relay.RemindAfter != "2h" {
		t.Fatalf("RemindAfter = %q", cfg.Relay.RemindAfter)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "tok"
  chat_identifier: -100
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		def  time.Duration
		want time.Duration
		err  bool
	}{
		{name: "empty uses default", raw: "", def: 5 * time.Minute, want: 5 * time.Minute},
		{name: "explicit", raw: "2h", def: 5 * time.Minute, want: 2 * time.Hour},
		{name: "garbage", raw: "soon", def: time.Minute, err: true},
		{name: "negative", raw: "-3s", def: time.Minute, err: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationOrDefault("relay.poll_interval", tt.raw, tt.def)
			if tt.err {
				if err == nil {
					t.Fatalf("ParseDurationOrDefault(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationOrDefault(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
