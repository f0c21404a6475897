package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/supctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadSupdTemplate(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "supd.toml")
	if err := WriteTemplate(path, "supd", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadSupd(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MemberID != "sup-local" || cfg.ListenCtl != "127.0.0.1:9632" || cfg.ListenHTTP != "127.0.0.1:9631" {
		t.Fatalf("unexpected listeners: %+v", cfg)
	}
	if cfg.AutoUpdate || cfg.UpdateChannel != "stable" || cfg.TickInterval != time.Second {
		t.Fatalf("unexpected update settings: %+v", cfg)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Ident != "core/redis/7.2.4/20240301000000" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
	if !strings.Contains(cfg.Services[0].DefaultCfg, "port = 6379") {
		t.Fatalf("unexpected default cfg: %q", cfg.Services[0].DefaultCfg)
	}
}

func TestLoadSupdKeepsDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)

	cfg, err := LoadSupd(writeFile(t, "tick_interval_ms = 250\nlisten_http = \"\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("tick=%s", cfg.TickInterval)
	}
	if cfg.ListenHTTP != "" {
		t.Fatalf("explicit empty listen_http should disable, got %q", cfg.ListenHTTP)
	}
	if cfg.ListenCtl != DefaultSupd().ListenCtl || cfg.MemberID != "sup-local" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadSupdRejects(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"bad duration":  "tick_interval = \"soon\"\n",
		"zero tick":     "tick_interval_ms = 0\n",
		"unknown key":   "listen_gossip = \"0.0.0.0:9638\"\n",
		"service ident": "[[service]]\ndefault_cfg = \"x\"\n",
	}
	for name, body := range cases {
		if _, err := LoadSupd(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
