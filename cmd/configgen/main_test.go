package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/testutil/testlog"
)

func TestTemplatesValidate(t *testing.T) {
	testlog.Start(t)

	for _, kind := range []string{"supd", "cli"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if err := config.WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s: %v", kind, err)
		}
		if err := validateConfig(kind, path); err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
	}
}

func TestValidateRejectsBrokenSupd(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "supd.toml")
	if err := os.WriteFile(path, []byte("tick_interval = \"soon\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := validateConfig("supd", path); err == nil {
		t.Fatalf("expected invalid tick_interval")
	}
	if err := validateConfig("cli", filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing cli config to fail validation")
	}
}
