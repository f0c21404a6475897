package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/depot"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/danmuck/supctl/internal/testutil/testlog"
)

func fakeEnv(vars map[string]string) env {
	return env{
		Getenv: func(key string) string { return vars[key] },
		LookupEnv: func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		},
	}
}

func TestLoadFileConfigMissingUsesDefaults(t *testing.T) {
	testlog.Start(t)

	cfg, found, err := loadFileConfig(filepath.Join(t.TempDir(), "supd.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected missing file")
	}
	if cfg.MemberID != "sup-local" || cfg.TickInterval != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileConfigTemplate(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "supd.toml")
	if err := config.WriteTemplate(path, "supd", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, found, err := loadFileConfig(path)
	if err != nil || !found {
		t.Fatalf("load found=%v err=%v", found, err)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Ident != "core/redis/7.2.4/20240301000000" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
}

func TestEnsureCtlSecretCreatesOnce(t *testing.T) {
	testlog.Start(t)

	supRoot := filepath.Join(t.TempDir(), "sup", "default")
	e := fakeEnv(nil)

	first, created, err := ensureCtlSecret(e, supRoot)
	if err != nil || !created || first == "" {
		t.Fatalf("first ensure secret=%q created=%v err=%v", first, created, err)
	}
	data, err := os.ReadFile(auth.CtlSecretPath(supRoot))
	if err != nil || string(data) != first {
		t.Fatalf("secret file got=%q err=%v", data, err)
	}

	second, created, err := ensureCtlSecret(e, supRoot)
	if err != nil || created || second != first {
		t.Fatalf("second ensure secret=%q created=%v err=%v", second, created, err)
	}
}

func TestEnsureCtlSecretPrefersEnvironment(t *testing.T) {
	testlog.Start(t)

	supRoot := filepath.Join(t.TempDir(), "sup", "default")
	secret, created, err := ensureCtlSecret(fakeEnv(map[string]string{auth.EnvCtlSecret: "from-env"}), supRoot)
	if err != nil || created || secret != "from-env" {
		t.Fatalf("secret=%q created=%v err=%v", secret, created, err)
	}
	if _, err := os.Stat(auth.CtlSecretPath(supRoot)); !os.IsNotExist(err) {
		t.Fatalf("secret file should not be written, stat err=%v", err)
	}
}

func TestToManagerConfig(t *testing.T) {
	testlog.Start(t)

	file := config.DefaultSupd()
	file.MemberID = "sup-a"
	file.AutoUpdate = true
	file.CORSOrigins = []string{"http://ops.local"}
	file.TickInterval = 250 * time.Millisecond
	file.Services = []config.SupdService{{Ident: "core/redis", DefaultCfg: "port = 6379"}}

	installer, err := depot.NewInstaller(depot.Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("installer: %v", err)
	}
	current := pkgs.MustParseIdent("supctl/supd/1.0.0/20240101000000")
	e := fakeEnv(map[string]string{
		depot.EnvURL:    "http://depot.local",
		pkgs.EnvChannel: "unstable",
	})

	cfg, err := toManagerConfig(file, e, current, "s3cret", installer)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if cfg.MemberID != "sup-a" || cfg.CtlSecret != "s3cret" || cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.UpdateURL != "http://depot.local" {
		t.Fatalf("update url got=%q", cfg.UpdateURL)
	}
	if cfg.UpdateChannel != "unstable" {
		t.Fatalf("channel got=%q", cfg.UpdateChannel)
	}
	if cfg.Install == nil || !cfg.AutoUpdate {
		t.Fatalf("expected installer wired for auto update")
	}
	if len(cfg.Services) != 1 || cfg.Services[0].DefaultCfg != "port = 6379" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
	if cfg.Current.String() != current.String() {
		t.Fatalf("current got=%s", cfg.Current)
	}
}

func TestToManagerConfigURLPrecedence(t *testing.T) {
	testlog.Start(t)

	file := config.DefaultSupd()
	cfg, err := toManagerConfig(file, fakeEnv(nil), pkgs.MustParseIdent("supctl/supd"), "x", nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if cfg.UpdateURL != depot.DefaultURL || cfg.UpdateChannel != pkgs.DefaultChannel {
		t.Fatalf("defaults got url=%q channel=%q", cfg.UpdateURL, cfg.UpdateChannel)
	}

	file.UpdateURL = "http://mirror.local"
	cfg, _ = toManagerConfig(file, fakeEnv(map[string]string{depot.EnvURL: "http://depot.local"}), pkgs.MustParseIdent("supctl/supd"), "x", nil)
	if cfg.UpdateURL != "http://mirror.local" {
		t.Fatalf("file url should win, got=%q", cfg.UpdateURL)
	}

	_, err = toManagerConfig(file, fakeEnv(map[string]string{pkgs.EnvChannel: "bad channel"}), pkgs.MustParseIdent("supctl/supd"), "x", nil)
	if err == nil {
		t.Fatalf("expected invalid channel error")
	}
}
