package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/depot"
	"github.com/danmuck/supctl/internal/manager"
	"github.com/danmuck/supctl/internal/pkgs"
)

// env is the slice of the process environment supd reads at startup.
type env struct {
	Getenv    func(string) string
	LookupEnv func(string) (string, bool)
}

func processEnv() env {
	return env{Getenv: os.Getenv, LookupEnv: os.LookupEnv}
}

func defaultConfigPath(getenv func(string) string) string {
	return filepath.Join(config.FSRoot(getenv), "etc", "supctl", "supd.toml")
}

// loadFileConfig reads supd.toml. A missing file runs with defaults.
func loadFileConfig(path string) (config.Supd, bool, error) {
	cfg, err := config.LoadSupd(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultSupd(), false, nil
	}
	if err != nil {
		return config.Supd{}, false, err
	}
	return cfg, true, nil
}

// ensureCtlSecret returns the gateway secret, writing a fresh one to the
// supervisor's secret file on first start.
func ensureCtlSecret(e env, supRoot string) (string, bool, error) {
	path := auth.CtlSecretPath(supRoot)
	secret, err := auth.ResolveCtlSecret(auth.SecretSources{
		LookupEnv:  e.LookupEnv,
		ReadFile:   os.ReadFile,
		SecretPath: path,
	})
	if err == nil {
		return secret, false, nil
	}
	if !errors.Is(err, auth.ErrCtlSecretNotFound) {
		return "", false, err
	}
	secret, err = auth.GenerateSecret()
	if err != nil {
		return "", false, fmt.Errorf("generate ctl secret: %w", err)
	}
	if err := auth.WriteSecretFile(path, secret); err != nil {
		return "", false, fmt.Errorf("write ctl secret %s: %w", path, err)
	}
	return secret, true, nil
}

func updateURL(file config.Supd, getenv func(string) string) string {
	if u := strings.TrimSpace(file.UpdateURL); u != "" {
		return u
	}
	if u := strings.TrimSpace(getenv(depot.EnvURL)); u != "" {
		return u
	}
	return depot.DefaultURL
}

// updateChannel prefers the channel named in the environment over the file.
func updateChannel(file config.Supd, getenv func(string) string) (pkgs.Channel, error) {
	raw := file.UpdateChannel
	if v := strings.TrimSpace(getenv(pkgs.EnvChannel)); v != "" {
		raw = v
	}
	return pkgs.ParseChannel(raw)
}

func toManagerConfig(file config.Supd, e env, current pkgs.Ident, secret string, install *depot.Installer) (manager.Config, error) {
	channel, err := updateChannel(file, e.Getenv)
	if err != nil {
		return manager.Config{}, err
	}

	cfg := manager.DefaultConfig()
	cfg.MemberID = file.MemberID
	cfg.Current = current
	cfg.CtlListenAddr = file.ListenCtl
	cfg.HTTPListenAddr = file.ListenHTTP
	cfg.CORSOrigins = file.CORSOrigins
	cfg.CtlSecret = secret
	cfg.TickInterval = file.TickInterval
	cfg.AutoUpdate = file.AutoUpdate
	cfg.UpdateURL = updateURL(file, e.Getenv)
	cfg.UpdateChannel = channel
	cfg.Getenv = e.Getenv
	if install != nil {
		cfg.Install = install.Install
	}

	cfg.Services = make([]manager.ServiceSpec, 0, len(file.Services))
	for _, svc := range file.Services {
		cfg.Services = append(cfg.Services, manager.ServiceSpec{Ident: svc.Ident, DefaultCfg: svc.DefaultCfg})
	}
	return cfg, nil
}
