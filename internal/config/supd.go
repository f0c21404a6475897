package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// SupdService is one [[service]] entry of supd.toml.
type SupdService struct {
	Ident      string
	DefaultCfg string
}

// Supd is the supervisor daemon configuration (supd.toml).
type Supd struct {
	MemberID      string
	ListenCtl     string
	ListenHTTP    string
	CORSOrigins   []string
	AutoUpdate    bool
	UpdateURL     string
	UpdateChannel string
	TickInterval  time.Duration
	Services      []SupdService
}

func DefaultSupd() Supd {
	return Supd{
		MemberID:      "sup-local",
		ListenCtl:     fmt.Sprintf("127.0.0.1:%d", DefaultCtlPort),
		ListenHTTP:    "127.0.0.1:9631",
		UpdateChannel: "stable",
		TickInterval:  time.Second,
	}
}

type supdFile struct {
	MemberID       string   `toml:"member_id"`
	ListenCtl      string   `toml:"listen_ctl"`
	ListenHTTP     string   `toml:"listen_http"`
	CORSOrigins    []string `toml:"cors_origins"`
	AutoUpdate     bool     `toml:"auto_update"`
	UpdateURL      string   `toml:"update_url"`
	UpdateChannel  string   `toml:"update_channel"`
	TickInterval   string   `toml:"tick_interval"`
	TickIntervalMS int64    `toml:"tick_interval_ms"`
	Services       []struct {
		Ident      string `toml:"ident"`
		DefaultCfg string `toml:"default_cfg"`
	} `toml:"service"`
}

// LoadSupd overlays the keys present in path onto DefaultSupd.
func LoadSupd(path string) (Supd, error) {
	cfg := DefaultSupd()

	var raw supdFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Supd{}, fmt.Errorf("load supd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Supd{}, fmt.Errorf("load supd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("member_id") {
		if id := strings.TrimSpace(raw.MemberID); id != "" {
			cfg.MemberID = id
		}
	}
	if meta.IsDefined("listen_ctl") {
		cfg.ListenCtl = strings.TrimSpace(raw.ListenCtl)
	}
	if meta.IsDefined("listen_http") {
		cfg.ListenHTTP = strings.TrimSpace(raw.ListenHTTP)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("auto_update") {
		cfg.AutoUpdate = raw.AutoUpdate
	}
	if meta.IsDefined("update_url") {
		cfg.UpdateURL = strings.TrimSpace(raw.UpdateURL)
	}
	if meta.IsDefined("update_channel") {
		cfg.UpdateChannel = strings.TrimSpace(raw.UpdateChannel)
	}
	if meta.IsDefined("tick_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.TickInterval))
		if err != nil {
			return Supd{}, fmt.Errorf("parse tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	if meta.IsDefined("tick_interval_ms") {
		cfg.TickInterval = time.Duration(raw.TickIntervalMS) * time.Millisecond
	}
	if cfg.TickInterval <= 0 {
		return Supd{}, fmt.Errorf("load supd config: tick interval must be positive")
	}

	for _, svc := range raw.Services {
		ident := strings.TrimSpace(svc.Ident)
		if ident == "" {
			return Supd{}, fmt.Errorf("load supd config: service entry without ident")
		}
		cfg.Services = append(cfg.Services, SupdService{Ident: ident, DefaultCfg: svc.DefaultCfg})
	}
	return cfg, nil
}
