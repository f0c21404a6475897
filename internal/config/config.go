package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

const (
	EnvCLIConfig = "SUPCTL_CLI_CONFIG"
	EnvFSRoot    = "SUPCTL_FS_ROOT"

	DefaultCtlPort = 9632
)

// CLI is the persisted command-line configuration store (cli.toml).
type CLI struct {
	CtlSecret   string `toml:"ctl_secret,omitempty"`
	RemoteSup   string `toml:"remote_sup,omitempty"`
	DepotURL    string `toml:"depot_url,omitempty"`
	Channel     string `toml:"channel,omitempty"`
	StatusColor string `toml:"status_color,omitempty"`
}

// FSRoot is the filesystem prefix for supervisor state, honoring SUPCTL_FS_ROOT.
func FSRoot(getenv func(string) string) string {
	if root := strings.TrimSpace(getenv(EnvFSRoot)); root != "" {
		return root
	}
	return "/"
}

// SupRoot is the default supervisor state directory under root.
func SupRoot(root string) string {
	return filepath.Join(root, "var", "lib", "supctl", "sup", "default")
}

// CLIConfigPath returns the cli.toml location, honoring SUPCTL_CLI_CONFIG.
func CLIConfigPath(getenv func(string) string) string {
	if p := strings.TrimSpace(getenv(EnvCLIConfig)); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(SupRoot(FSRoot(getenv)), "..", "..", "etc", "cli.toml")
	}
	return filepath.Join(home, ".supctl", "etc", "cli.toml")
}

// LoadCLI reads cli.toml. A missing file is an empty configuration.
func LoadCLI(path string) (CLI, error) {
	var cfg CLI
	if err := loadToml(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CLI{}, nil
		}
		return CLI{}, err
	}
	return cfg, nil
}

// SaveCLI atomically replaces cli.toml.
func SaveCLI(path string, cfg CLI) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config encode failed (%s): %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o600)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
