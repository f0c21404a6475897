package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "cli":
		return cliTemplate, nil
	case "supd":
		return supdTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(template), 0o600)
}

const cliTemplate = `# remote_sup = "127.0.0.1:9632"
# ctl_secret = ""
depot_url = "https://depot.supctl.dev"
channel = "stable"
status_color = "green"
`

const supdTemplate = `member_id = "sup-local"
listen_ctl = "127.0.0.1:9632"
listen_http = "127.0.0.1:9631"
cors_origins = ["http://localhost:3000"]
auto_update = false
update_url = "https://depot.supctl.dev"
update_channel = "stable"
tick_interval = "1s"

[[service]]
ident = "core/redis/7.2.4/20240301000000"
default_cfg = """
port = 6379
"""
`
