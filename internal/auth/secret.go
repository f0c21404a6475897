package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/supctl/internal/config"
	"github.com/google/renameio/v2"
)

const (
	EnvCtlSecret      = "SUPCTL_CTL_SECRET"
	CtlSecretFilename = "CTL_SECRET"

	secretBytes = 64
)

var ErrCtlSecretNotFound = errors.New("auth: ctl secret not found")

// SecretNotFoundError reports that no source produced a secret.
// Path is the secret file that was expected to exist.
type SecretNotFoundError struct {
	Path string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("auth: no ctl secret set in cli config or found at %s", e.Path)
}

func (e *SecretNotFoundError) Unwrap() error { return ErrCtlSecretNotFound }

// ConfigError wraps a failure to read the CLI config store.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// SecretSources are the inputs to ResolveCtlSecret, in precedence order.
type SecretSources struct {
	LookupEnv  func(key string) (string, bool)
	LoadConfig func() (config.CLI, error)
	ReadFile   func(path string) ([]byte, error)
	SecretPath string
}

// DefaultSecretSources reads the process environment, cli.toml and the
// supervisor's secret file.
func DefaultSecretSources() SecretSources {
	cliPath := config.CLIConfigPath(os.Getenv)
	return SecretSources{
		LookupEnv:  os.LookupEnv,
		LoadConfig: func() (config.CLI, error) { return config.LoadCLI(cliPath) },
		ReadFile:   os.ReadFile,
		SecretPath: CtlSecretPath(config.SupRoot(config.FSRoot(os.Getenv))),
	}
}

func CtlSecretPath(supRoot string) string {
	return filepath.Join(supRoot, CtlSecretFilename)
}

// ResolveCtlSecret returns the first non-empty secret from the environment,
// the CLI config store, or the secret file.
func ResolveCtlSecret(src SecretSources) (string, error) {
	if src.LookupEnv != nil {
		if v, ok := src.LookupEnv(EnvCtlSecret); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	if src.LoadConfig != nil {
		cfg, err := src.LoadConfig()
		if err != nil {
			return "", &ConfigError{Err: err}
		}
		if v := strings.TrimSpace(cfg.CtlSecret); v != "" {
			return v, nil
		}
	}
	return readSecretFile(src)
}

func readSecretFile(src SecretSources) (string, error) {
	if src.ReadFile == nil || src.SecretPath == "" {
		return "", &SecretNotFoundError{Path: src.SecretPath}
	}
	data, err := src.ReadFile(src.SecretPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &SecretNotFoundError{Path: src.SecretPath}
		}
		return "", fmt.Errorf("auth: read ctl secret %s: %w", src.SecretPath, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", &SecretNotFoundError{Path: src.SecretPath}
	}
	return secret, nil
}

// GenerateSecret returns a new random secret suitable for CTL_SECRET.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// WriteSecretFile atomically writes secret to path with owner-only permissions.
func WriteSecretFile(path, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(secret), 0o600)
}
