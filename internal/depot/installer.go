// Package depot installs packages from an HTTP package depot into the local
// filesystem root.
//
// Layout under the root:
//
//	pkgs/<origin>/<name>/<version>/<release>/<origin>-<name>-<version>-<release>.pkg
//	pkgs/<origin>/<name>/<version>/<release>/RECEIPT
//
// The receipt is written last; a release directory without one is not
// considered installed.
package depot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/pkgs"
	cbor "github.com/fxamacker/cbor/v2"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const (
	ReceiptFilename = "RECEIPT"
	DefaultTimeout  = 5 * time.Minute
	// DefaultURL is the public depot used when no update URL is configured.
	DefaultURL = "https://depot.supctl.dev"
	EnvURL     = "SUPCTL_DEPOT_URL"

	artifactMode = 0o755
	receiptMode  = 0o644
	maxErrorBody = 4 << 10
)

var (
	ErrBadResponse = errors.New("depot: bad response body")
	ErrNoVersion   = errors.New("depot: no release in channel")
)

// APIError is a non-success response from the depot.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("[%d %s]", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("[%d %s] %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// DownloadWriteError reports a failure persisting an artifact.
type DownloadWriteError struct {
	Path string
	Err  error
}

func (e *DownloadWriteError) Error() string {
	return fmt.Sprintf("depot: write %s: %v", e.Path, e.Err)
}

func (e *DownloadWriteError) Unwrap() error { return e.Err }

// Receipt records one completed install.
type Receipt struct {
	Ident       string    `cbor:"1,keyasint"`
	Channel     string    `cbor:"2,keyasint"`
	Source      string    `cbor:"3,keyasint"`
	Artifact    string    `cbor:"4,keyasint"`
	Size        int64     `cbor:"5,keyasint"`
	SHA256      string    `cbor:"6,keyasint"`
	InstalledAt time.Time `cbor:"7,keyasint"`
}

type Config struct {
	// FSRoot is the filesystem root packages are installed under.
	FSRoot     string
	HTTPClient *http.Client
}

type Installer struct {
	root   string
	client *http.Client
	enc    cbor.EncMode
	dec    cbor.DecMode
	logger zerolog.Logger
	now    func() time.Time
}

func NewInstaller(cfg Config) (*Installer, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	root := cfg.FSRoot
	if root == "" {
		root = string(filepath.Separator)
	}
	return &Installer{
		root:   root,
		client: client,
		enc:    em,
		dec:    dm,
		logger: observability.Component("depot"),
		now:    time.Now,
	}, nil
}

// PkgsDir is where packages are installed.
func (in *Installer) PkgsDir() string {
	return filepath.Join(in.root, "pkgs")
}

func (in *Installer) releaseDir(id pkgs.Ident) string {
	return filepath.Join(in.PkgsDir(), id.Origin, id.Name, id.Version, id.Release)
}

func artifactName(id pkgs.Ident) string {
	return strings.Join([]string{id.Origin, id.Name, id.Version, id.Release}, "-") + ".pkg"
}

// Install resolves src in channel on the depot at baseURL and installs it
// unless that release is already present.
func (in *Installer) Install(ctx context.Context, src pkgs.InstallSource, baseURL string, channel pkgs.Channel) (pkgs.Install, error) {
	if channel == "" {
		channel = pkgs.DefaultChannel
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}

	id := src.Ident
	if !id.FullyQualified() {
		latest, err := in.Latest(ctx, src.Ident, baseURL, channel)
		if err != nil {
			return pkgs.Install{}, err
		}
		id = latest
	}

	if inst, ok, err := in.Installed(id); err != nil {
		return pkgs.Install{}, err
	} else if ok {
		in.logger.Debug().Str("ident", id.String()).Msg("package already installed")
		return inst, nil
	}
	return in.download(ctx, id, baseURL, channel)
}

// Latest asks the depot for the newest release of id in channel.
func (in *Installer) Latest(ctx context.Context, id pkgs.Ident, baseURL string, channel pkgs.Channel) (pkgs.Ident, error) {
	segs := []string{"v1", "depot", "channels", id.Origin, channel.String(), "pkgs", id.Name}
	if id.Version != "" {
		segs = append(segs, id.Version)
	}
	segs = append(segs, "latest")

	resp, err := in.get(ctx, endpoint(baseURL, segs...))
	if err != nil {
		return pkgs.Ident{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Origin  string `json:"origin"`
		Name    string `json:"name"`
		Version string `json:"version"`
		Release string `json:"release"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return pkgs.Ident{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	latest, err := pkgs.ParseIdent(strings.Join([]string{body.Origin, body.Name, body.Version, body.Release}, "/"))
	if err != nil {
		return pkgs.Ident{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if !latest.FullyQualified() || !id.Satisfies(latest) {
		return pkgs.Ident{}, fmt.Errorf("%w: %s in %s", ErrNoVersion, id, channel)
	}
	return latest, nil
}

// Installed reports whether id has a receipt on disk.
func (in *Installer) Installed(id pkgs.Ident) (pkgs.Install, bool, error) {
	if !id.FullyQualified() {
		return pkgs.Install{}, false, fmt.Errorf("%w: %s", pkgs.ErrNotFullyQualified, id)
	}
	dir := in.releaseDir(id)
	if _, err := in.ReadReceipt(id); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkgs.Install{}, false, nil
		}
		return pkgs.Install{}, false, err
	}
	return pkgs.Install{Ident: id, Path: dir}, true, nil
}

func (in *Installer) ReadReceipt(id pkgs.Ident) (Receipt, error) {
	data, err := os.ReadFile(filepath.Join(in.releaseDir(id), ReceiptFilename))
	if err != nil {
		return Receipt{}, err
	}
	var r Receipt
	if err := in.dec.Unmarshal(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("depot: decode receipt for %s: %w", id, err)
	}
	return r, nil
}

func (in *Installer) download(ctx context.Context, id pkgs.Ident, baseURL string, channel pkgs.Channel) (pkgs.Install, error) {
	u := endpoint(baseURL, "v1", "depot", "pkgs", id.Origin, id.Name, id.Version, id.Release, "download")
	resp, err := in.get(ctx, u)
	if err != nil {
		return pkgs.Install{}, err
	}
	defer resp.Body.Close()

	dir := in.releaseDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pkgs.Install{}, &DownloadWriteError{Path: dir, Err: err}
	}
	artifact := filepath.Join(dir, artifactName(id))
	size, sum, err := writeArtifact(artifact, resp.Body)
	if err != nil {
		return pkgs.Install{}, err
	}

	receipt := Receipt{
		Ident:       id.String(),
		Channel:     channel.String(),
		Source:      u,
		Artifact:    filepath.Base(artifact),
		Size:        size,
		SHA256:      sum,
		InstalledAt: in.now().UTC(),
	}
	data, err := in.enc.Marshal(receipt)
	if err != nil {
		return pkgs.Install{}, fmt.Errorf("depot: encode receipt: %w", err)
	}
	receiptPath := filepath.Join(dir, ReceiptFilename)
	if err := renameio.WriteFile(receiptPath, data, receiptMode); err != nil {
		return pkgs.Install{}, &DownloadWriteError{Path: receiptPath, Err: err}
	}

	in.logger.Info().
		Str("ident", id.String()).
		Str("channel", channel.String()).
		Int64("bytes", size).
		Msg("package installed")
	return pkgs.Install{Ident: id, Path: dir}, nil
}

func writeArtifact(path string, body io.Reader) (int64, string, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(artifactMode))
	if err != nil {
		return 0, "", &DownloadWriteError{Path: path, Err: err}
	}
	defer pf.Cleanup()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(pf, h), body)
	if err != nil {
		return 0, "", &DownloadWriteError{Path: path, Err: err}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, "", &DownloadWriteError{Path: path, Err: err}
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

func (in *Installer) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func endpoint(base string, segs ...string) string {
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	return base + "/" + strings.Join(escaped, "/")
}
