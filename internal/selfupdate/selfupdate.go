// Package selfupdate watches the depot for a newer build of the supervisor
// itself and hands it to the owner exactly once.
//
// The owner polls Updated from its main loop. The background check runs on its
// own goroutine; if that goroutine dies without a result, the next Updated
// call starts a fresh one with the same parameters.
package selfupdate

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

const (
	// SupPackageIdent is the package the updater installs.
	SupPackageIdent = "supctl/supd"
	FrequencyEnvVar = "SUPCTL_SUP_UPDATE_MS"

	DefaultFrequency = 60_000 * time.Millisecond
	stopGrace        = time.Second
)

// InstallFunc installs the latest src from channel at url and returns what
// is now on disk.
type InstallFunc func(ctx context.Context, src pkgs.InstallSource, url string, channel pkgs.Channel) (pkgs.Install, error)

type Config struct {
	Current   pkgs.Ident
	UpdateURL string
	Channel   pkgs.Channel
	Install   InstallFunc
	// Getenv reads FrequencyEnvVar; defaults to os.Getenv.
	Getenv func(string) string
	// Context bounds every background loop; defaults to context.Background.
	Context context.Context
}

type SelfUpdater struct {
	cfg    Config
	src    pkgs.InstallSource
	logger zerolog.Logger

	mu        sync.Mutex
	rx        <-chan pkgs.Install
	sctx      *stopper.Context
	delivered bool
	stopped   bool
}

// New starts the background check immediately.
func New(cfg Config) *SelfUpdater {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Channel == "" {
		cfg.Channel = pkgs.DefaultChannel
	}
	u := &SelfUpdater{
		cfg:    cfg,
		src:    pkgs.InstallSource{Ident: pkgs.MustParseIdent(SupPackageIdent)},
		logger: observability.Component("self-updater"),
	}
	u.rx = u.start()
	return u
}

func (u *SelfUpdater) start() <-chan pkgs.Install {
	ch := make(chan pkgs.Install, 1)
	sctx := stopper.WithContext(u.cfg.Context)
	u.sctx = sctx
	sctx.Go(func(sctx *stopper.Context) error {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				u.logger.Error().Interface("panic", r).Msg("self updater died")
			}
		}()
		u.run(sctx, ch)
		return nil
	})
	return ch
}

func (u *SelfUpdater) run(sctx *stopper.Context, tx chan<- pkgs.Install) {
	u.logger.Debug().Str("current", u.cfg.Current.String()).Msg("self updater started")
	for {
		next := time.Now().Add(Frequency(u.cfg.Getenv))

		inst, err := u.cfg.Install(sctx, u.src, u.cfg.UpdateURL, u.cfg.Channel)
		switch {
		case err != nil:
			observability.RecordSelfUpdateCheck("error")
			u.logger.Warn().Err(err).Msg("self updater failed to get latest")
		case u.cfg.Current.Less(inst.Ident):
			observability.RecordSelfUpdateCheck("newer")
			u.logger.Info().Str("ident", inst.Ident.String()).Msg("self updater installed newer supervisor")
			tx <- inst
			return
		default:
			observability.RecordSelfUpdateCheck("current")
			u.logger.Debug().Str("found", inst.Ident.String()).Msg("supervisor package found is not newer than ours")
		}

		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-sctx.Stopping():
				timer.Stop()
				return
			}
		}
		if sctx.IsStopping() {
			return
		}
	}
}

// Updated returns the installed newer build the first time one is available.
// It never blocks and never returns a value twice.
func (u *SelfUpdater) Updated() (pkgs.Install, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.delivered || u.stopped {
		return pkgs.Install{}, false
	}
	select {
	case inst, ok := <-u.rx:
		if ok {
			u.delivered = true
			return inst, true
		}
		u.logger.Debug().Msg("self updater has died, restarting")
		observability.RecordSelfUpdateRestart()
		u.sctx.Stop(0)
		u.rx = u.start()
		return pkgs.Install{}, false
	default:
		return pkgs.Install{}, false
	}
}

// Stop ends the background check and waits for it to exit.
func (u *SelfUpdater) Stop() error {
	u.mu.Lock()
	u.stopped = true
	sctx := u.sctx
	u.mu.Unlock()

	sctx.Stop(stopGrace)
	return sctx.Wait()
}

// Frequency is the check interval: FrequencyEnvVar in milliseconds when it
// holds a positive integer, DefaultFrequency otherwise.
func Frequency(getenv func(string) string) time.Duration {
	raw := strings.TrimSpace(getenv(FrequencyEnvVar))
	if raw == "" {
		return DefaultFrequency
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return DefaultFrequency
	}
	return time.Duration(ms) * time.Millisecond
}
