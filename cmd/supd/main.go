package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/depot"
	"github.com/danmuck/supctl/internal/logging"
	"github.com/danmuck/supctl/internal/manager"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/rs/zerolog/log"
)

// pkgIdent is the running build, set with -ldflags "-X main.pkgIdent=...".
var pkgIdent = "supctl/supd/0.1.0/20260101000000"

const (
	// exitOKNoRetry tells a launcher the supervisor stopped on request and
	// must not be restarted. Any other exit restarts it.
	exitOKNoRetry = 84
	exitFailure   = 1
)

func main() {
	e := processEnv()
	configPath := flag.String("config", defaultConfigPath(e.Getenv), "path to supd.toml")
	flag.Parse()
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready, err := run(ctx, *configPath, e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supd: %v\n", err)
		os.Exit(exitFailure)
	}
	if ready != nil {
		log.Info().
			Str("ident", ready.Install.Ident.String()).
			Str("path", ready.Install.Path).
			Msg("exiting for restart into new build")
		os.Exit(0)
	}
	os.Exit(exitOKNoRetry)
}

func run(ctx context.Context, configPath string, e env) (*manager.UpdateReady, error) {
	current, err := pkgs.ParseIdent(pkgIdent)
	if err != nil {
		return nil, fmt.Errorf("build ident: %w", err)
	}

	file, found, err := loadFileConfig(configPath)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Warn().Str("path", configPath).Msg("no supd config, using defaults")
	}

	root := config.FSRoot(e.Getenv)
	secret, created, err := ensureCtlSecret(e, config.SupRoot(root))
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("path", config.SupRoot(root)).Msg("generated ctl secret")
	}

	installer, err := depot.NewInstaller(depot.Config{FSRoot: root})
	if err != nil {
		return nil, err
	}
	cfg, err := toManagerConfig(file, e, current, secret, installer)
	if err != nil {
		return nil, err
	}
	m, err := manager.New(cfg)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx)
}
