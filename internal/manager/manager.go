// Package manager owns a running supervisor: the control gateway, the HTTP
// status server, the loaded service table and the self-updater.
package manager

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/ctlgateway"
	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/danmuck/supctl/internal/selfupdate"
	"github.com/danmuck/supctl/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidTickInterval = errors.New("manager: invalid tick interval")
	ErrMissingCtlSecret    = errors.New("manager: ctl secret is required")
	ErrMissingInstaller    = errors.New("manager: auto update needs an installer")
)

// ServiceSpec is a service loaded at startup.
type ServiceSpec struct {
	Ident      string
	DefaultCfg string
}

type Config struct {
	MemberID       string
	Current        pkgs.Ident
	CtlListenAddr  string
	HTTPListenAddr string
	CORSOrigins    []string
	CtlSecret      string
	TickInterval   time.Duration
	Services       []ServiceSpec

	AutoUpdate    bool
	UpdateURL     string
	UpdateChannel pkgs.Channel
	Install       selfupdate.InstallFunc
	Getenv        func(string) string
}

func DefaultConfig() Config {
	return Config{
		MemberID:       "sup-local",
		Current:        pkgs.MustParseIdent(selfupdate.SupPackageIdent),
		CtlListenAddr:  "127.0.0.1:9632",
		HTTPListenAddr: "127.0.0.1:9631",
		TickInterval:   time.Second,
		UpdateChannel:  pkgs.DefaultChannel,
	}
}

// UpdateReady is returned by Run when a newer supervisor build is installed
// and the process should restart into it.
type UpdateReady struct {
	Install pkgs.Install
}

type Manager struct {
	cfg      Config
	services *services.Registry
	gateway  *ctlgateway.Server
	router   *gin.Engine
	logger   zerolog.Logger
	started  time.Time

	ready    atomic.Bool
	addrMu   sync.RWMutex
	ctlAddr  string
	httpAddr string

	updaterMu sync.Mutex
	updater   *selfupdate.SelfUpdater

	departMu sync.Mutex
	departed map[string]time.Time
}

func New(cfg Config) (*Manager, error) {
	if cfg.TickInterval <= 0 {
		return nil, ErrInvalidTickInterval
	}
	if strings.TrimSpace(cfg.CtlListenAddr) != "" && strings.TrimSpace(cfg.CtlSecret) == "" {
		return nil, ErrMissingCtlSecret
	}
	if cfg.AutoUpdate && cfg.Install == nil {
		return nil, ErrMissingInstaller
	}
	if cfg.UpdateChannel == "" {
		cfg.UpdateChannel = pkgs.DefaultChannel
	}

	reg := services.NewRegistry()
	for _, spec := range cfg.Services {
		id, err := pkgs.ParseIdent(spec.Ident)
		if err != nil {
			return nil, err
		}
		if err := reg.Load(id, []byte(spec.DefaultCfg)); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		cfg:      cfg,
		services: reg,
		gateway: ctlgateway.NewServer(ctlgateway.Config{
			Validator: auth.StaticToken{Token: strings.TrimSpace(cfg.CtlSecret)},
		}),
		logger:   observability.Component("manager").With().Str("member_id", cfg.MemberID).Logger(),
		started:  time.Now(),
		departed: make(map[string]time.Time),
	}
	m.registerCtlHandlers()
	m.router = m.newRouter()
	return m, nil
}

func (m *Manager) Services() *services.Registry { return m.services }

func (m *Manager) Router() *gin.Engine { return m.router }

// CtlAddr is the bound control gateway address once Run is listening.
func (m *Manager) CtlAddr() string {
	m.addrMu.RLock()
	defer m.addrMu.RUnlock()
	return m.ctlAddr
}

// HTTPAddr is the bound status server address once Run is listening.
func (m *Manager) HTTPAddr() string {
	m.addrMu.RLock()
	defer m.addrMu.RUnlock()
	return m.httpAddr
}

func (m *Manager) Ready() bool { return m.ready.Load() }

// Run serves until ctx is done, a listener fails, or the self-updater
// delivers a newer build.
func (m *Manager) Run(ctx context.Context) (*UpdateReady, error) {
	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)

	if addr := strings.TrimSpace(m.cfg.CtlListenAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		m.setAddrs(ln.Addr().String(), "")
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.gateway.Serve(runCtx, ln)
		}()
	}

	if addr := strings.TrimSpace(m.cfg.HTTPListenAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		m.setAddrs("", ln.Addr().String())
		httpSrv := &http.Server{Handler: m.router, ReadHeaderTimeout: 10 * time.Second}
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			<-runCtx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	if m.cfg.AutoUpdate {
		m.setUpdater(selfupdate.New(selfupdate.Config{
			Current:   m.cfg.Current,
			UpdateURL: m.cfg.UpdateURL,
			Channel:   m.cfg.UpdateChannel,
			Install:   m.cfg.Install,
			Getenv:    m.cfg.Getenv,
			Context:   runCtx,
		}))
		defer m.stopUpdater()
	}

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	m.ready.Store(true)
	defer m.ready.Store(false)
	m.logger.Info().
		Str("current", m.cfg.Current.String()).
		Str("ctl_addr", m.CtlAddr()).
		Str("http_addr", m.HTTPAddr()).
		Bool("auto_update", m.cfg.AutoUpdate).
		Msg("supervisor ready")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("supervisor shutdown")
			return nil, nil
		case err := <-errs:
			if err != nil {
				return nil, err
			}
		case <-ticker.C:
			if inst, ok := m.pollUpdate(); ok {
				m.logger.Info().Str("ident", inst.Ident.String()).Msg("supervisor update ready, restarting")
				return &UpdateReady{Install: inst}, nil
			}
		}
	}
}

func (m *Manager) pollUpdate() (pkgs.Install, bool) {
	m.updaterMu.Lock()
	u := m.updater
	m.updaterMu.Unlock()
	if u == nil {
		return pkgs.Install{}, false
	}
	return u.Updated()
}

func (m *Manager) setUpdater(u *selfupdate.SelfUpdater) {
	m.updaterMu.Lock()
	defer m.updaterMu.Unlock()
	m.updater = u
}

func (m *Manager) stopUpdater() {
	m.updaterMu.Lock()
	u := m.updater
	m.updater = nil
	m.updaterMu.Unlock()
	if u != nil {
		if err := u.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("self updater stop")
		}
	}
}

func (m *Manager) setAddrs(ctl, httpAddr string) {
	m.addrMu.Lock()
	defer m.addrMu.Unlock()
	if ctl != "" {
		m.ctlAddr = ctl
	}
	if httpAddr != "" {
		m.httpAddr = httpAddr
	}
}

// Departed reports members that asked to leave, with when they asked.
func (m *Manager) Departed() map[string]time.Time {
	m.departMu.Lock()
	defer m.departMu.Unlock()
	out := make(map[string]time.Time, len(m.departed))
	for id, at := range m.departed {
		out[id] = at
	}
	return out
}
