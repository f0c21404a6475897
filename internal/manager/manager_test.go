package manager

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/ctlclient"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/danmuck/supctl/internal/protocol/ctl"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/danmuck/supctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

func testConfig() Config {
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.Current = pkgs.MustParseIdent("supctl/supd/1.0.0/20240101000000")
	cfg.CtlListenAddr = "127.0.0.1:0"
	cfg.HTTPListenAddr = ""
	cfg.CtlSecret = testSecret
	cfg.TickInterval = 5 * time.Millisecond
	cfg.Services = []ServiceSpec{
		{Ident: "core/redis/7.2.4/20240301000000", DefaultCfg: "port = 6379\n"},
		{Ident: "core/nginx/1.25.0/20240301000000"},
	}
	return cfg
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Run(ctx)
		done <- err
	}()
	require.Eventually(t, m.Ready, 5*time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Errorf("manager did not stop")
		}
	})
}

func ctlClient() *ctlclient.Client {
	return ctlclient.New(ctlclient.Config{
		HandshakeTimeout: time.Second,
		Secrets: auth.SecretSources{
			LookupEnv: func(string) (string, bool) { return testSecret, true },
		},
	})
}

func request(t *testing.T, m *Manager, payload srv.Payload) []srv.Message {
	t.Helper()
	ctx := context.Background()
	stream, err := ctlClient().Request(ctx, m.CtlAddr(), payload)
	require.NoError(t, err)
	defer stream.Close()

	var out []srv.Message
	for msg, err := range stream.All(ctx) {
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestNewValidatesConfig(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.TickInterval = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidTickInterval)

	cfg = testConfig()
	cfg.CtlSecret = " "
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrMissingCtlSecret)

	cfg = testConfig()
	cfg.AutoUpdate = true
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrMissingInstaller)

	cfg = testConfig()
	cfg.Services = append(cfg.Services, ServiceSpec{Ident: "nope"})
	_, err = New(cfg)
	assert.ErrorIs(t, err, pkgs.ErrInvalidIdent)
}

func TestCtlSvcStatusStreamsAllServices(t *testing.T) {
	testlog.Start(t)

	m, err := New(testConfig())
	require.NoError(t, err)
	startManager(t, m)

	replies := request(t, m, ctl.SvcStatus{})
	require.Len(t, replies, 2)
	var idents []string
	for _, r := range replies {
		var st ctl.ServiceStatus
		require.NoError(t, r.Parse(&st))
		assert.Equal(t, "down", st.State)
		idents = append(idents, st.Ident)
	}
	assert.Equal(t, []string{"core/nginx/1.25.0/20240301000000", "core/redis/7.2.4/20240301000000"}, idents)
}

func TestCtlSvcStartThenStatus(t *testing.T) {
	testlog.Start(t)

	m, err := New(testConfig())
	require.NoError(t, err)
	startManager(t, m)

	replies := request(t, m, ctl.SvcStart{Ident: "core/redis"})
	require.Len(t, replies, 1)
	assert.Equal(t, srv.KindNetOk, replies[0].Kind)

	replies = request(t, m, ctl.SvcStatus{Ident: "core/redis"})
	require.Len(t, replies, 1)
	var st ctl.ServiceStatus
	require.NoError(t, replies[0].Parse(&st))
	assert.Equal(t, "up", st.State)
	assert.Equal(t, "up", st.DesiredState)
}

func TestCtlErrorsAreRemote(t *testing.T) {
	testlog.Start(t)

	m, err := New(testConfig())
	require.NoError(t, err)
	startManager(t, m)

	replies := request(t, m, ctl.SvcStop{Ident: "core/postgres"})
	require.Len(t, replies, 1)
	var netErr *srv.NetErr
	require.ErrorAs(t, replies[0].TryOK(), &netErr)
	assert.Equal(t, srv.ErrCodeEntityNotFound, netErr.Code)

	replies = request(t, m, ctl.SvcStatus{Ident: "redis"})
	require.Len(t, replies, 1)
	require.ErrorAs(t, replies[0].TryOK(), &netErr)
	assert.Equal(t, srv.ErrCodeInvalidPayload, netErr.Code)
}

func TestCtlDefaultCfgAndDepart(t *testing.T) {
	testlog.Start(t)

	m, err := New(testConfig())
	require.NoError(t, err)
	startManager(t, m)

	replies := request(t, m, ctl.SvcGetDefaultCfg{Ident: "core/redis"})
	require.Len(t, replies, 1)
	var cfg ctl.ServiceCfg
	require.NoError(t, replies[0].Parse(&cfg))
	assert.Equal(t, "port = 6379\n", string(cfg.Default))

	replies = request(t, m, ctl.SupDepart{MemberID: "sup-b"})
	require.Len(t, replies, 1)
	assert.Equal(t, srv.KindNetOk, replies[0].Kind)
	assert.Contains(t, m.Departed(), "sup-b")

	replies = request(t, m, ctl.SupDepart{MemberID: "sup-b"})
	var netErr *srv.NetErr
	require.ErrorAs(t, replies[0].TryOK(), &netErr)
	assert.Equal(t, srv.ErrCodeEntityConflict, netErr.Code)
}

func TestCtlRejectsWrongSecret(t *testing.T) {
	testlog.Start(t)

	m, err := New(testConfig())
	require.NoError(t, err)
	startManager(t, m)

	c := ctlclient.New(ctlclient.Config{
		HandshakeTimeout: time.Second,
		Secrets: auth.SecretSources{
			LookupEnv: func(string) (string, bool) { return "wrong", true },
		},
	})
	_, err = c.Request(context.Background(), m.CtlAddr(), ctl.SvcStatus{})
	assert.True(t, errors.Is(err, ctlclient.ErrRemote), "got %v", err)
}

func TestRunReturnsUpdateReady(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.CtlListenAddr = ""
	cfg.CtlSecret = ""
	cfg.AutoUpdate = true
	cfg.UpdateURL = "http://depot.invalid"
	cfg.Getenv = func(key string) string { return "1" }
	cfg.Install = func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		return pkgs.Install{Ident: pkgs.MustParseIdent("supctl/supd/1.1.0/20240201000000"), Path: "/pkgs/supd"}, nil
	}
	m, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ready, err := m.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, ready)
	assert.Equal(t, "supctl/supd/1.1.0/20240201000000", ready.Install.Ident.String())
	assert.False(t, m.Ready())
}

func TestRunStopsOnCancelWithoutUpdate(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.AutoUpdate = true
	cfg.Getenv = func(string) string { return "1" }
	cfg.Install = func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		return pkgs.Install{}, errors.New("depot down")
	}
	m, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ready, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, ready)
}

func TestStatusRoutes(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.Getenv = func(string) string { return "250" }
	m, err := New(cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/self-update", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var su struct {
		Enabled     bool   `json:"enabled"`
		Package     string `json:"package"`
		FrequencyMS int64  `json:"frequency_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &su))
	assert.False(t, su.Enabled)
	assert.Equal(t, "supctl/supd", su.Package)
	assert.Equal(t, int64(250), su.FrequencyMS)

	rec = httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Services []map[string]any `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Services, 2)

	rec = httptest.NewRecorder()
	m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
