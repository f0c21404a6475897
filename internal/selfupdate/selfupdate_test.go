package selfupdate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/danmuck/supctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	currentIdent = "supctl/supd/1.0.0/20240101000000"
	newerIdent   = "supctl/supd/1.1.0/20240201000000"
)

func fastEnv(key string) string {
	if key == FrequencyEnvVar {
		return "1"
	}
	return ""
}

func newUpdater(t *testing.T, install InstallFunc) *SelfUpdater {
	t.Helper()
	u := New(Config{
		Current:   pkgs.MustParseIdent(currentIdent),
		UpdateURL: "http://depot.invalid",
		Channel:   "stable",
		Install:   install,
		Getenv:    fastEnv,
	})
	t.Cleanup(func() { _ = u.Stop() })
	return u
}

func installOf(ident string) pkgs.Install {
	return pkgs.Install{Ident: pkgs.MustParseIdent(ident), Path: "/pkgs/" + ident}
}

func TestUpdatedNeverDeliversSameVersion(t *testing.T) {
	testlog.Start(t)

	var calls atomic.Int32
	u := newUpdater(t, func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		calls.Add(1)
		return installOf(currentIdent), nil
	})

	require.Eventually(t, func() bool {
		_, ok := u.Updated()
		assert.False(t, ok)
		return calls.Load() >= 25
	}, 5*time.Second, time.Millisecond)
}

func TestUpdatedDeliversOnce(t *testing.T) {
	testlog.Start(t)

	const k = 4
	var calls atomic.Int32
	u := newUpdater(t, func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		if calls.Add(1) < k {
			return installOf(currentIdent), nil
		}
		return installOf(newerIdent), nil
	})

	var got pkgs.Install
	require.Eventually(t, func() bool {
		inst, ok := u.Updated()
		if ok {
			got = inst
		}
		return ok
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, newerIdent, got.Ident.String())

	for i := 0; i < 100; i++ {
		_, ok := u.Updated()
		require.False(t, ok, "delivered twice on poll %d", i)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(k), calls.Load(), "loop kept checking after delivery")
}

func TestUpdatedSwallowsInstallErrors(t *testing.T) {
	testlog.Start(t)

	var calls atomic.Int32
	u := newUpdater(t, func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		if calls.Add(1) <= 3 {
			return pkgs.Install{}, errors.New("depot unreachable")
		}
		return installOf(newerIdent), nil
	})

	require.Eventually(t, func() bool {
		_, ok := u.Updated()
		return ok
	}, 5*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(4))
}

func TestUpdatedRestartsAfterPanic(t *testing.T) {
	testlog.Start(t)

	var calls atomic.Int32
	u := newUpdater(t, func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		if calls.Add(1) == 1 {
			panic("install exploded")
		}
		return installOf(currentIdent), nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := u.Updated()
		assert.False(t, ok)
		return calls.Load() >= 2
	}, 5*time.Second, time.Millisecond)
}

func TestUpdatedAfterStopReturnsNothing(t *testing.T) {
	testlog.Start(t)

	u := newUpdater(t, func(context.Context, pkgs.InstallSource, string, pkgs.Channel) (pkgs.Install, error) {
		return installOf(newerIdent), nil
	})
	require.NoError(t, u.Stop())
	_, ok := u.Updated()
	assert.False(t, ok)
}

func TestInstallReceivesSelfPackage(t *testing.T) {
	testlog.Start(t)

	type call struct {
		src     string
		url     string
		channel pkgs.Channel
	}
	calls := make(chan call, 1)
	newUpdater(t, func(_ context.Context, src pkgs.InstallSource, url string, ch pkgs.Channel) (pkgs.Install, error) {
		select {
		case calls <- call{src.String(), url, ch}:
		default:
		}
		return installOf(currentIdent), nil
	})

	select {
	case c := <-calls:
		assert.Equal(t, SupPackageIdent, c.src)
		assert.Equal(t, "http://depot.invalid", c.url)
		assert.Equal(t, pkgs.Channel("stable"), c.channel)
	case <-time.After(5 * time.Second):
		t.Fatalf("install never called")
	}
}

func TestFrequency(t *testing.T) {
	testlog.Start(t)

	cases := map[string]time.Duration{
		"":      DefaultFrequency,
		"250":   250 * time.Millisecond,
		" 500 ": 500 * time.Millisecond,
		"soon":  DefaultFrequency,
		"0":     DefaultFrequency,
		"-10":   DefaultFrequency,
		"1.5":   DefaultFrequency,
	}
	for raw, want := range cases {
		got := Frequency(func(key string) string {
			if key == FrequencyEnvVar {
				return raw
			}
			return ""
		})
		assert.Equal(t, want, got, "raw=%q", raw)
	}
	assert.Equal(t, 60*time.Second, DefaultFrequency)
}
