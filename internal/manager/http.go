package manager

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danmuck/supctl/internal/observability"
	"github.com/danmuck/supctl/internal/selfupdate"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (m *Manager) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Component("http")))
	r.Use(observability.RequestMetrics(m.cfg.MemberID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(m.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"member_id": m.cfg.MemberID,
			"uptime":    time.Since(m.started).String(),
			"version":   m.cfg.Current.String(),
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !m.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     m.Ready(),
			"member_id": m.cfg.MemberID,
			"ctl_addr":  m.CtlAddr(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/self-update", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"enabled":      m.cfg.AutoUpdate,
			"current":      m.cfg.Current.String(),
			"package":      selfupdate.SupPackageIdent,
			"update_url":   m.cfg.UpdateURL,
			"channel":      m.cfg.UpdateChannel.String(),
			"frequency_ms": m.updateFrequency().Milliseconds(),
		})
	})

	r.GET("/services", func(c *gin.Context) {
		now := time.Now()
		all := m.services.All()
		out := make([]gin.H, 0, len(all))
		for _, s := range all {
			out = append(out, gin.H{
				"ident":        s.Ident.String(),
				"state":        s.State,
				"desired":      s.Desired,
				"elapsed_secs": int64(s.Elapsed(now) / time.Second),
			})
		}
		c.JSON(http.StatusOK, gin.H{"services": out})
	})

	return r
}

func (m *Manager) updateFrequency() time.Duration {
	getenv := m.cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return selfupdate.Frequency(getenv)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
