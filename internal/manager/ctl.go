package manager

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/supctl/internal/ctlgateway"
	"github.com/danmuck/supctl/internal/pkgs"
	"github.com/danmuck/supctl/internal/protocol/ctl"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/danmuck/supctl/internal/services"
)

func (m *Manager) registerCtlHandlers() {
	m.gateway.Handle(ctl.KindSvcStatus, m.handleSvcStatus)
	m.gateway.Handle(ctl.KindSvcGetDefaultCfg, m.handleSvcGetDefaultCfg)
	m.gateway.Handle(ctl.KindSvcStart, m.handleSvcDesired(ctl.KindSvcStart, services.StateUp))
	m.gateway.Handle(ctl.KindSvcStop, m.handleSvcDesired(ctl.KindSvcStop, services.StateDown))
	m.gateway.Handle(ctl.KindSupDepart, m.handleSupDepart)
}

func statusOf(s services.Service, now time.Time) ctl.ServiceStatus {
	return ctl.ServiceStatus{
		Ident:        s.Ident.String(),
		State:        string(s.State),
		DesiredState: string(s.Desired),
		Pid:          s.Pid,
		ElapsedSecs:  uint64(s.Elapsed(now) / time.Second),
	}
}

func parseIdent(raw string) (pkgs.Ident, error) {
	id, err := pkgs.ParseIdent(raw)
	if err != nil {
		return pkgs.Ident{}, srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
	}
	return id, nil
}

func notFound(id pkgs.Ident) error {
	return srv.NewNetErr(srv.ErrCodeEntityNotFound, "service not loaded, %s", id)
}

// handleSvcStatus streams one row per loaded service, or the one named.
func (m *Manager) handleSvcStatus(_ context.Context, req srv.Message, w *ctlgateway.ReplyWriter) error {
	var q ctl.SvcStatus
	if err := req.Parse(&q); err != nil {
		return srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
	}
	now := time.Now()
	if q.Ident == "" {
		for _, s := range m.services.All() {
			if err := w.Send(statusOf(s, now)); err != nil {
				return err
			}
		}
		return nil
	}

	id, err := parseIdent(q.Ident)
	if err != nil {
		return err
	}
	s, ok := m.services.Get(id)
	if !ok {
		return notFound(id)
	}
	return w.Send(statusOf(s, now))
}

func (m *Manager) handleSvcGetDefaultCfg(_ context.Context, req srv.Message, w *ctlgateway.ReplyWriter) error {
	var q ctl.SvcGetDefaultCfg
	if err := req.Parse(&q); err != nil {
		return srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
	}
	id, err := parseIdent(q.Ident)
	if err != nil {
		return err
	}
	s, ok := m.services.Get(id)
	if !ok {
		return notFound(id)
	}
	return w.Send(ctl.ServiceCfg{Default: s.DefaultCfg})
}

func (m *Manager) handleSvcDesired(kind srv.Kind, state services.State) ctlgateway.Handler {
	return func(_ context.Context, req srv.Message, _ *ctlgateway.ReplyWriter) error {
		var ident string
		switch kind {
		case ctl.KindSvcStart:
			var q ctl.SvcStart
			if err := req.Parse(&q); err != nil {
				return srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
			}
			ident = q.Ident
		default:
			var q ctl.SvcStop
			if err := req.Parse(&q); err != nil {
				return srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
			}
			ident = q.Ident
		}

		id, err := parseIdent(ident)
		if err != nil {
			return err
		}
		changed, err := m.services.SetDesired(id, state)
		if errors.Is(err, services.ErrServiceNotFound) {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		m.logger.Info().
			Str("ident", id.String()).
			Str("desired", string(state)).
			Bool("changed", changed).
			Msg("service desired state")
		return nil
	}
}

func (m *Manager) handleSupDepart(_ context.Context, req srv.Message, _ *ctlgateway.ReplyWriter) error {
	var q ctl.SupDepart
	if err := req.Parse(&q); err != nil {
		return srv.NewNetErr(srv.ErrCodeInvalidPayload, "%v", err)
	}
	if q.MemberID == "" {
		return srv.NewNetErr(srv.ErrCodeInvalidPayload, "member id is required")
	}
	m.departMu.Lock()
	if _, ok := m.departed[q.MemberID]; ok {
		m.departMu.Unlock()
		return srv.NewNetErr(srv.ErrCodeEntityConflict, "member already departed, %s", q.MemberID)
	}
	m.departed[q.MemberID] = time.Now()
	m.departMu.Unlock()
	m.logger.Warn().Str("departed", q.MemberID).Msg("member departure recorded")
	return nil
}
