// Package editing holds the owner's single-user editing session: one in-memory
// profile, loaded and saved through a profilegateway.Gateway.
package editing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilegateway"
)

var (
	// ErrSaveInFlight is returned when Save is called while a previous save has not completed.
	ErrSaveInFlight = errors.New("save already in flight")
	// ErrLoadSuperseded is returned by a load whose result was discarded because the
	// session navigated away or closed while it was running.
	ErrLoadSuperseded = errors.New("load superseded")
	ErrClosed         = errors.New("session closed")
)

// Session owns one Profile for the duration of an edit. It is safe to call from
// multiple goroutines (e.g. a UI thread and a background load), but it models a
// single owner: at most one save runs at a time and stale loads are dropped.
type Session struct {
	gw  profilegateway.Gateway
	reg *domain.Registry
	log *slog.Logger

	mu     sync.Mutex
	record *domain.Profile
	saved  *domain.Profile
	gen    uint64
	saving bool
	closed bool
}

// NewSession starts a session holding a default record.
func NewSession(gw profilegateway.Gateway, reg *domain.Registry, log *slog.Logger) *Session {
	if reg == nil {
		reg = domain.DefaultRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	rec := domain.NewProfile(reg)
	return &Session{gw: gw, reg: reg, log: log, record: rec, saved: rec.Clone()}
}

// Load fetches the remote record and makes it current. A NetworkError is retried
// once. On any failure the current record is kept (defaults for a fresh session)
// and returned alongside the error. If Navigate or Close ran meanwhile, the result
// is dropped and ErrLoadSuperseded returned.
func (s *Session) Load(ctx context.Context) (*domain.Profile, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	p, err := s.gw.Load(ctx)
	if err != nil && profilegateway.IsNetwork(err) && ctx.Err() == nil {
		s.log.Info("profile load failed, retrying once", "err", err)
		p, err = s.gw.Load(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.gen != gen {
		s.log.Debug("discarding superseded profile load", "generation", gen)
		return nil, ErrLoadSuperseded
	}
	if err != nil {
		if profilegateway.IsSchema(err) {
			s.log.Warn("profile payload does not match the wire contract, keeping defaults", "err", err)
		} else {
			s.log.Warn("profile load failed", "err", err)
		}
		return s.record.Clone(), err
	}
	s.record = p
	s.saved = p.Clone()
	return p.Clone(), nil
}

// Navigate invalidates any load still in flight.
func (s *Session) Navigate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// Close ends the session. Later loads and saves fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.gen++
	s.mu.Unlock()
}

// Record returns a copy of the current record.
func (s *Session) Record() *domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Dirty reports whether the record differs from the last loaded or saved state.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.record.Equal(s.saved)
}

func (s *Session) Set(id domain.FieldID, v string) error {
	return s.Edit(func(p *domain.Profile) error { return p.Set(id, v) })
}

func (s *Session) SetVisibility(g domain.GroupID, visible bool) error {
	return s.Edit(func(p *domain.Profile) error { return p.SetVisibility(g, visible) })
}

func (s *Session) Connect(id domain.ServiceID, externalID string) error {
	return s.Edit(func(p *domain.Profile) error { return p.Connect(id, externalID) })
}

func (s *Session) Disconnect(id domain.ServiceID) error {
	return s.Edit(func(p *domain.Profile) error { return p.Disconnect(id) })
}

// Edit applies fn to a copy of the record and keeps the copy only if fn succeeds,
// so a multi-step edit is all-or-nothing.
func (s *Session) Edit(fn func(p *domain.Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	next := s.record.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.record = next
	return nil
}

// Save sends a snapshot of the record. It never retries; a second call while one
// is running fails with ErrSaveInFlight. The record is not modified either way.
func (s *Session) Save(ctx context.Context) (profilegateway.Ack, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return profilegateway.Ack{}, ErrClosed
	}
	if s.saving {
		s.mu.Unlock()
		return profilegateway.Ack{}, ErrSaveInFlight
	}
	s.saving = true
	snap := s.record.Clone()
	s.mu.Unlock()

	ack, err := s.gw.Save(ctx, snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.log.Warn("profile save failed", "err", err)
		return profilegateway.Ack{}, err
	}
	s.saved = snap
	return ack, nil
}

// Preview projects the current record for role.
func (s *Session) Preview(role domain.ViewerRole) domain.RedactedView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Project(s.record, role)
}

// RenderBio renders the current biography.
func (s *Session) RenderBio(caps markdown.Capabilities) *markdown.Node {
	s.mu.Lock()
	bio := s.record.Get(domain.FieldBio)
	s.mu.Unlock()
	return markdown.Render(bio, caps)
}
