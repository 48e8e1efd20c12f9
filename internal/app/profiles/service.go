// Package profiles is the server side of the profile system: it owns the stored
// record of every member and serves redacted projections of it.
package profiles

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
	"github.com/Lumos-Programming/profile-api/internal/platform/metrics"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/accountlink"
	clockport "github.com/Lumos-Programming/profile-api/internal/ports/out/clock"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

// StudentIDMaxRunes bounds the student id; the registry leaves it uncapped.
const StudentIDMaxRunes = 16

var studentIDPattern = regexp.MustCompile(`^[0-9A-Za-z]*$`)

type Options struct {
	Registry     *domain.Registry
	Capabilities markdown.Capabilities
	Logger       *slog.Logger
	Metrics      *metrics.Metrics

	// AccountProviders link external accounts by OAuth code, keyed by service.
	AccountProviders map[domain.ServiceID]accountlink.Provider
}

type Service struct {
	repo profilerepo.Repository
	clk  clockport.Clock
	reg  *domain.Registry
	caps markdown.Capabilities
	log  *slog.Logger
	met  *metrics.Metrics

	providers map[domain.ServiceID]accountlink.Provider

	newMemberID func() domain.MemberID
}

func NewService(repo profilerepo.Repository, clk clockport.Clock, opts Options) *Service {
	if opts.Registry == nil {
		opts.Registry = domain.DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo: repo,
		clk:  clk,
		reg:  opts.Registry,
		caps: opts.Capabilities,
		log:  opts.Logger,
		met:  opts.Metrics,

		providers: opts.AccountProviders,

		newMemberID: func() domain.MemberID {
			return domain.MemberID(uuid.NewString())
		},
	}
}

func (s *Service) Registry() *domain.Registry { return s.reg }

// GetMyProfile returns the caller's record. A caller who never saved gets the
// default record, not an error.
func (s *Service) GetMyProfile(ctx context.Context, subject domain.SubjectID) (*domain.Profile, error) {
	stored, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, profilerepo.ErrNotFound) {
			return domain.NewProfile(s.reg), nil
		}
		return nil, err
	}
	return stored.ToDomain(s.reg)
}

// ReplaceMyProfile validates p and stores it as the caller's whole record, creating
// the member on first save. Name fields are whitespace-normalized. When p carries no
// account state the stored connections are kept.
func (s *Service) ReplaceMyProfile(ctx context.Context, subject domain.SubjectID, p *domain.Profile) (*domain.Profile, error) {
	next, err := s.normalize(p)
	if err != nil {
		s.met.Save("rejected")
		return nil, err
	}

	saved, err := s.store(ctx, subject, next, p.AccountsKnown())
	if errors.Is(err, profilerepo.ErrSubjectAlreadyBound) {
		// Lost a first-save race; the other request's record wins the binding.
		saved, err = s.store(ctx, subject, next, p.AccountsKnown())
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) store(ctx context.Context, subject domain.SubjectID, p *domain.Profile, accountsKnown bool) (*domain.Profile, error) {
	next := p.Clone()
	now := s.clk.Now()
	existing, err := s.repo.GetBySubject(ctx, subject)
	switch {
	case err == nil:
		if !accountsKnown {
			for _, a := range existing.Accounts {
				if a.Connected {
					_ = next.Connect(a.Service, a.ExternalID)
				}
			}
		}
		rec := profilerepo.FromDomain(existing.MemberID, subject, next)
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = now
		if err := s.repo.Replace(ctx, rec); err != nil {
			return nil, err
		}
		s.met.Save("replaced")
	case errors.Is(err, profilerepo.ErrNotFound):
		rec := profilerepo.FromDomain(s.newMemberID(), subject, next)
		rec.CreatedAt = now
		rec.UpdatedAt = now
		if err := s.repo.Create(ctx, rec); err != nil {
			return nil, err
		}
		s.log.Info("member profile created", "member_id", rec.MemberID)
		s.met.Save("created")
	default:
		return nil, err
	}
	return next, nil
}

// ConnectAccount redeems an OAuth code with the service's provider and stores the
// resulting external id on the caller's record.
func (s *Service) ConnectAccount(ctx context.Context, subject domain.SubjectID, service domain.ServiceID, code string) (*domain.Profile, error) {
	provider, ok := s.providers[service]
	if _, inCatalog := s.reg.Service(service); !ok || !inCatalog {
		return nil, &Error{
			Status:  404,
			Code:    "SERVICE_NOT_LINKABLE",
			Message: "accounts of this service cannot be linked",
			Details: map[string]any{"service": string(service)},
		}
	}
	if code == "" {
		return nil, &Error{Status: 400, Code: "INVALID_PARAMETER", Message: "code is required"}
	}

	id, err := provider.Exchange(ctx, code)
	if err != nil {
		s.met.AccountLink(string(service), "failed")
		var rejected *accountlink.RejectedError
		switch {
		case errors.Is(err, accountlink.ErrNotConfigured):
			return nil, &Error{Status: 503, Code: "LINK_NOT_CONFIGURED", Message: "account linking is not configured"}
		case errors.As(err, &rejected):
			return nil, &Error{
				Status:  400,
				Code:    "LINK_REJECTED",
				Message: "the authorization code was rejected",
				Details: map[string]any{"step": rejected.Step},
			}
		}
		s.log.Warn("account link exchange failed", "service", service, "err", err)
		return nil, &Error{Status: 502, Code: "LINK_UNAVAILABLE", Message: "the account provider is unavailable"}
	}

	p, err := s.GetMyProfile(ctx, subject)
	if err != nil {
		return nil, err
	}
	if err := p.Connect(service, id.ExternalID); err != nil {
		return nil, err
	}
	saved, err := s.ReplaceMyProfile(ctx, subject, p)
	if err != nil {
		return nil, err
	}
	s.met.AccountLink(string(service), "linked")
	s.log.Info("account linked", "service", service)
	return saved, nil
}

// PreviewMyProfile shows the caller how other members see them.
func (s *Service) PreviewMyProfile(ctx context.Context, subject domain.SubjectID) (MemberView, error) {
	p, err := s.GetMyProfile(ctx, subject)
	if err != nil {
		return MemberView{}, err
	}
	var id domain.MemberID
	if stored, err := s.repo.GetBySubject(ctx, subject); err == nil {
		id = stored.MemberID
	}
	return s.view(id, p, domain.RoleOther), nil
}

// ListMembers returns every member projected for the viewer, in directory order.
// Records that no longer decode are skipped and logged.
func (s *Service) ListMembers(ctx context.Context, viewer domain.SubjectID) ([]MemberView, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MemberView, 0, len(stored))
	for _, rec := range stored {
		p, err := rec.ToDomain(s.reg)
		if err != nil {
			s.log.Warn("skipping undecodable profile", "member_id", rec.MemberID, "err", err)
			s.met.SkippedRecord()
			continue
		}
		out = append(out, s.view(rec.MemberID, p, roleFor(viewer, rec.Subject)))
	}
	return out, nil
}

func (s *Service) ViewMember(ctx context.Context, viewer domain.SubjectID, id domain.MemberID) (MemberView, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, profilerepo.ErrNotFound) {
			return MemberView{}, &Error{
				Status:  404,
				Code:    "MEMBER_NOT_FOUND",
				Message: "member not found",
			}
		}
		return MemberView{}, err
	}
	p, err := rec.ToDomain(s.reg)
	if err != nil {
		return MemberView{}, err
	}
	return s.view(rec.MemberID, p, roleFor(viewer, rec.Subject)), nil
}

// Completeness reports which required services the caller has not connected.
func (s *Service) Completeness(ctx context.Context, subject domain.SubjectID) (Completeness, error) {
	p, err := s.GetMyProfile(ctx, subject)
	if err != nil {
		return Completeness{}, err
	}
	missing := p.MissingRequiredServices()
	return Completeness{Complete: len(missing) == 0, Missing: missing}, nil
}

func (s *Service) view(id domain.MemberID, p *domain.Profile, role domain.ViewerRole) MemberView {
	s.met.Projection(string(role))
	v := MemberView{MemberID: id, View: domain.Project(p, role)}
	if bio := v.View.Field(domain.FieldBio); !bio.Hidden {
		v.Bio = markdown.Render(bio.Value, s.caps)
	}
	return v
}

func roleFor(viewer, owner domain.SubjectID) domain.ViewerRole {
	if viewer != "" && viewer == owner {
		return domain.RoleOwner
	}
	return domain.RoleOther
}

// normalize returns a copy of p with normalized names, or a validation error.
func (s *Service) normalize(p *domain.Profile) (*domain.Profile, error) {
	if p == nil {
		return nil, validationError("missing profile", nil)
	}
	next := domain.NewProfile(s.reg)
	for _, f := range s.reg.Fields() {
		v := p.Get(f.ID)
		if f.ID == domain.FieldLastName || f.ID == domain.FieldFirstName || f.ID == domain.FieldNickname {
			v = domain.NormalizeHumanName(v)
		}
		if err := next.Set(f.ID, v); err != nil {
			return nil, validationError("invalid "+string(f.ID), map[string]any{string(f.ID): err.Error()})
		}
	}

	sid := next.Get(domain.FieldStudentID)
	if !studentIDPattern.MatchString(sid) {
		return nil, validationError("invalid studentId", map[string]any{"studentId": "must be alphanumeric"})
	}
	if utf8.RuneCountInString(sid) > StudentIDMaxRunes {
		return nil, validationError("invalid studentId", map[string]any{"studentId": "must be at most 16 characters"})
	}

	for _, g := range s.reg.Groups() {
		_ = next.SetVisibility(g, p.GroupVisible(g))
	}
	for _, a := range p.Accounts() {
		if !a.Connected {
			continue
		}
		if err := next.Connect(a.Service, a.ExternalID); err != nil {
			return nil, validationError("invalid account "+string(a.Service), map[string]any{string(a.Service): err.Error()})
		}
	}
	return next, nil
}
