package profilerepo

import (
	"context"
	"sort"
	"sync"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilerepo"
)

// Repo is an in-memory implementation of profilerepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID    map[domain.MemberID]profilerepo.Profile
	idBySub map[domain.SubjectID]domain.MemberID
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.MemberID]profilerepo.Profile),
		idBySub: make(map[domain.SubjectID]domain.MemberID),
	}
}

func (r *Repo) Create(ctx context.Context, p profilerepo.Profile) error {
	_ = ctx
	if p.MemberID == "" {
		return profilerepo.ErrAlreadyExists // empty ID can never be addressed again
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.MemberID]; ok {
		return profilerepo.ErrAlreadyExists
	}
	if existingID, ok := r.idBySub[p.Subject]; ok && existingID != "" {
		return profilerepo.ErrSubjectAlreadyBound
	}

	r.byID[p.MemberID] = p.Clone()
	r.idBySub[p.Subject] = p.MemberID
	return nil
}

func (r *Repo) Replace(ctx context.Context, p profilerepo.Profile) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[p.MemberID]
	if !ok {
		return profilerepo.ErrNotFound
	}
	// Subject binding is immutable.
	if existing.Subject != p.Subject {
		return profilerepo.ErrSubjectAlreadyBound
	}
	p.CreatedAt = existing.CreatedAt
	r.byID[p.MemberID] = p.Clone()
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (profilerepo.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return profilerepo.Profile{}, profilerepo.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (profilerepo.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idBySub[subject]
	if !ok {
		return profilerepo.Profile{}, profilerepo.ErrNotFound
	}
	p, ok := r.byID[id]
	if !ok {
		return profilerepo.Profile{}, profilerepo.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *Repo) List(ctx context.Context) ([]profilerepo.Profile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]profilerepo.Profile, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p.Clone())
	}
	sortProfiles(out)
	return out, nil
}

func sortProfiles(ps []profilerepo.Profile) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return string(ps[i].MemberID) < string(ps[j].MemberID)
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
