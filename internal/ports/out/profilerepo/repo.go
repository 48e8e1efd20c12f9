package profilerepo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/domain"
)

// Profile is the persistence shape of a member profile. Keys are registry ids, so
// adapters store it without knowing the field table.
type Profile struct {
	MemberID domain.MemberID
	Subject  domain.SubjectID

	Values     map[domain.FieldID]string
	Visibility map[domain.GroupID]bool
	Accounts   []domain.AccountConnection

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides access to persisted profiles. Writes replace the whole record.
//
// Result ordering expectations:
// - List returns profiles ordered by CreatedAt ascending, then MemberID, to keep the directory stable.
type Repository interface {
	Create(ctx context.Context, p Profile) error
	Replace(ctx context.Context, p Profile) error

	GetByID(ctx context.Context, id domain.MemberID) (Profile, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (Profile, error)

	List(ctx context.Context) ([]Profile, error)
}

// FromDomain captures p's values, visibility and accounts.
func FromDomain(id domain.MemberID, subject domain.SubjectID, p *domain.Profile) Profile {
	reg := p.Registry()
	out := Profile{
		MemberID:   id,
		Subject:    subject,
		Values:     make(map[domain.FieldID]string, len(reg.Fields())),
		Visibility: p.Visibility(),
		Accounts:   p.Accounts(),
	}
	for _, f := range reg.Fields() {
		out.Values[f.ID] = p.Get(f.ID)
	}
	return out
}

// ToDomain rebuilds the in-memory record. Missing keys take their defaults and keys
// the registry no longer knows are dropped; a value the registry rejects is ErrInvalidRecord.
func (p Profile) ToDomain(reg *domain.Registry) (*domain.Profile, error) {
	out := domain.NewProfile(reg)
	for _, f := range reg.Fields() {
		v, ok := p.Values[f.ID]
		if !ok {
			continue
		}
		if err := out.Set(f.ID, v); err != nil {
			return nil, fmt.Errorf("%w: member %s: %v", ErrInvalidRecord, p.MemberID, err)
		}
	}
	for _, g := range reg.Groups() {
		if v, ok := p.Visibility[g]; ok {
			_ = out.SetVisibility(g, v)
		}
	}
	for _, a := range p.Accounts {
		if _, ok := reg.Service(a.Service); !ok || !a.Connected {
			continue
		}
		if err := out.Connect(a.Service, a.ExternalID); err != nil {
			return nil, fmt.Errorf("%w: member %s: %v", ErrInvalidRecord, p.MemberID, err)
		}
	}
	return out, nil
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	out.Values = maps.Clone(p.Values)
	out.Visibility = maps.Clone(p.Visibility)
	out.Accounts = slices.Clone(p.Accounts)
	return out
}
