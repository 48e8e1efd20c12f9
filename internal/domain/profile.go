package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"unicode/utf8"
)

// ErrLengthExceeded reports that input is longer than a field's cap.
// Profile.Set truncates instead of returning it; CheckLength exists for input hints.
var ErrLengthExceeded = errors.New("value exceeds field length cap")

// Profile is the canonical in-memory profile record. No value is ever absent:
// every field and group starts at its default.
//
// Profile is not safe for concurrent mutation; a single editing session owns it.
type Profile struct {
	reg        *Registry
	values     map[FieldID]string
	visibility map[GroupID]bool
	accounts   map[ServiceID]AccountConnection

	// accountsUnknown marks a record whose source did not carry account state.
	accountsUnknown bool
}

// NewProfile returns a record with every field at its default, every group private,
// and every catalog service disconnected.
func NewProfile(reg *Registry) *Profile {
	if reg == nil {
		reg = DefaultRegistry()
	}
	p := &Profile{
		reg:        reg,
		values:     make(map[FieldID]string, len(reg.fields)),
		visibility: make(map[GroupID]bool, len(reg.groups)),
		accounts:   make(map[ServiceID]AccountConnection, len(reg.services)),
	}
	for _, f := range reg.fields {
		p.values[f.ID] = f.Default()
	}
	for _, g := range reg.groups {
		p.visibility[g] = false
	}
	for _, s := range reg.services {
		p.accounts[s.ID] = AccountConnection{Service: s.ID}
	}
	return p
}

func (p *Profile) Registry() *Registry { return p.reg }

// Get returns the stored value, or "" for an unknown field.
func (p *Profile) Get(id FieldID) string {
	return p.values[id]
}

// Set stores v for field id. Values longer than the field cap are truncated to exactly
// the cap in runes. Enum fields reject values outside their option set.
func (p *Profile) Set(id FieldID, v string) error {
	f, ok := p.reg.Field(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	if f.Type == FieldTypeEnum && !slices.Contains(f.Options, v) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidOption, id, v)
	}
	p.values[id] = Truncate(v, f.MaxRunes)
	return nil
}

// Truncate cuts s to at most max runes. max <= 0 means unbounded.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// CheckLength reports ErrLengthExceeded when v would be truncated by Set.
func (r *Registry) CheckLength(id FieldID, v string) error {
	f, ok := r.Field(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, id)
	}
	if f.MaxRunes > 0 {
		if n := utf8.RuneCountInString(v); n > f.MaxRunes {
			return fmt.Errorf("%w: %s has %d of %d characters", ErrLengthExceeded, id, n, f.MaxRunes)
		}
	}
	return nil
}

// IsVisible reports whether the field's visibility group is public.
func (p *Profile) IsVisible(id FieldID) bool {
	g, ok := p.reg.GroupOf(id)
	if !ok {
		return false
	}
	return p.visibility[g]
}

func (p *Profile) GroupVisible(g GroupID) bool {
	return p.visibility[g]
}

// SetVisibility flips one group; every field (or service) gated by it follows.
func (p *Profile) SetVisibility(g GroupID, visible bool) error {
	if !p.reg.HasGroup(g) {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, g)
	}
	p.visibility[g] = visible
	return nil
}

// Visibility returns a copy of the group map.
func (p *Profile) Visibility() map[GroupID]bool {
	return maps.Clone(p.visibility)
}

func (p *Profile) Account(id ServiceID) (AccountConnection, bool) {
	a, ok := p.accounts[id]
	return a, ok
}

// Accounts returns every catalog account in catalog order.
func (p *Profile) Accounts() []AccountConnection {
	out := make([]AccountConnection, 0, len(p.reg.services))
	for _, s := range p.reg.services {
		out = append(out, p.accounts[s.ID])
	}
	return out
}

// Connect marks a service connected. externalID must be non-empty.
func (p *Profile) Connect(id ServiceID, externalID string) error {
	if _, ok := p.reg.Service(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	if externalID == "" {
		return fmt.Errorf("connect %s: external id is required", id)
	}
	p.accounts[id] = AccountConnection{Service: id, Connected: true, ExternalID: externalID}
	p.accountsUnknown = false
	return nil
}

func (p *Profile) Disconnect(id ServiceID) error {
	if _, ok := p.reg.Service(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	p.accounts[id] = AccountConnection{Service: id}
	p.accountsUnknown = false
	return nil
}

// ForgetAccounts resets every account to disconnected and marks the account state
// as unknown, for records loaded from a source that does not carry accounts.
// Connect or Disconnect makes the state known again.
func (p *Profile) ForgetAccounts() {
	for _, s := range p.reg.services {
		p.accounts[s.ID] = AccountConnection{Service: s.ID}
	}
	p.accountsUnknown = true
}

func (p *Profile) AccountsKnown() bool { return !p.accountsUnknown }

// MissingRequiredServices lists required catalog services that are not connected.
func (p *Profile) MissingRequiredServices() []ServiceID {
	var out []ServiceID
	for _, s := range p.reg.services {
		if s.Required && !p.accounts[s.ID].Connected {
			out = append(out, s.ID)
		}
	}
	return out
}

func (p *Profile) IsComplete() bool {
	return len(p.MissingRequiredServices()) == 0
}

// Clone returns a deep copy sharing the registry.
func (p *Profile) Clone() *Profile {
	return &Profile{
		reg:        p.reg,
		values:     maps.Clone(p.values),
		visibility: maps.Clone(p.visibility),
		accounts:   maps.Clone(p.accounts),

		accountsUnknown: p.accountsUnknown,
	}
}

func (p *Profile) Equal(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	return maps.Equal(p.values, o.values) &&
		maps.Equal(p.visibility, o.visibility) &&
		maps.Equal(p.accounts, o.accounts) &&
		p.accountsUnknown == o.accountsUnknown
}
