package domain

import "strings"

// ViewerRole selects the disclosure policy of a projection.
type ViewerRole string

const (
	RoleOwner ViewerRole = "owner"
	RoleOther ViewerRole = "other"
)

// ParseViewerRole maps anything other than "owner" to RoleOther, the restrictive policy.
func ParseViewerRole(s string) ViewerRole {
	if ViewerRole(s) == RoleOwner {
		return RoleOwner
	}
	return RoleOther
}

// HiddenMarker is the display form of a hidden value.
const HiddenMarker = "非公開"

// Disclosed is a projected value. Hidden is distinct from an empty Value.
type Disclosed struct {
	Value  string
	Hidden bool
}

func (d Disclosed) String() string {
	if d.Hidden {
		return HiddenMarker
	}
	return d.Value
}

// FieldView is one projected field.
type FieldView struct {
	Field FieldID
	Group GroupID
	Disclosed
}

// AccountView is one projected account. A hidden account carries no connection
// state at all so "not connected" cannot leak through it.
type AccountView struct {
	Service    ServiceID
	Required   bool
	Connected  bool
	ExternalID string
	Hidden     bool
}

// RedactedView is a viewer-specific projection of a Profile. It is the only
// sanctioned way to read a profile on behalf of a non-owner.
type RedactedView struct {
	role     ViewerRole
	reg      *Registry
	fields   []FieldView
	byID     map[FieldID]int
	accounts []AccountView
}

// Project produces the viewer projection of p.
//
// Owners see every value verbatim. Everyone else sees a value iff its group is
// visible; otherwise the value is replaced with a hidden marker.
func Project(p *Profile, role ViewerRole) RedactedView {
	if role != RoleOwner {
		role = RoleOther
	}
	reg := p.reg
	v := RedactedView{
		role:     role,
		reg:      reg,
		fields:   make([]FieldView, 0, len(reg.fields)),
		byID:     make(map[FieldID]int, len(reg.fields)),
		accounts: make([]AccountView, 0, len(reg.services)),
	}
	for _, f := range reg.fields {
		fv := FieldView{Field: f.ID, Group: f.Group}
		if role == RoleOwner || p.visibility[f.Group] {
			fv.Value = p.values[f.ID]
		} else {
			fv.Hidden = true
		}
		v.byID[f.ID] = len(v.fields)
		v.fields = append(v.fields, fv)
	}
	for _, s := range reg.services {
		a := p.accounts[s.ID]
		av := AccountView{Service: s.ID, Required: s.Required}
		if role == RoleOwner || p.visibility[s.Group()] {
			av.Connected = a.Connected
			av.ExternalID = a.ExternalID
		} else {
			av.Hidden = true
		}
		v.accounts = append(v.accounts, av)
	}
	return v
}

func (v RedactedView) Role() ViewerRole { return v.role }

// Field returns the projected field. Unknown fields read as hidden.
func (v RedactedView) Field(id FieldID) Disclosed {
	i, ok := v.byID[id]
	if !ok {
		return Disclosed{Hidden: true}
	}
	return v.fields[i].Disclosed
}

// Fields returns projected fields in display order.
func (v RedactedView) Fields() []FieldView {
	out := make([]FieldView, len(v.fields))
	copy(out, v.fields)
	return out
}

// Composite joins the fields of a composite group. It is hidden iff the group is
// hidden; its parts are never disclosed separately.
func (v RedactedView) Composite(g GroupID) (Disclosed, bool) {
	c, ok := v.reg.Composite(g)
	if !ok {
		return Disclosed{}, false
	}
	parts := make([]string, 0, len(c.Fields))
	for _, id := range c.Fields {
		d := v.Field(id)
		if d.Hidden {
			return Disclosed{Hidden: true}, true
		}
		if d.Value != "" {
			parts = append(parts, d.Value)
		}
	}
	return Disclosed{Value: strings.Join(parts, c.Separator)}, true
}

// FullName is Composite(GroupName).
func (v RedactedView) FullName() Disclosed {
	d, _ := v.Composite(GroupName)
	return d
}

func (v RedactedView) Accounts() []AccountView {
	out := make([]AccountView, len(v.accounts))
	copy(out, v.accounts)
	return out
}
