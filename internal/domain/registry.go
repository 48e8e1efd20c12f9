package domain

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// FieldID identifies a disclosable profile attribute.
type FieldID string

const (
	FieldStudentID FieldID = "studentId"
	FieldLastName  FieldID = "lastName"
	FieldFirstName FieldID = "firstName"
	FieldNickname  FieldID = "nickname"
	FieldFaculty   FieldID = "faculty"
	FieldBio       FieldID = "bio"
)

// FieldType is the semantic type of a field value.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeEnum   FieldType = "enum"
	FieldTypeText   FieldType = "text"
)

// GroupID identifies a visibility group: the unit of disclosure control.
// Field groups and service groups share one namespace.
type GroupID string

const (
	GroupStudentID        GroupID = "student_id"
	GroupName             GroupID = "name"
	GroupNickname         GroupID = "nickname"
	GroupFaculty          GroupID = "faculty"
	GroupSelfIntroduction GroupID = "self_introduction"
)

// BioMaxRunes caps the biography length. Longer input is truncated on write.
const BioMaxRunes = 500

var (
	ErrUnknownField   = errors.New("unknown profile field")
	ErrUnknownGroup   = errors.New("unknown visibility group")
	ErrUnknownService = errors.New("unknown account service")
	ErrInvalidOption  = errors.New("value is not one of the field options")
)

// Field describes one disclosable attribute.
type Field struct {
	ID   FieldID
	Type FieldType
	// Group is the visibility group gating this field. Several fields may share one.
	Group GroupID
	// WireKey is the key used by the persistence wire contract.
	WireKey string
	// MaxRunes is the truncation cap; 0 means unbounded.
	MaxRunes int
	// Options is the fixed option set of an enum field. The first option is the default.
	Options []string
}

// Default returns the initialization value of the field.
func (f Field) Default() string {
	if f.Type == FieldTypeEnum && len(f.Options) > 0 {
		return f.Options[0]
	}
	return ""
}

// Composite is a field combination disclosed as a unit under one group.
type Composite struct {
	Group     GroupID
	Fields    []FieldID
	Separator string
}

// fieldTable is the canonical display order of profile fields.
var fieldTable = []Field{
	{ID: FieldStudentID, Type: FieldTypeString, Group: GroupStudentID, WireKey: "student_id"},
	{ID: FieldLastName, Type: FieldTypeString, Group: GroupName, WireKey: "last_name"},
	{ID: FieldFirstName, Type: FieldTypeString, Group: GroupName, WireKey: "first_name"},
	{ID: FieldNickname, Type: FieldTypeString, Group: GroupNickname, WireKey: "nickname"},
	{ID: FieldFaculty, Type: FieldTypeEnum, Group: GroupFaculty, WireKey: "faculty"},
	{ID: FieldBio, Type: FieldTypeText, Group: GroupSelfIntroduction, WireKey: "self_introduction", MaxRunes: BioMaxRunes},
}

var compositeTable = []Composite{
	{Group: GroupName, Fields: []FieldID{FieldLastName, FieldFirstName}, Separator: " "},
}

// DefaultFaculties is the faculty option set used when a deployment does not configure one.
var DefaultFaculties = []string{"理工学部", "都市科学部", "経済学部", "経営学部", "教育学部"}

// DefaultServices is the account service catalog used when a deployment does not configure one.
var DefaultServices = []Service{
	{ID: ServiceLINE, Required: true},
	{ID: ServiceDiscord, Required: true},
	{ID: ServiceGitHub, Required: false},
}

// RegistryOptions carries the per-deployment parts of the registry.
type RegistryOptions struct {
	FacultyOptions []string
	Services       []Service
}

// DefaultRegistryOptions returns the compiled-in deployment configuration.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		FacultyOptions: slices.Clone(DefaultFaculties),
		Services:       slices.Clone(DefaultServices),
	}
}

// Registry enumerates every disclosable field and account service.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	fields     []Field
	fieldByID  map[FieldID]int
	services   []Service
	serviceIdx map[ServiceID]int
	groups     []GroupID
	groupSet   map[GroupID]struct{}
	composites map[GroupID]Composite
}

// NewRegistry builds the registry from the fixed field table and deployment options.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if len(opts.FacultyOptions) == 0 {
		return nil, fmt.Errorf("faculty options: %w", errors.New("must be non-empty"))
	}
	r := &Registry{
		fieldByID:  make(map[FieldID]int, len(fieldTable)),
		serviceIdx: make(map[ServiceID]int, len(opts.Services)),
		groupSet:   make(map[GroupID]struct{}),
		composites: make(map[GroupID]Composite, len(compositeTable)),
	}

	seenOpt := make(map[string]struct{}, len(opts.FacultyOptions))
	for _, o := range opts.FacultyOptions {
		if o == "" {
			return nil, errors.New("faculty options: empty option")
		}
		if _, dup := seenOpt[o]; dup {
			return nil, fmt.Errorf("faculty options: duplicate %q", o)
		}
		seenOpt[o] = struct{}{}
	}

	for _, f := range fieldTable {
		if f.Group == "" {
			return nil, fmt.Errorf("field %s: missing visibility group", f.ID)
		}
		if f.ID == FieldFaculty {
			f.Options = slices.Clone(opts.FacultyOptions)
		}
		r.fieldByID[f.ID] = len(r.fields)
		r.fields = append(r.fields, f)
		r.addGroup(f.Group)
	}

	for _, s := range opts.Services {
		if s.ID == "" {
			return nil, errors.New("service catalog: empty service id")
		}
		if _, dup := r.serviceIdx[s.ID]; dup {
			return nil, fmt.Errorf("service catalog: duplicate %q", s.ID)
		}
		if _, clash := r.groupSet[s.Group()]; clash {
			return nil, fmt.Errorf("service %q collides with visibility group %q", s.ID, s.Group())
		}
		r.serviceIdx[s.ID] = len(r.services)
		r.services = append(r.services, s)
		r.addGroup(s.Group())
	}

	for _, c := range compositeTable {
		for _, id := range c.Fields {
			f, ok := r.Field(id)
			if !ok || f.Group != c.Group {
				return nil, fmt.Errorf("composite %s: field %s is not gated by it", c.Group, id)
			}
		}
		r.composites[c.Group] = c
	}
	return r, nil
}

func (r *Registry) addGroup(g GroupID) {
	if _, ok := r.groupSet[g]; ok {
		return
	}
	r.groupSet[g] = struct{}{}
	r.groups = append(r.groups, g)
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the registry built from DefaultRegistryOptions.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := NewRegistry(DefaultRegistryOptions())
		if err != nil {
			panic(fmt.Sprintf("default registry: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Fields returns field descriptors in canonical display order.
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.fields))
	for i, f := range r.fields {
		f.Options = slices.Clone(f.Options)
		out[i] = f
	}
	return out
}

func (r *Registry) Field(id FieldID) (Field, bool) {
	i, ok := r.fieldByID[id]
	if !ok {
		return Field{}, false
	}
	f := r.fields[i]
	f.Options = slices.Clone(f.Options)
	return f, true
}

// GroupOf returns the visibility group gating a field.
func (r *Registry) GroupOf(id FieldID) (GroupID, bool) {
	i, ok := r.fieldByID[id]
	if !ok {
		return "", false
	}
	return r.fields[i].Group, true
}

// Groups returns every visibility group id: field groups in field order, then service groups.
func (r *Registry) Groups() []GroupID {
	return slices.Clone(r.groups)
}

func (r *Registry) HasGroup(g GroupID) bool {
	_, ok := r.groupSet[g]
	return ok
}

// FieldsInGroup returns the fields gated by g, in display order.
func (r *Registry) FieldsInGroup(g GroupID) []FieldID {
	var out []FieldID
	for _, f := range r.fields {
		if f.Group == g {
			out = append(out, f.ID)
		}
	}
	return out
}

func (r *Registry) Services() []Service {
	return slices.Clone(r.services)
}

func (r *Registry) Service(id ServiceID) (Service, bool) {
	i, ok := r.serviceIdx[id]
	if !ok {
		return Service{}, false
	}
	return r.services[i], true
}

func (r *Registry) Composite(g GroupID) (Composite, bool) {
	c, ok := r.composites[g]
	if !ok {
		return Composite{}, false
	}
	c.Fields = slices.Clone(c.Fields)
	return c, true
}

// Composites returns composite definitions ordered by the group order.
func (r *Registry) Composites() []Composite {
	out := make([]Composite, 0, len(r.composites))
	for _, g := range r.groups {
		if c, ok := r.Composite(g); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) FacultyOptions() []string {
	f, _ := r.Field(FieldFaculty)
	return f.Options
}
