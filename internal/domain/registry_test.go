package domain

import (
	"slices"
	"testing"
)

func TestRegistry_FieldOrderAndGroups(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	var ids []FieldID
	for _, f := range reg.Fields() {
		ids = append(ids, f.ID)
	}
	want := []FieldID{FieldStudentID, FieldLastName, FieldFirstName, FieldNickname, FieldFaculty, FieldBio}
	if !slices.Equal(ids, want) {
		t.Fatalf("fields=%v, want %v", ids, want)
	}

	for _, tc := range []struct {
		field FieldID
		group GroupID
	}{
		{FieldStudentID, GroupStudentID},
		{FieldLastName, GroupName},
		{FieldFirstName, GroupName},
		{FieldNickname, GroupNickname},
		{FieldFaculty, GroupFaculty},
		{FieldBio, GroupSelfIntroduction},
	} {
		g, ok := reg.GroupOf(tc.field)
		if !ok || g != tc.group {
			t.Fatalf("GroupOf(%s)=%q ok=%v, want %q", tc.field, g, ok, tc.group)
		}
	}
	if _, ok := reg.GroupOf("unknown"); ok {
		t.Fatalf("GroupOf(unknown) ok=true")
	}
}

func TestRegistry_GroupsIncludeServices(t *testing.T) {
	t.Parallel()

	got := DefaultRegistry().Groups()
	want := []GroupID{GroupStudentID, GroupName, GroupNickname, GroupFaculty, GroupSelfIntroduction, "line", "discord", "github"}
	if !slices.Equal(got, want) {
		t.Fatalf("groups=%v, want %v", got, want)
	}
}

func TestRegistry_CompositeName(t *testing.T) {
	t.Parallel()

	c, ok := DefaultRegistry().Composite(GroupName)
	if !ok {
		t.Fatalf("Composite(name) missing")
	}
	if !slices.Equal(c.Fields, []FieldID{FieldLastName, FieldFirstName}) || c.Separator != " " {
		t.Fatalf("composite=%+v", c)
	}
	if _, ok := DefaultRegistry().Composite(GroupNickname); ok {
		t.Fatalf("nickname should not be a composite")
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		opts RegistryOptions
	}{
		{"empty faculties", RegistryOptions{}},
		{"duplicate faculty", RegistryOptions{FacultyOptions: []string{"a", "a"}}},
		{"service collides with field group", RegistryOptions{
			FacultyOptions: []string{"a"},
			Services:       []Service{{ID: "nickname"}},
		}},
		{"duplicate service", RegistryOptions{
			FacultyOptions: []string{"a"},
			Services:       []Service{{ID: ServiceLINE}, {ID: ServiceLINE}},
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewRegistry(tc.opts); err == nil {
				t.Fatalf("NewRegistry(%+v) err=nil", tc.opts)
			}
		})
	}
}

func TestNewRegistry_DeploymentVariant(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(RegistryOptions{
		FacultyOptions: []string{"Engineering", "Science"},
		Services:       []Service{{ID: ServiceDiscord, Required: true}},
	})
	if err != nil {
		t.Fatalf("NewRegistry() err=%v", err)
	}
	if got := reg.FacultyOptions(); !slices.Equal(got, []string{"Engineering", "Science"}) {
		t.Fatalf("faculty options=%v", got)
	}
	if reg.HasGroup("line") {
		t.Fatalf("line group present in a deployment without it")
	}
	p := NewProfile(reg)
	if p.Get(FieldFaculty) != "Engineering" {
		t.Fatalf("faculty default=%q", p.Get(FieldFaculty))
	}
}

func TestRegistry_CheckLength(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	ok := []rune{}
	for i := 0; i < BioMaxRunes; i++ {
		ok = append(ok, 'あ')
	}
	if err := reg.CheckLength(FieldBio, string(ok)); err != nil {
		t.Fatalf("CheckLength(cap) err=%v", err)
	}
	if err := reg.CheckLength(FieldBio, string(ok)+"x"); err == nil {
		t.Fatalf("CheckLength(cap+1) err=nil")
	}
	if err := reg.CheckLength(FieldNickname, string(ok)+string(ok)); err != nil {
		t.Fatalf("CheckLength(nickname) err=%v", err)
	}
}
