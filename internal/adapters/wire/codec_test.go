package wire

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilegateway"
)

const canonicalBody = `{
  "student_id": "2164001",
  "faculty": "経済学部",
  "last_name": "田中",
  "first_name": "太郎",
  "nickname": "たろう",
  "self_introduction": "**よろしく**",
  "visibility": {
    "student_id": false, "name": true, "nickname": true, "faculty": false,
    "self_introduction": true, "line": false, "discord": true, "github": false
  },
  "accounts": {
    "line": {"connected": true, "external_id": "U123"},
    "discord": {"connected": true, "external_id": "taro#0001"},
    "github": {"connected": false}
  }
}`

func equalJSON(t *testing.T, a, b []byte) bool {
	t.Helper()
	var x, y any
	if err := json.Unmarshal(a, &x); err != nil {
		t.Fatalf("unmarshal a: %v", err)
	}
	if err := json.Unmarshal(b, &y); err != nil {
		t.Fatalf("unmarshal b: %v", err)
	}
	return reflect.DeepEqual(x, y)
}

func TestDecodeEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	reg := domain.DefaultRegistry()
	p, err := Decode(reg, []byte(canonicalBody))
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	if p.Get(domain.FieldLastName) != "田中" || !p.GroupVisible(domain.GroupName) {
		t.Fatalf("decoded profile wrong: last=%q", p.Get(domain.FieldLastName))
	}
	if a, _ := p.Account(domain.ServiceDiscord); !a.Connected || a.ExternalID != "taro#0001" {
		t.Fatalf("discord=%+v", a)
	}

	out, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() err=%v", err)
	}
	if !equalJSON(t, out, []byte(canonicalBody)) {
		t.Fatalf("round trip differs:\n got=%s\nwant=%s", out, canonicalBody)
	}
}

func TestEncode_VisibilityKeysMatchRegistry(t *testing.T) {
	t.Parallel()

	for _, opts := range []domain.RegistryOptions{
		domain.DefaultRegistryOptions(),
		{FacultyOptions: []string{"Science"}, Services: []domain.Service{{ID: domain.ServiceDiscord, Required: true}}},
	} {
		reg, err := domain.NewRegistry(opts)
		if err != nil {
			t.Fatalf("NewRegistry() err=%v", err)
		}
		out, err := Encode(domain.NewProfile(reg))
		if err != nil {
			t.Fatalf("Encode() err=%v", err)
		}
		var body struct {
			Visibility map[string]bool `json:"visibility"`
		}
		if err := json.Unmarshal(out, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		var keys []string
		for k := range body.Visibility {
			keys = append(keys, k)
		}
		var groups []string
		for _, g := range reg.Groups() {
			groups = append(groups, string(g))
		}
		slices.Sort(keys)
		slices.Sort(groups)
		if !slices.Equal(keys, groups) {
			t.Fatalf("visibility keys=%v, groups=%v", keys, groups)
		}
	}
}

func mutate(t *testing.T, f func(m map[string]any)) []byte {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(canonicalBody), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f(m)
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDecode_SchemaErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body []byte
		key  string
	}{
		{"not an object", []byte(`[1,2]`), ""},
		{"missing field", mutate(t, func(m map[string]any) { delete(m, "nickname") }), "nickname"},
		{"null field", mutate(t, func(m map[string]any) { m["last_name"] = nil }), "last_name"},
		{"numeric field", mutate(t, func(m map[string]any) { m["student_id"] = 2164001 }), "student_id"},
		{"faculty outside options", mutate(t, func(m map[string]any) { m["faculty"] = "魔法学部" }), "faculty"},
		{"missing visibility", mutate(t, func(m map[string]any) { delete(m, "visibility") }), "visibility"},
		{"missing group", mutate(t, func(m map[string]any) {
			delete(m["visibility"].(map[string]any), "name")
		}), "visibility.name"},
		{"unknown group", mutate(t, func(m map[string]any) {
			m["visibility"].(map[string]any)["lastName"] = true
		}), "visibility.lastName"},
		{"string visibility", mutate(t, func(m map[string]any) {
			m["visibility"].(map[string]any)["nickname"] = "yes"
		}), "visibility.nickname"},
		{"unknown service", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["myspace"] = map[string]any{"connected": false}
		}), "accounts.myspace"},
		{"connected without id", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["github"] = map[string]any{"connected": true}
		}), "accounts.github.external_id"},
		{"disconnected with id", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["github"] = map[string]any{"connected": false, "external_id": "x"}
		}), "accounts.github.external_id"},
		{"disconnected with empty id", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["github"] = map[string]any{"connected": false, "external_id": ""}
		}), "accounts.github.external_id"},
		{"disconnected with null id", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["github"] = map[string]any{"connected": false, "external_id": nil}
		}), "accounts.github.external_id"},
		{"connected with empty id", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["line"] = map[string]any{"connected": true, "external_id": ""}
		}), "accounts.line.external_id"},
		{"missing service", mutate(t, func(m map[string]any) {
			delete(m["accounts"].(map[string]any), "discord")
		}), "accounts.discord"},
		{"unknown account key", mutate(t, func(m map[string]any) {
			m["accounts"].(map[string]any)["github"] = map[string]any{"connected": false, "linked_at": "2024"}
		}), "accounts.github.linked_at"},
		{"null accounts", mutate(t, func(m map[string]any) { m["accounts"] = nil }), "accounts"},
		{"unknown top-level key", mutate(t, func(m map[string]any) { m["theme"] = "dark" }), "theme"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(domain.DefaultRegistry(), tc.body)
			var se *profilegateway.SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Decode() err=%v (%T), want *SchemaError", err, err)
			}
			if se.Key != tc.key {
				t.Fatalf("SchemaError.Key=%q, want %q", se.Key, tc.key)
			}
		})
	}
}

func TestDecodeEncode_RoundTripsAcceptedBodies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body []byte
	}{
		{"canonical", []byte(canonicalBody)},
		{"without accounts", mutate(t, func(m map[string]any) { delete(m, "accounts") })},
		{"all disconnected", mutate(t, func(m map[string]any) {
			for _, svc := range []string{"line", "discord", "github"} {
				m["accounts"].(map[string]any)[svc] = map[string]any{"connected": false}
			}
		})},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := Decode(domain.DefaultRegistry(), tc.body)
			if err != nil {
				t.Fatalf("Decode() err=%v", err)
			}
			out, err := Encode(p)
			if err != nil {
				t.Fatalf("Encode() err=%v", err)
			}
			if !equalJSON(t, out, tc.body) {
				t.Fatalf("round trip differs:\n got=%s\nwant=%s", out, tc.body)
			}
		})
	}
}

func TestDecode_WithoutAccountsUntilEdited(t *testing.T) {
	t.Parallel()

	p, err := Decode(domain.DefaultRegistry(), mutate(t, func(m map[string]any) { delete(m, "accounts") }))
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	if p.AccountsKnown() {
		t.Fatalf("AccountsKnown()=true for a body without accounts")
	}
	_ = p.Connect(domain.ServiceGitHub, "taro-gh")
	out, _ := Encode(p)
	var body struct {
		Accounts map[string]Account `json:"accounts"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Accounts) != 3 || body.Accounts["github"].ExternalID != "taro-gh" {
		t.Fatalf("accounts after edit=%+v", body.Accounts)
	}
}

func TestDecode_TruncatesOversizedBio(t *testing.T) {
	t.Parallel()

	body := mutate(t, func(m map[string]any) {
		m["self_introduction"] = strings.Repeat("あ", domain.BioMaxRunes+10)
	})
	p, err := Decode(domain.DefaultRegistry(), body)
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	if got := []rune(p.Get(domain.FieldBio)); len(got) != domain.BioMaxRunes {
		t.Fatalf("bio runes=%d", len(got))
	}
}
