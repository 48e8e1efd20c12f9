package httpapi

import (
	"github.com/oapi-codegen/nullable"

	"github.com/Lumos-Programming/profile-api/internal/app/profiles"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
)

// Redacted values are nullable: null means hidden from the viewer, which is distinct
// from an empty string.

type Field struct {
	Field   string                    `json:"field"`
	Group   string                    `json:"group"`
	Value   nullable.Nullable[string] `json:"value"`
	Display string                    `json:"display"`
}

type Account struct {
	Service    string                    `json:"service"`
	Required   bool                      `json:"required"`
	Connected  nullable.Nullable[bool]   `json:"connected"`
	ExternalId nullable.Nullable[string] `json:"externalId,omitempty"`
}

type Member struct {
	MemberId string                    `json:"memberId,omitempty"`
	Role     string                    `json:"role"`
	FullName nullable.Nullable[string] `json:"fullName"`
	Fields   []Field                   `json:"fields"`
	Accounts []Account                 `json:"accounts"`
	// Bio is the rendered biography; omitted in directory listings and when hidden.
	Bio *markdown.Node `json:"bio,omitempty"`
}

type MemberResponse struct {
	Member Member `json:"member"`
}

type ListMembersResponse struct {
	Members []Member `json:"members"`
}

type CompletenessResponse struct {
	Complete        bool     `json:"complete"`
	MissingServices []string `json:"missingServices"`
}

func memberFromView(mv profiles.MemberView, withBio bool) Member {
	v := mv.View
	m := Member{
		MemberId: string(mv.MemberID),
		Role:     string(v.Role()),
		FullName: disclosed(v.FullName().Value, v.FullName().Hidden),
	}
	for _, f := range v.Fields() {
		m.Fields = append(m.Fields, Field{
			Field:   string(f.Field),
			Group:   string(f.Group),
			Value:   disclosed(f.Value, f.Hidden),
			Display: f.String(),
		})
	}
	for _, a := range v.Accounts() {
		out := Account{Service: string(a.Service), Required: a.Required}
		if a.Hidden {
			out.Connected = nullable.NewNullNullable[bool]()
		} else {
			out.Connected = nullable.NewNullableWithValue(a.Connected)
			if a.ExternalID != "" {
				out.ExternalId = nullable.NewNullableWithValue(a.ExternalID)
			}
		}
		m.Accounts = append(m.Accounts, out)
	}
	if withBio {
		m.Bio = mv.Bio
	}
	return m
}

func disclosed(value string, hidden bool) nullable.Nullable[string] {
	if hidden {
		return nullable.NewNullNullable[string]()
	}
	return nullable.NewNullableWithValue(value)
}
