// Package wire encodes profiles to and from the basic-info JSON contract shared by
// the profile API and its clients.
//
// Field keys come from the registry, and the visibility object carries exactly the
// registry's visibility groups, so the contract cannot drift from the registry.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilegateway"
)

const (
	KeyVisibility = "visibility"
	KeyAccounts   = "accounts"
)

var (
	errMustBeString = errors.New("must be a string")
	errMustBeBool   = errors.New("must be a boolean")
)

// Account is the wire form of an account connection.
type Account struct {
	Connected  bool   `json:"connected"`
	ExternalID string `json:"external_id,omitempty"`
}

// Encode renders p in the basic-info shape. Accounts are emitted, one per catalog
// service, unless p came from a body without them.
func Encode(p *domain.Profile) ([]byte, error) {
	return json.Marshal(Body(p))
}

// Body returns the basic-info object for p. json.Marshal sorts its keys.
func Body(p *domain.Profile) map[string]any {
	reg := p.Registry()
	body := make(map[string]any, len(reg.Fields())+2)
	for _, f := range reg.Fields() {
		body[f.WireKey] = p.Get(f.ID)
	}
	vis := make(map[string]bool, len(reg.Groups()))
	for _, g := range reg.Groups() {
		vis[string(g)] = p.GroupVisible(g)
	}
	body[KeyVisibility] = vis
	if !p.AccountsKnown() {
		return body
	}
	accounts := make(map[string]Account, len(reg.Services()))
	for _, a := range p.Accounts() {
		accounts[string(a.Service)] = Account{Connected: a.Connected, ExternalID: a.ExternalID}
	}
	body[KeyAccounts] = accounts
	return body
}

// Decode parses a basic-info body. Any deviation from the contract is a
// *profilegateway.SchemaError: an unknown or missing key, a non-string field, a
// visibility object whose keys differ from the registry groups, or an inconsistent
// account. The accounts object is optional; without it the account state is unknown
// and Encode leaves it out again.
func Decode(reg *domain.Registry, body []byte) (*domain.Profile, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return nil, &profilegateway.SchemaError{Reason: "body is not a JSON object"}
	}
	known := map[string]bool{KeyVisibility: true, KeyAccounts: true}
	for _, f := range reg.Fields() {
		known[f.WireKey] = true
	}
	for k := range top {
		if !known[k] {
			return nil, &profilegateway.SchemaError{Key: k, Reason: "unknown key"}
		}
	}

	p := domain.NewProfile(reg)
	for _, f := range reg.Fields() {
		raw, ok := top[f.WireKey]
		if !ok {
			return nil, &profilegateway.SchemaError{Key: f.WireKey, Reason: "missing"}
		}
		s, err := decodeString(raw)
		if err != nil {
			return nil, &profilegateway.SchemaError{Key: f.WireKey, Reason: err.Error()}
		}
		if err := p.Set(f.ID, s); err != nil {
			return nil, &profilegateway.SchemaError{Key: f.WireKey, Reason: fmt.Sprintf("%q is not an allowed value", s)}
		}
	}

	if err := decodeVisibility(reg, p, top[KeyVisibility]); err != nil {
		return nil, err
	}
	if err := decodeAccounts(reg, p, top[KeyAccounts]); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeVisibility(reg *domain.Registry, p *domain.Profile, raw json.RawMessage) error {
	if raw == nil {
		return &profilegateway.SchemaError{Key: KeyVisibility, Reason: "missing"}
	}
	var vis map[string]json.RawMessage
	if err := json.Unmarshal(raw, &vis); err != nil || vis == nil {
		return &profilegateway.SchemaError{Key: KeyVisibility, Reason: "must be an object"}
	}
	for k := range vis {
		if !reg.HasGroup(domain.GroupID(k)) {
			return &profilegateway.SchemaError{Key: KeyVisibility + "." + k, Reason: "unknown visibility group"}
		}
	}
	for _, g := range reg.Groups() {
		key := KeyVisibility + "." + string(g)
		v, ok := vis[string(g)]
		if !ok {
			return &profilegateway.SchemaError{Key: key, Reason: "missing"}
		}
		b, err := decodeBool(v)
		if err != nil {
			return &profilegateway.SchemaError{Key: key, Reason: err.Error()}
		}
		if err := p.SetVisibility(g, b); err != nil {
			return &profilegateway.SchemaError{Key: key, Reason: err.Error()}
		}
	}
	return nil
}

func decodeAccounts(reg *domain.Registry, p *domain.Profile, raw json.RawMessage) error {
	if raw == nil {
		p.ForgetAccounts()
		return nil
	}
	var accounts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &accounts); err != nil || accounts == nil {
		return &profilegateway.SchemaError{Key: KeyAccounts, Reason: "must be an object"}
	}
	for _, svc := range reg.Services() {
		if _, ok := accounts[string(svc.ID)]; !ok {
			return &profilegateway.SchemaError{Key: KeyAccounts + "." + string(svc.ID), Reason: "missing"}
		}
	}
	for name, rawAcc := range accounts {
		key := KeyAccounts + "." + name
		id := domain.ServiceID(name)
		if _, ok := reg.Service(id); !ok {
			return &profilegateway.SchemaError{Key: key, Reason: "unknown service"}
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawAcc, &fields); err != nil || fields == nil {
			return &profilegateway.SchemaError{Key: key, Reason: "must be an object"}
		}
		for k := range fields {
			if k != "connected" && k != "external_id" {
				return &profilegateway.SchemaError{Key: key + "." + k, Reason: "unknown key"}
			}
		}
		rawConnected, ok := fields["connected"]
		if !ok {
			return &profilegateway.SchemaError{Key: key + ".connected", Reason: "missing"}
		}
		connected, err := decodeBool(rawConnected)
		if err != nil {
			return &profilegateway.SchemaError{Key: key + ".connected", Reason: err.Error()}
		}
		rawID, hasID := fields["external_id"]
		switch {
		case !connected && hasID:
			return &profilegateway.SchemaError{Key: key + ".external_id", Reason: "present on a disconnected account"}
		case !connected:
			continue
		case !hasID:
			return &profilegateway.SchemaError{Key: key + ".external_id", Reason: "required when connected"}
		}
		externalID, err := decodeString(rawID)
		if err != nil {
			return &profilegateway.SchemaError{Key: key + ".external_id", Reason: err.Error()}
		}
		if externalID == "" {
			return &profilegateway.SchemaError{Key: key + ".external_id", Reason: "required when connected"}
		}
		if err := p.Connect(id, externalID); err != nil {
			return &profilegateway.SchemaError{Key: key, Reason: err.Error()}
		}
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", errMustBeString
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errMustBeString
	}
	return s, nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errMustBeBool
}
