package markdown

import (
	"fmt"
	"strings"
)

// Capabilities is the set of markup constructs a renderer honors. Anything
// outside the set is carried through as literal text.
type Capabilities uint16

const (
	Emphasis Capabilities = 1 << iota
	Headings
	Lists
	Links
	InlineCode
	Tables
	Strikethrough
	RawHTML
	CodeBlocks
)

// Minimal matches the bio editor toolbar: bold, italic, heading, list, link, inline code.
const Minimal = Emphasis | Headings | Lists | Links | InlineCode

// Extended adds GFM tables, strikethrough, fenced code and raw embedded markup.
const Extended = Minimal | Tables | Strikethrough | RawHTML | CodeBlocks

var capabilityNames = []struct {
	c    Capabilities
	name string
}{
	{Emphasis, "emphasis"},
	{Headings, "headings"},
	{Lists, "lists"},
	{Links, "links"},
	{InlineCode, "inline_code"},
	{Tables, "tables"},
	{Strikethrough, "strikethrough"},
	{RawHTML, "raw_html"},
	{CodeBlocks, "code_blocks"},
}

func (c Capabilities) Has(o Capabilities) bool { return c&o == o }

func (c Capabilities) String() string {
	switch c {
	case Minimal:
		return "minimal"
	case Extended:
		return "extended"
	}
	var parts []string
	for _, cn := range capabilityNames {
		if c.Has(cn.c) {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseCapabilities accepts "minimal", "extended", or a comma separated list of
// construct names such as "emphasis,links,tables".
func ParseCapabilities(s string) (Capabilities, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "minimal":
		return Minimal, nil
	case "extended":
		return Extended, nil
	}
	var c Capabilities
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		found := false
		for _, cn := range capabilityNames {
			if cn.name == part {
				c |= cn.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown markdown capability %q", part)
		}
	}
	return c, nil
}
