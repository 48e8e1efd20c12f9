package markdown

// Kind names a render tree node type.
type Kind string

const (
	KindDocument      Kind = "document"
	KindParagraph     Kind = "paragraph"
	KindHeading       Kind = "heading"
	KindList          Kind = "list"
	KindListItem      Kind = "list_item"
	KindCodeBlock     Kind = "code_block"
	KindHTMLBlock     Kind = "html_block"
	KindTable         Kind = "table"
	KindTableHeader   Kind = "table_header"
	KindTableRow      Kind = "table_row"
	KindTableCell     Kind = "table_cell"
	KindText          Kind = "text"
	KindSoftBreak     Kind = "soft_break"
	KindHardBreak     Kind = "hard_break"
	KindEmphasis      Kind = "emphasis"
	KindStrong        Kind = "strong"
	KindStrikethrough Kind = "strikethrough"
	KindLink          Kind = "link"
	KindCode          Kind = "code"
	KindRawHTML       Kind = "raw_html"
)

// Node is one element of the render tree. Raw HTML is kept as an opaque
// Literal and is never interpreted.
type Node struct {
	Kind     Kind    `json:"kind"`
	Level    int     `json:"level,omitempty"`
	Ordered  bool    `json:"ordered,omitempty"`
	Start    int     `json:"start,omitempty"`
	Marker   string  `json:"marker,omitempty"`
	Tight    bool    `json:"tight,omitempty"`
	Dest     string  `json:"dest,omitempty"`
	Title    string  `json:"title,omitempty"`
	Info     string  `json:"info,omitempty"`
	Align    string  `json:"align,omitempty"`
	Literal  string  `json:"literal,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Level != b.Level || a.Ordered != b.Ordered ||
		a.Start != b.Start || a.Marker != b.Marker || a.Tight != b.Tight ||
		a.Dest != b.Dest || a.Title != b.Title || a.Info != b.Info ||
		a.Align != b.Align || a.Literal != b.Literal ||
		len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// PlainText concatenates the literal text of a tree, with breaks as spaces
// and blocks separated by newlines.
func PlainText(n *Node) string {
	var out []byte
	var walk func(*Node)
	walk = func(n *Node) {
		switch n.Kind {
		case KindText, KindCode:
			out = append(out, n.Literal...)
		case KindSoftBreak, KindHardBreak:
			out = append(out, ' ')
		}
		for i, c := range n.Children {
			if i > 0 && isBlock(c.Kind) {
				out = append(out, '\n')
			}
			walk(c)
		}
	}
	walk(n)
	return string(out)
}

func isBlock(k Kind) bool {
	switch k {
	case KindParagraph, KindHeading, KindList, KindListItem, KindCodeBlock,
		KindHTMLBlock, KindTable, KindTableHeader, KindTableRow:
		return true
	}
	return false
}
