// Package markdown renders biography markup into a render tree.
//
// Parsing is delegated to goldmark; this package only decides which goldmark
// parsers are active for a capability set and maps goldmark's AST onto Node.
// Nothing is ever executed: raw HTML survives only as an opaque literal, and
// only when the RawHTML capability is present.
package markdown

import (
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Renderer parses markup with a fixed capability set. It is safe for concurrent use.
type Renderer struct {
	caps Capabilities
	md   goldmark.Markdown
}

// New builds a renderer that honors exactly caps.
func New(caps Capabilities) *Renderer {
	blocks := []util.PrioritizedValue{
		util.Prioritized(parser.NewParagraphParser(), 1000),
	}
	if caps.Has(Headings) {
		blocks = append(blocks,
			util.Prioritized(parser.NewSetextHeadingParser(), 100),
			util.Prioritized(parser.NewATXHeadingParser(), 600),
		)
	}
	if caps.Has(Lists) {
		blocks = append(blocks,
			util.Prioritized(parser.NewListParser(), 300),
			util.Prioritized(parser.NewListItemParser(), 400),
		)
	}
	if caps.Has(CodeBlocks) {
		blocks = append(blocks, util.Prioritized(parser.NewFencedCodeBlockParser(), 700))
	}
	if caps.Has(RawHTML) {
		blocks = append(blocks, util.Prioritized(parser.NewHTMLBlockParser(), 900))
	}

	var inlines []util.PrioritizedValue
	if caps.Has(InlineCode) {
		inlines = append(inlines, util.Prioritized(parser.NewCodeSpanParser(), 100))
	}
	if caps.Has(Links) {
		inlines = append(inlines,
			util.Prioritized(parser.NewLinkParser(), 200),
			util.Prioritized(parser.NewAutoLinkParser(), 300),
		)
	}
	if caps.Has(RawHTML) {
		inlines = append(inlines, util.Prioritized(parser.NewRawHTMLParser(), 400))
	}
	if caps.Has(Emphasis) {
		inlines = append(inlines, util.Prioritized(parser.NewEmphasisParser(), 500))
	}

	opts := []parser.Option{
		parser.WithBlockParsers(blocks...),
		parser.WithInlineParsers(inlines...),
	}
	if caps.Has(Links) {
		opts = append(opts, parser.WithParagraphTransformers(
			util.Prioritized(parser.LinkReferenceParagraphTransformer, 100),
		))
	}

	var exts []goldmark.Extender
	if caps.Has(Tables) {
		exts = append(exts, extension.Table)
	}
	if caps.Has(Strikethrough) {
		exts = append(exts, extension.Strikethrough)
	}

	return &Renderer{
		caps: caps,
		md: goldmark.New(
			goldmark.WithParser(parser.NewParser(opts...)),
			goldmark.WithExtensions(exts...),
		),
	}
}

func (r *Renderer) Capabilities() Capabilities { return r.caps }

// Render parses text into a document tree. It never fails: unrecognized
// markup becomes text.
func (r *Renderer) Render(src string) *Node {
	b := []byte(src)
	doc := r.md.Parser().Parse(text.NewReader(b))
	c := converter{src: b}
	return &Node{Kind: KindDocument, Children: c.blocks(doc)}
}

var renderers sync.Map // Capabilities -> *Renderer

// Render parses text with a cached renderer for caps.
func Render(src string, caps Capabilities) *Node {
	if r, ok := renderers.Load(caps); ok {
		return r.(*Renderer).Render(src)
	}
	r, _ := renderers.LoadOrStore(caps, New(caps))
	return r.(*Renderer).Render(src)
}

type converter struct {
	src []byte
}

func (c converter) blocks(parent ast.Node) []*Node {
	var out []*Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c converter) block(n ast.Node) []*Node {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		// Reference definitions leave an empty paragraph behind.
		if n.Lines().Len() == 0 {
			return nil
		}
		return []*Node{{Kind: KindParagraph, Children: c.inlineBlock(n)}}
	case *ast.Heading:
		return []*Node{{Kind: KindHeading, Level: n.Level, Children: c.inlineBlock(n)}}
	case *ast.List:
		list := &Node{Kind: KindList, Ordered: n.IsOrdered(), Marker: string(n.Marker), Tight: n.IsTight}
		if n.IsOrdered() {
			list.Start = n.Start
		}
		for it := n.FirstChild(); it != nil; it = it.NextSibling() {
			list.Children = append(list.Children, &Node{Kind: KindListItem, Children: c.blocks(it)})
		}
		return []*Node{list}
	case *ast.FencedCodeBlock:
		var info string
		if n.Info != nil {
			info = string(util.UnescapePunctuations(n.Info.Segment.Value(c.src)))
		}
		lit := c.lines(n)
		if lit != "" && lit[len(lit)-1] != '\n' {
			lit += "\n"
		}
		return []*Node{{Kind: KindCodeBlock, Info: info, Literal: lit}}
	case *ast.HTMLBlock:
		lit := c.lines(n)
		if n.HasClosure() {
			lit += string(n.ClosureLine.Value(c.src))
		}
		for len(lit) > 0 && lit[len(lit)-1] == '\n' {
			lit = lit[:len(lit)-1]
		}
		return []*Node{{Kind: KindHTMLBlock, Literal: lit}}
	case *east.Table:
		table := &Node{Kind: KindTable}
		for row := n.FirstChild(); row != nil; row = row.NextSibling() {
			kind := KindTableRow
			if _, ok := row.(*east.TableHeader); ok {
				kind = KindTableHeader
			}
			r := &Node{Kind: kind}
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				tc := &Node{Kind: KindTableCell, Children: c.inlineBlock(cell)}
				if tcell, ok := cell.(*east.TableCell); ok {
					tc.Align = alignment(tcell.Alignment)
				}
				r.Children = append(r.Children, tc)
			}
			table.Children = append(table.Children, r)
		}
		return []*Node{table}
	}
	if n.Type() == ast.TypeBlock || n.Type() == ast.TypeDocument {
		return c.blocks(n)
	}
	return c.inlines(n)
}

func alignment(a east.Alignment) string {
	switch a {
	case east.AlignLeft, east.AlignRight, east.AlignCenter:
		return a.String()
	}
	return ""
}

func (c converter) lines(n ast.Node) string {
	var buf []byte
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf = append(buf, seg.Value(c.src)...)
	}
	return string(buf)
}

// inlineBlock converts the inline children of a leaf block, dropping trailing breaks.
func (c converter) inlineBlock(n ast.Node) []*Node {
	out := c.inlines(n)
	for len(out) > 0 {
		k := out[len(out)-1].Kind
		if k != KindSoftBreak && k != KindHardBreak {
			break
		}
		out = out[:len(out)-1]
	}
	return out
}

func (c converter) inlines(parent ast.Node) []*Node {
	var out []*Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		for _, x := range c.inline(n) {
			out = appendInline(out, x)
		}
	}
	return out
}

// appendInline merges adjacent text so segmentation details do not leak into the tree.
func appendInline(out []*Node, n *Node) []*Node {
	if n.Kind == KindText {
		if n.Literal == "" {
			return out
		}
		if len(out) > 0 && out[len(out)-1].Kind == KindText {
			last := out[len(out)-1]
			out[len(out)-1] = &Node{Kind: KindText, Literal: last.Literal + n.Literal}
			return out
		}
	}
	return append(out, n)
}

func (c converter) inline(n ast.Node) []*Node {
	switch n := n.(type) {
	case *ast.Text:
		var v string
		if n.IsRaw() {
			v = string(n.Segment.Value(c.src))
		} else {
			v = string(util.UnescapePunctuations(n.Segment.Value(c.src)))
		}
		out := []*Node{{Kind: KindText, Literal: v}}
		switch {
		case n.HardLineBreak():
			out = append(out, &Node{Kind: KindHardBreak})
		case n.SoftLineBreak():
			out = append(out, &Node{Kind: KindSoftBreak})
		}
		return out
	case *ast.String:
		return []*Node{{Kind: KindText, Literal: string(n.Value)}}
	case *ast.Emphasis:
		kind := KindEmphasis
		if n.Level >= 2 {
			kind = KindStrong
		}
		return []*Node{{Kind: kind, Children: c.inlines(n)}}
	case *east.Strikethrough:
		return []*Node{{Kind: KindStrikethrough, Children: c.inlines(n)}}
	case *ast.CodeSpan:
		var buf []byte
		for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
			switch t := ch.(type) {
			case *ast.Text:
				buf = append(buf, t.Segment.Value(c.src)...)
			case *ast.String:
				buf = append(buf, t.Value...)
			}
		}
		for i, b := range buf {
			if b == '\n' {
				buf[i] = ' '
			}
		}
		return []*Node{{Kind: KindCode, Literal: string(buf)}}
	case *ast.Link:
		return []*Node{c.link(n.Destination, n.Title, n)}
	case *ast.Image:
		// Images are outside every capability set: keep the link, surface the bang as text.
		return []*Node{{Kind: KindText, Literal: "!"}, c.link(n.Destination, n.Title, n)}
	case *ast.AutoLink:
		return []*Node{{
			Kind:     KindLink,
			Dest:     string(n.URL(c.src)),
			Children: []*Node{{Kind: KindText, Literal: string(n.Label(c.src))}},
		}}
	case *ast.RawHTML:
		var buf []byte
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf = append(buf, seg.Value(c.src)...)
		}
		return []*Node{{Kind: KindRawHTML, Literal: string(buf)}}
	}
	return c.inlines(n)
}

func (c converter) link(dest, title []byte, n ast.Node) *Node {
	return &Node{
		Kind:     KindLink,
		Dest:     string(util.UnescapePunctuations(dest)),
		Title:    string(util.UnescapePunctuations(title)),
		Children: c.inlines(n),
	}
}
