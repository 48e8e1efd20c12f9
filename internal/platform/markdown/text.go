package markdown

import (
	"strconv"
	"strings"
	"sync"
)

// Text serializes a tree back to markup. Rendering the result with the same
// capabilities yields a tree Equal to n for any tree produced by Render.
func Text(n *Node) string {
	if n == nil {
		return ""
	}
	return blockText(n)
}

func blockText(n *Node) string {
	switch n.Kind {
	case KindDocument, KindListItem:
		return joinBlocks(n.Children, "\n\n")
	case KindParagraph:
		return inlineText(n.Children, false)
	case KindHeading:
		return headingText(n)
	case KindList:
		return listText(n)
	case KindCodeBlock:
		return codeBlockText(n)
	case KindHTMLBlock:
		return n.Literal
	case KindTable:
		return tableText(n)
	}
	return inlineText([]*Node{n}, false)
}

func joinBlocks(ns []*Node, sep string) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, blockText(n))
	}
	return strings.Join(parts, sep)
}

func headingText(n *Node) string {
	content := inlineText(n.Children, false)
	if strings.Contains(content, "\n") && n.Level <= 2 {
		underline := "==="
		if n.Level == 2 {
			underline = "---"
		}
		return content + "\n" + underline
	}
	prefix := strings.Repeat("#", n.Level)
	if content == "" {
		return prefix
	}
	return prefix + " " + content
}

func listText(n *Node) string {
	sep := "\n"
	if !n.Tight {
		sep = "\n\n"
	}
	items := make([]string, 0, len(n.Children))
	for i, it := range n.Children {
		marker := n.Marker + " "
		if n.Ordered {
			marker = strconv.Itoa(n.Start+i) + n.Marker + " "
		}
		body := joinBlocks(it.Children, sep)
		if body == "" {
			items = append(items, strings.TrimRight(marker, " "))
			continue
		}
		items = append(items, hangingIndent(body, marker))
	}
	return strings.Join(items, sep)
}

// hangingIndent prefixes the first line with marker and indents the rest to its width.
func hangingIndent(body, marker string) string {
	pad := strings.Repeat(" ", len(marker))
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		switch {
		case i == 0:
			lines[i] = marker + l
		case l != "":
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

func codeBlockText(n *Node) string {
	fc := byte('`')
	if strings.IndexByte(n.Info, '`') >= 0 {
		fc = '~'
	}
	fence := strings.Repeat(string(fc), max(3, longestRun(n.Literal, fc)+1))
	return fence + escapeText(n.Info) + "\n" + n.Literal + fence
}

func tableText(n *Node) string {
	var rows []string
	for _, r := range n.Children {
		rows = append(rows, tableRowText(r))
		if r.Kind != KindTableHeader {
			continue
		}
		delims := make([]string, 0, len(r.Children))
		for _, cell := range r.Children {
			switch cell.Align {
			case "left":
				delims = append(delims, ":---")
			case "right":
				delims = append(delims, "---:")
			case "center":
				delims = append(delims, ":---:")
			default:
				delims = append(delims, "---")
			}
		}
		rows = append(rows, "| "+strings.Join(delims, " | ")+" |")
	}
	return strings.Join(rows, "\n")
}

func tableRowText(r *Node) string {
	cells := make([]string, 0, len(r.Children))
	for _, c := range r.Children {
		cells = append(cells, inlineText(c.Children, true))
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

// maxDelimiterSearch bounds the emphasis runs in one block whose delimiters are
// searched; the search parses up to 2^n candidates.
const maxDelimiterSearch = 10

// inlineVerifier parses candidate inline markup. Text is fully escaped, so any
// construct it enables but a tree lacks cannot appear in the candidate.
var inlineVerifier = sync.OnceValue(func() *Renderer {
	return New(Emphasis | Links | InlineCode | RawHTML | Strikethrough)
})

func inlineText(ns []*Node, inCell bool) string {
	return writeInline(ns, inCell, emphasisDelims(ns))
}

func writeInline(ns []*Node, inCell bool, delims []byte) string {
	w := inlineWriter{inCell: inCell, delims: delims}
	w.nodes(ns, 0)
	return w.b.String()
}

// emphasisDelims picks the delimiter character of every emphasis node, in document
// order, so that the markup parses back to ns. Whether '*' or '_' works depends on
// the flanking characters, which inside CJK text are rarely spaces. nil keeps the
// writer's own choice.
func emphasisDelims(ns []*Node) []byte {
	n := countEmphasis(ns)
	if n == 0 || n > maxDelimiterSearch {
		return nil
	}
	r := inlineVerifier()
	if parsesTo(r, writeInline(ns, false, nil), ns) {
		return nil
	}
	d := make([]byte, n)
	for mask := 0; mask < 1<<n; mask++ {
		for i := range d {
			d[i] = '*'
			if mask&(1<<i) != 0 {
				d[i] = '_'
			}
		}
		if parsesTo(r, writeInline(ns, false, d), ns) {
			return d
		}
	}
	return nil
}

func countEmphasis(ns []*Node) int {
	n := 0
	for _, c := range ns {
		if c.Kind == KindEmphasis || c.Kind == KindStrong {
			n++
		}
		n += countEmphasis(c.Children)
	}
	return n
}

func parsesTo(r *Renderer, src string, want []*Node) bool {
	got := r.Render(src).Children
	if len(got) != 1 || got[0].Kind != KindParagraph {
		return false
	}
	return Equal(&Node{Children: got[0].Children}, &Node{Children: want})
}

type inlineWriter struct {
	b      strings.Builder
	inCell bool
	delims []byte
	next   int
}

// nodes writes siblings. parent is the emphasis delimiter enclosing them, if any;
// emphasis at the edge of an enclosing run, or right after another run, switches
// to the other delimiter character so the runs cannot fuse.
func (w *inlineWriter) nodes(ns []*Node, parent byte) {
	var prev byte
	for i, n := range ns {
		var cur byte
		switch n.Kind {
		case KindText:
			w.b.WriteString(escapeText(n.Literal))
		case KindSoftBreak:
			w.b.WriteByte('\n')
		case KindHardBreak:
			w.b.WriteString("\\\n")
		case KindEmphasis, KindStrong:
			cur = '*'
			edge := i == 0 || i == len(ns)-1
			if (edge && parent == '*') || prev == '*' {
				cur = '_'
			}
			if w.next < len(w.delims) {
				cur = w.delims[w.next]
			}
			w.next++
			delim := string(cur)
			if n.Kind == KindStrong {
				delim += delim
			}
			w.b.WriteString(delim)
			w.nodes(n.Children, cur)
			w.b.WriteString(delim)
		case KindStrikethrough:
			w.b.WriteString("~~")
			w.nodes(n.Children, 0)
			w.b.WriteString("~~")
		case KindLink:
			w.b.WriteByte('[')
			w.nodes(n.Children, 0)
			w.b.WriteString("](<")
			w.b.WriteString(escapeOnly(n.Dest, `\<>`))
			w.b.WriteByte('>')
			if n.Title != "" {
				w.b.WriteString(` "`)
				w.b.WriteString(escapeOnly(n.Title, `\"`))
				w.b.WriteByte('"')
			}
			w.b.WriteByte(')')
		case KindCode:
			w.b.WriteString(w.codeSpan(n.Literal))
		case KindRawHTML:
			w.b.WriteString(n.Literal)
		default:
			w.nodes(n.Children, 0)
		}
		prev = cur
	}
}

func (w *inlineWriter) codeSpan(lit string) string {
	if w.inCell {
		lit = strings.ReplaceAll(lit, "|", `\|`)
	}
	fence := strings.Repeat("`", longestRun(lit, '`')+1)
	pad := strings.HasPrefix(lit, "`") || strings.HasSuffix(lit, "`") ||
		(strings.HasPrefix(lit, " ") && strings.HasSuffix(lit, " ") && strings.Trim(lit, " ") != "")
	if pad {
		return fence + " " + lit + " " + fence
	}
	return fence + lit + fence
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// escapeText backslash-escapes every ASCII punctuation character, which
// CommonMark always reads back as the literal character.
func escapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isASCIIPunct(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func escapeOnly(s, chars string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(chars, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isASCIIPunct(c byte) bool {
	return (c >= '!' && c <= '/') || (c >= ':' && c <= '@') ||
		(c >= '[' && c <= '`') || (c >= '{' && c <= '~')
}
