package jira

import (
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxDescriptionRunes = 500

// plainText turns a project description into one line of text. Server instances often store
// descriptions as HTML; anything that does not parse is returned with whitespace collapsed.
func plainText(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "<") {
		nodes, err := xhtml.ParseFragment(strings.NewReader(s), &xhtml.Node{Type: xhtml.ElementNode, DataAtom: atom.Div, Data: "div"})
		if err == nil {
			var sb strings.Builder
			for _, n := range nodes {
				collectText(&sb, n)
			}
			s = sb.String()
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes > 0 {
		if r := []rune(s); len(r) > maxRunes {
			s = strings.TrimSpace(string(r[:maxRunes]))
		}
	}
	return s
}

func collectText(sb *strings.Builder, n *xhtml.Node) {
	switch n.Type {
	case xhtml.TextNode:
		sb.WriteString(n.Data)
		return
	case xhtml.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(sb, c)
	}
	if n.Type == xhtml.ElementNode && !inlineAtoms[n.DataAtom] {
		// Keep words from adjacent block elements apart.
		sb.WriteByte(' ')
	}
}

var inlineAtoms = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.I: true, atom.U: true, atom.Em: true, atom.Strong: true,
	atom.Span: true, atom.Code: true, atom.Small: true, atom.Sub: true, atom.Sup: true,
}
