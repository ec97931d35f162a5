package editor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Li:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Tr:         true,
	atom.Table:      true,
	atom.Section:    true,
	atom.Article:    true,
}

var hiddenElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

// visibleText flattens markup into the plain text a reader would see:
// whitespace collapsed, block elements separated by blank lines, <br> as a
// newline.
func visibleText(markup string) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var out plainText
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			out.text(n.Data)
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if hiddenElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				out.lineBreak()
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			out.paragraph()
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if block {
			out.paragraph()
		}
	}
	walk(root)

	return strings.TrimSpace(string(out.buf)), nil
}

type plainText struct {
	buf []byte
}

func (p *plainText) last() byte {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1]
}

func (p *plainText) text(s string) {
	for _, r := range s {
		if unicode.IsSpace(r) {
			if last := p.last(); last == 0 || last == ' ' || last == '\n' {
				continue
			}
			p.buf = append(p.buf, ' ')
			continue
		}
		p.buf = utf8.AppendRune(p.buf, r)
	}
}

func (p *plainText) trimSpace() {
	for p.last() == ' ' {
		p.buf = p.buf[:len(p.buf)-1]
	}
}

func (p *plainText) lineBreak() {
	p.trimSpace()
	p.buf = append(p.buf, '\n')
}

func (p *plainText) paragraph() {
	p.trimSpace()
	switch {
	case len(p.buf) == 0, bytes.HasSuffix(p.buf, []byte("\n\n")):
	case p.last() == '\n':
		p.buf = append(p.buf, '\n')
	default:
		p.buf = append(p.buf, '\n', '\n')
	}
}
