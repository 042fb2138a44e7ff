// Package ui reflects the authentication state into the console's HTML shell.
package ui

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/raine/console-session/internal/session"
	"golang.org/x/net/html"
)

// Audience classes and the placeholder attribute the shell is tagged with.
const (
	ClassAuthOnly  = "auth-only"
	ClassGuestOnly = "guest-only"
	ClassAdminOnly = "admin-only"
	AttrUserField  = "data-user-field"
)

//go:embed shell.html
var shellHTML []byte

// Document is a parsed HTML page.
type Document struct {
	root *html.Node
}

// ParseDocument parses an HTML page.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ShellDocument returns a fresh copy of the built-in console shell.
func ShellDocument() *Document {
	doc, err := ParseDocument(bytes.NewReader(shellHTML))
	if err != nil {
		panic(err)
	}
	return doc
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// Project shows and hides the audience-tagged elements of doc and fills the
// user placeholders. It depends only on its arguments.
func Project(doc *Document, authenticated bool, user *session.UserRecord) {
	if !authenticated {
		user = nil
	}
	isAdmin := authenticated && user != nil && user.IsAdmin

	walk(doc.root, func(n *html.Node) {
		classes := strings.Fields(attr(n, "class"))
		visible, tagged := true, false
		for _, class := range classes {
			switch class {
			case ClassAuthOnly:
				tagged = true
				visible = visible && authenticated
			case ClassGuestOnly:
				tagged = true
				visible = visible && !authenticated
			case ClassAdminOnly:
				tagged = true
				visible = visible && isAdmin
			}
		}
		if tagged {
			setHidden(n, !visible)
		}

		if field, ok := lookupAttr(n, AttrUserField); ok {
			setText(n, user.Field(field))
		}
	})
}

// Projector owns one document and re-projects it on every credential change.
// Its Project method has the session.ChangeFunc signature.
type Projector struct {
	mu  sync.Mutex
	doc *Document
}

func NewProjector(doc *Document) *Projector {
	return &Projector{doc: doc}
}

func (p *Projector) Project(authenticated bool, user *session.UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	Project(p.doc, authenticated, user)
}

func (p *Projector) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Render(w)
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setHidden(n *html.Node, hidden bool) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != "hidden" {
			attrs = append(attrs, a)
		}
	}
	if hidden {
		attrs = append(attrs, html.Attribute{Key: "hidden"})
	}
	n.Attr = attrs
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Visible reports whether the first element carrying id is not hidden.
// Intended for tests and diagnostics.
func (d *Document) Visible(id string) (visible bool, found bool) {
	walk(d.root, func(n *html.Node) {
		if found {
			return
		}
		if attr(n, "id") == id {
			found = true
			_, hidden := lookupAttr(n, "hidden")
			visible = !hidden
		}
	})
	return visible, found
}

// Text returns the text content of the first element carrying id.
func (d *Document) Text(id string) string {
	var sb strings.Builder
	var found bool
	walk(d.root, func(n *html.Node) {
		if found || attr(n, "id") != id {
			return
		}
		found = true
		collectText(n, &sb)
	})
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
