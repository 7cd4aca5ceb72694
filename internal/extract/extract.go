// Package extract provides defensive lookups over parsed tracking pages.
//
// Absence is a normal outcome for Find and FindAll. Text is where a missing or
// malformed node turns into one of the typed element errors below.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	// ErrMissingElement is returned when text is requested from an absent node.
	ErrMissingElement = errors.New("missing element")
	// ErrInvalidElementType is returned when a match is not an element node.
	ErrInvalidElementType = errors.New("invalid element type")
	// ErrNoTextInElement is returned when an element has no direct text child.
	ErrNoTextInElement = errors.New("no text in element")
)

// ElementError ties one of the element error kinds to the selector or path
// that produced it.
type ElementError struct {
	Kind     error
	Selector string
}

func (e *ElementError) Error() string {
	if e.Selector == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Selector)
}

func (e *ElementError) Unwrap() error {
	return e.Kind
}

// Missing reports an absent field at path. JSON decoders use it so payload
// gaps surface the same way as missing markup.
func Missing(path string) error {
	return &ElementError{Kind: ErrMissingElement, Selector: path}
}

// TextMode selects how Text reads a node.
type TextMode int

const (
	// FullText concatenates all descendant text.
	FullText TextMode = iota
	// DirectText returns only the first text run that is a direct child.
	DirectText
)

// Document is a parsed markup tree.
type Document struct {
	doc *goquery.Document
}

// Node is a single matched node. A nil *Node means "absent".
type Node struct {
	sel      *goquery.Selection
	selector string
}

// Parse reads a markup document.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses markup held in memory.
func ParseString(content string) (*Document, error) {
	return Parse(strings.NewReader(content))
}

// Wrap exposes an existing goquery selection as a Node. Only the first node
// of the selection is used.
func Wrap(sel *goquery.Selection, selector string) *Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return &Node{sel: sel.First(), selector: selector}
}

// Find returns the first node matching selector inside container, or the
// document root when container is nil. A nil node with a nil error means
// nothing matched.
func (d *Document) Find(container *Node, selector string) (*Node, error) {
	scope, err := d.scope(container)
	if err != nil {
		return nil, err
	}

	match := scope.Find(selector).First()
	if match.Length() == 0 {
		return nil, nil
	}
	if !isElement(match) {
		return nil, &ElementError{Kind: ErrInvalidElementType, Selector: selector}
	}
	return &Node{sel: match, selector: selector}, nil
}

// FindAll returns every element matching selector inside container in
// document order.
func (d *Document) FindAll(container *Node, selector string) ([]*Node, error) {
	scope, err := d.scope(container)
	if err != nil {
		return nil, err
	}

	var nodes []*Node
	var typeErr error
	scope.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isElement(s) {
			typeErr = &ElementError{Kind: ErrInvalidElementType, Selector: selector}
			return false
		}
		nodes = append(nodes, &Node{sel: s, selector: selector})
		return true
	})
	if typeErr != nil {
		return nil, typeErr
	}
	return nodes, nil
}

func (d *Document) scope(container *Node) (*goquery.Selection, error) {
	if container == nil {
		return d.doc.Selection, nil
	}
	if !isElement(container.sel) {
		return nil, &ElementError{Kind: ErrInvalidElementType, Selector: container.selector}
	}
	return container.sel, nil
}

// Text reads the text of node according to mode.
func Text(node *Node, mode TextMode) (string, error) {
	if node == nil {
		return "", &ElementError{Kind: ErrMissingElement}
	}
	if !isElement(node.sel) {
		return "", &ElementError{Kind: ErrInvalidElementType, Selector: node.selector}
	}

	if mode == FullText {
		return node.sel.Text(), nil
	}

	for c := node.sel.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return c.Data, nil
		}
	}
	return "", &ElementError{Kind: ErrNoTextInElement, Selector: node.selector}
}

// RequireText finds selector inside container and reads its text. Every
// failure names the selector.
func (d *Document) RequireText(container *Node, selector string, mode TextMode) (string, error) {
	node, err := d.Find(container, selector)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", &ElementError{Kind: ErrMissingElement, Selector: selector}
	}
	return Text(node, mode)
}

// HasClass reports whether node carries class.
func (n *Node) HasClass(class string) bool {
	if n == nil {
		return false
	}
	return n.sel.HasClass(class)
}

func isElement(sel *goquery.Selection) bool {
	if sel == nil || sel.Length() == 0 {
		return false
	}
	return sel.Get(0).Type == html.ElementNode
}
