package drivertest

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTML builds a fake page tree from markup. Scripts, styles and
// comments are dropped; an element's Text is its trimmed, whitespace
// collapsed text content.
func ParseHTML(src string) (*Node, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	body := findElement(doc, "body")
	if body == nil {
		return &Node{Tag: "body"}, nil
	}
	return convertElement(body), nil
}

// MustParseHTML is ParseHTML for fixtures known to be valid.
func MustParseHTML(src string) *Node {
	n, err := ParseHTML(src)
	if err != nil {
		panic(err)
	}
	return n
}

// HTMLLoader returns a Loader serving pages[url], or an empty body for
// unknown URLs. Each navigation gets a freshly parsed tree.
func HTMLLoader(pages map[string]string) Loader {
	return func(url string) *Node {
		src, ok := pages[url]
		if !ok {
			return &Node{Tag: "body"}
		}
		return MustParseHTML(src)
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// isSkippedElement returns true for elements that never reach the tree
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func convertElement(n *html.Node) *Node {
	node := &Node{Tag: strings.ToLower(n.Data)}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id":
			node.ID = attr.Val
		case "class":
			node.Classes = strings.Fields(attr.Val)
		}
		node.SetAttr(attr.Key, attr.Val)
	}

	var text strings.Builder
	collectText(n, &text)
	node.Text = strings.Join(strings.Fields(text.String()), " ")

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isSkippedElement(strings.ToLower(c.Data)) {
			node.Children = append(node.Children, convertElement(c))
		}
	}
	return node
}

func collectText(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			b.WriteByte(' ')
		case html.ElementNode:
			if !isSkippedElement(strings.ToLower(c.Data)) {
				collectText(c, b)
			}
		}
	}
}
