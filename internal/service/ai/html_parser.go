package ai

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLToText converts HTML content to plain text.
// It extracts text content while preserving paragraph structure.
func HTMLToText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// Fallback: return content as-is if parsing fails
		return content
	}

	var buf strings.Builder
	extractText(doc, &buf)
	return strings.TrimSpace(buf.String())
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "blockquote", "section", "article", "pre":
		return true
	}
	return false
}

func extractText(n *html.Node, buf *strings.Builder) {
	if n == nil {
		return
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head", "meta", "link", "iframe", "svg":
			return
		case "br":
			buf.WriteString("\n")
			return
		}
		if isBlock(n.Data) && buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
			buf.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
				buf.WriteString(" ")
			}
			buf.WriteString(text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, buf)
	}

	if n.Type == html.ElementNode && isBlock(n.Data) && !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteString("\n")
	}
}
