package epub

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// extractText parses one content document and returns its body text.
// Valid UTF-8 is taken as is; anything else goes through charset sniffing.
func extractText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src, err = charset.NewReader(src, "application/xhtml+xml")
		if err != nil {
			return "", fmt.Errorf("detect charset: %w", err)
		}
	}
	doc, err := html.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	var fragments []string
	harvest(doc, &fragments)
	return strings.Join(fragments, "\n"), nil
}

// harvest walks n in document order and appends every kept fragment,
// newline terminated. A kept element's subtree is not revisited.
func harvest(n *html.Node, out *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		harvestNode(c, out)
	}
}

func harvestNode(n *html.Node, out *[]string) {
	if n.Type != html.ElementNode {
		return
	}
	tag := strings.ToLower(n.Data)
	if strippedTags[tag] {
		return
	}
	if !isCandidateTag(tag) {
		harvest(n, out)
		return
	}

	class, _ := attr(n, "class")
	if containerTags[tag] && hasBlockCandidate(n) {
		harvestMixed(n, tag, class, out)
		return
	}

	text := nodeText(n)
	if Classify(Candidate{Tag: tag, Class: class, Text: text}).Kept() {
		*out = append(*out, text+"\n")
	}
}

// harvestMixed handles a container that holds block candidates. Its loose
// text runs between blocks are judged as the container itself, while each
// block child is judged on its own tag and class, so a denied wrapper only
// rejects its own text.
func harvestMixed(n *html.Node, tag, class string, out *[]string) {
	var run strings.Builder
	flush := func() {
		text := strings.Join(strings.Fields(run.String()), " ")
		run.Reset()
		if Classify(Candidate{Tag: tag, Class: class, Text: text}).Kept() {
			*out = append(*out, text+"\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isBlock(c) {
			flush()
			harvestNode(c, out)
			continue
		}
		writeText(&run, c)
	}
	flush()
}

// isBlock reports whether n starts a new fragment inside a container.
func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	tag := strings.ToLower(n.Data)
	if strippedTags[tag] {
		return false
	}
	return tag == "p" || tag == "div" || headingTags[tag] || hasBlockCandidate(n)
}

func hasBlockCandidate(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(c.Data)
		if strippedTags[tag] {
			continue
		}
		if tag == "p" || tag == "div" || headingTags[tag] {
			return true
		}
		if hasBlockCandidate(c) {
			return true
		}
	}
	return false
}

// nodeText concatenates the text beneath n, skipping stripped elements, and
// collapses runs of whitespace into single spaces.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	writeText(&sb, n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if strippedTags[strings.ToLower(n.Data)] {
			return
		}
		if n.DataAtom == atom.Br {
			sb.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var ret []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			ret = append(ret, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return ret
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
