package extractor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pageMeta is what the HTML parser recovers from a fetched document.
type pageMeta struct {
	Title       string
	Description string
	SiteName    string
	Text        string
	// VideoURLs lists embedded video references (og:video and iframe
	// embeds), in document order.
	VideoURLs []string
}

// parseHTML extracts article-ish text and metadata from a document.
func parseHTML(body []byte) (*pageMeta, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	meta := &pageMeta{}
	collectMeta(doc, meta)

	// Prefer a semantic article container; fall back to body text.
	root := findFirst(doc, atom.Article)
	if root == nil {
		root = findFirst(doc, atom.Main)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root != nil {
		var sb strings.Builder
		collectText(root, &sb)
		meta.Text = normalizeWhitespace(sb.String())
	}
	return meta, nil
}

func collectMeta(n *html.Node, meta *pageMeta) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if meta.Title == "" && n.FirstChild != nil {
				meta.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case atom.Meta:
			name := attr(n, "name")
			property := attr(n, "property")
			content := attr(n, "content")
			switch {
			case property == "og:title" && meta.Title == "":
				meta.Title = content
			case (name == "description" || property == "og:description") && meta.Description == "":
				meta.Description = content
			case property == "og:site_name" && meta.SiteName == "":
				meta.SiteName = content
			case (property == "og:video" || property == "og:video:url" || property == "og:video:secure_url") && content != "":
				meta.VideoURLs = append(meta.VideoURLs, content)
			}
		case atom.Iframe:
			if src := attr(n, "src"); src != "" && looksLikeVideoEmbed(src) {
				meta.VideoURLs = append(meta.VideoURLs, src)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectMeta(c, meta)
	}
}

func looksLikeVideoEmbed(src string) bool {
	lower := strings.ToLower(src)
	return strings.Contains(lower, "youtube.com/embed/") ||
		strings.Contains(lower, "youtube-nocookie.com/embed/") ||
		strings.Contains(lower, "player.vimeo.com/")
}

// Elements whose text never contributes to the article body.
var skipElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Form: true, atom.Button: true, atom.Iframe: true,
	atom.Svg: true, atom.Template: true,
}

// Block-level elements that imply a line break around their text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Blockquote: true, atom.Pre: true, atom.Br: true,
	atom.Tr: true, atom.Td: true, atom.Th: true,
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	isBlock := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if isBlock {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if isBlock {
		sb.WriteString("\n")
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// normalizeWhitespace collapses horizontal whitespace within lines and runs
// of blank lines between them.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, strings.Join(fields, " "))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
