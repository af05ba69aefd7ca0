package tool

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the text extracted from an HTML document.
type Page struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text"`
	Headings []string `json:"headings,omitempty"`
	Links    []string `json:"links,omitempty"`
}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

var headingElements = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// ExtractPage parses r as HTML. Relative links are resolved against base
// when it is non-nil. Duplicate links are dropped.
func ExtractPage(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	seen := map[string]bool{}

	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && page.Title == "" {
				page.Title = collapseSpace(nodeText(n))
				return
			}
			if skippedElements[n.DataAtom] {
				return
			}
			if headingElements[n.DataAtom] {
				if h := collapseSpace(nodeText(n)); h != "" {
					page.Headings = append(page.Headings, h)
				}
			}
			if n.DataAtom == atom.A {
				if href := attr(n, "href"); href != "" {
					if link := resolveLink(base, href); link != "" && !seen[link] {
						seen[link] = true
						page.Links = append(page.Links, link)
					}
				}
			}
			if blockElements[n.DataAtom] {
				sb.WriteByte('\n')
			}
		}

		if n.Type == html.TextNode {
			if t := collapseSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Text = tidyLines(sb.String())

	return page, nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
