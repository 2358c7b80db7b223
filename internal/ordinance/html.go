package ordinance

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/civiclab/ordinance-api/internal/xerrors"
)

var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"iframe":   true,
	"svg":      true,
}

var headingElements = map[string]bool{
	"h1": true,
	"h2": true,
	"h3": true,
	"h4": true,
}

// FromHTML parses a rendered Municode page into a Section. It returns an
// error only when the markup cannot be parsed at all; placeholder pages
// parse fine and are detected by the caller via IsPlaceholder.
func FromHTML(raw []byte, pageURL string) (*Section, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, xerrors.Wrap(err, "parse html")
	}

	var (
		title    string
		headings []string
		text     strings.Builder
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if n.Data == "title" && title == "" {
				title = collapseSpace(nodeText(n))
			}
			if headingElements[n.Data] {
				if h := collapseSpace(nodeText(n)); h != "" {
					headings = append(headings, h)
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	body := collapseSpace(text.String())
	if title == "" && len(headings) > 0 {
		title = headings[0]
	}

	return &Section{
		SectionNumber: findSectionNumber(headings, body),
		Title:         title,
		URL:           pageURL,
		Snippet:       makeSnippet(body),
		Text:          body,
		Headings:      headings,
	}, nil
}

// nodeText concatenates all text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// FindDocxLink returns the first .docx anchor in the page, resolved
// against base. Empty string when the page links no Word export.
func FindDocxLink(raw []byte, base string) string {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				ref, err := url.Parse(a.Val)
				if err != nil {
					continue
				}
				abs := baseURL.ResolveReference(ref)
				if strings.HasSuffix(strings.ToLower(abs.Path), ".docx") {
					found = abs.String()
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}
