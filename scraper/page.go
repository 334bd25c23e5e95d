// Package scraper turns marketplace pages into canonical listing records
// and walks paginated result sets.
package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is one fetched document and the URL it was fetched from. It is read
// only: every accessor may be called any number of times, from any goroutine.
type Page struct {
	URL string
	Doc *goquery.Document

	base *url.URL
}

// NewPage parses HTML read from r.
func NewPage(pageURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("scraper: parse %s: %w", pageURL, err)
	}
	return NewPageFromDocument(pageURL, doc)
}

// NewPageFromDocument wraps an already parsed document.
func NewPageFromDocument(pageURL string, doc *goquery.Document) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("scraper: page url %q: %w", pageURL, err)
	}
	return &Page{URL: pageURL, Doc: doc, base: base}, nil
}

// HTML renders the document back to markup.
func (p *Page) HTML() (string, error) {
	return p.Doc.Html()
}

// FirstText tries each selector in order and returns the own text of the
// first matching element that has any. ok is false when nothing matched.
func (p *Page) FirstText(selectors []string) (text string, ok bool) {
	return firstText(p.Doc.Selection, selectors)
}

// TextFragments returns the trimmed, non-empty descendant text nodes of the
// elements matched by the first selector that yields any.
func (p *Page) TextFragments(selectors []string) []string {
	return textFragments(p.Doc.Selection, selectors)
}

func firstText(root *goquery.Selection, selectors []string) (text string, ok bool) {
	for _, sel := range selectors {
		root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = ownText(s)
			return text == ""
		})
		if text != "" {
			return text, true
		}
	}
	return "", false
}

func textFragments(root *goquery.Selection, selectors []string) []string {
	for _, sel := range selectors {
		var parts []string
		root.Find(sel).Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, textNodes(s)...)
		})
		if len(parts) > 0 {
			return parts
		}
	}
	return nil
}

// Attr returns attribute name of the first element matched by selector
// that carries a non-empty value for it.
func (p *Page) Attr(selector, name string) (value string, ok bool) {
	p.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, has := s.Attr(name)
		value = strings.TrimSpace(v)
		ok = has && value != ""
		return !ok
	})
	if !ok {
		return "", false
	}
	return value, true
}

// Links returns the absolute href of every element matched by selector,
// in document order.
func (p *Page) Links(selector string) []string {
	var links []string
	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if abs, ok := p.Resolve(href); ok {
			links = append(links, abs)
		}
	})
	return links
}

// Resolve makes ref absolute against the page URL.
func (p *Page) Resolve(ref string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	return p.base.ResolveReference(u).String(), true
}

// PageNumber reads the result-page number from the URL query parameter
// param. ok is false when the parameter is absent or not a number.
func (p *Page) PageNumber(param string) (int, bool) {
	return pageNumber(p.base, param)
}

func pageNumber(u *url.URL, param string) (int, bool) {
	raw := u.Query().Get(param)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// withPageNumber returns rawURL with param set to n.
func withPageNumber(rawURL, param string, n int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ownText joins the element's direct text children, ignoring descendants.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

// textNodes returns every trimmed, non-empty text node below s.
func textNodes(s *goquery.Selection) []string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return parts
}
