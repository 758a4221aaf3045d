package sources

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	tagRe   = regexp.MustCompile(`<[^>]*>`)
)

// cleanMarkup strips the JATS/HTML markup some upstreams embed in titles
// and abstracts (Crossref abstracts arrive as JATS XML, PubMed titles may
// carry inline tags) and collapses whitespace.
func cleanMarkup(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			s = doc.Text()
		} else {
			s = tagRe.ReplaceAllString(s, " ")
		}
	}
	s = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
