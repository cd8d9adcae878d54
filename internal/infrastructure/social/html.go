package social

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText flattens a status HTML fragment: paragraphs and line breaks become spaces,
// entities are decoded and whitespace is collapsed.
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		p.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}
