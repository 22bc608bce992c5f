package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/essaypub/internal/essay"
)

// Sentinel brackets the template fragment in the rendered document text.
const Sentinel = "@@@@"

// The fragment stays on one line; carriage returns and the Unicode line and paragraph
// separators end a line too.
var sentinelPattern = regexp.MustCompile(regexp.QuoteMeta(Sentinel) + `([^\n\r\x{2028}\x{2029}]+)` + regexp.QuoteMeta(Sentinel))

// Template returns the text between the first pair of sentinels in the plain-text
// rendering of html. Non-breaking spaces, raw or entity-encoded, read as plain spaces.
// A document without sentinels yields an empty fragment.
func Template(html string) (string, error) {
	normalized := strings.ReplaceAll(html, "\u00a0", " ")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(normalized))
	if err != nil {
		return "", fmt.Errorf("%w: parse template: %w", essay.ErrMalformedDocument, err)
	}
	text := strings.ReplaceAll(doc.Text(), "\u00a0", " ")
	match := sentinelPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return "", nil
	}
	return match[1], nil
}
