package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/essaypub/internal/essay"
)

// Default container ids stripped from the essay body.
const (
	DefaultHeaderID = "header"
	DefaultFooterID = "footer"
)

// Options controls which containers are stripped from the essay body.
type Options struct {
	HeaderID string
	FooterID string
}

// DefaultOptions returns the ids used by published documents.
func DefaultOptions() Options {
	return Options{HeaderID: DefaultHeaderID, FooterID: DefaultFooterID}
}

// Essay extracts the title, cleaned body markup, and slug from an essay document.
// A document without a title or with an empty body is malformed.
func Essay(html string, opts Options) (essay.Essay, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return essay.Essay{}, fmt.Errorf("%w: parse essay: %w", essay.ErrMalformedDocument, err)
	}

	titleSel := doc.Find("title").First()
	if titleSel.Length() == 0 {
		return essay.Essay{}, fmt.Errorf("%w: missing <title> element", essay.ErrMalformedDocument)
	}
	title := titleSel.Text()
	if strings.TrimSpace(title) == "" {
		return essay.Essay{}, fmt.Errorf("%w: empty <title> element", essay.ErrMalformedDocument)
	}

	// The parser always synthesizes <body>, so an absent body shows up as an empty one.
	body := doc.Find("body").First()
	if body.Length() == 0 || (body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "") {
		return essay.Essay{}, fmt.Errorf("%w: missing or empty <body> element", essay.ErrMalformedDocument)
	}

	body.Find("a").SetAttr("target", "_blank")
	body.Find("script").Remove()
	removeFirstByID(body, opts.HeaderID)
	removeFirstByID(body, opts.FooterID)

	markup, err := body.Html()
	if err != nil {
		return essay.Essay{}, fmt.Errorf("%w: render body: %w", essay.ErrMalformedDocument, err)
	}

	return essay.Essay{
		Title: title,
		HTML:  markup,
		Slug:  Slug(title),
	}, nil
}

func removeFirstByID(root *goquery.Selection, id string) {
	if id == "" {
		return
	}
	root.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		got, _ := s.Attr("id")
		return got == id
	}).First().Remove()
}
