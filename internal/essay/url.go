package essay

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	editSegment      = "/edit"
	publishedSegment = "/pub"
)

// NormalizeEssayURL rewrites a document edit URL into its published-view form.
// "https://docs.google.com/document/d/ID/edit?usp=sharing" becomes
// "https://docs.google.com/document/d/ID/pub". URLs without a trailing edit segment are
// returned unchanged apart from surrounding whitespace.
func NormalizeEssayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: essay url is empty", ErrUsage)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse essay url %q: %w", ErrUsage, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: essay url %q must be http or https", ErrUsage, raw)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, editSegment) {
		return raw, nil
	}
	u.Path = strings.TrimSuffix(path, editSegment) + publishedSegment
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
