package extract

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// Slug lowercases title and replaces every whitespace run with a single hyphen.
func Slug(title string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(title), "-")
}
