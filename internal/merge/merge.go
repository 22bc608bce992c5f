// Package merge interpolates an extracted essay into a template fragment and names the result.
package merge

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/essaypub/internal/essay"
	"github.com/JakeFAU/essaypub/internal/hash/sha256"
)

// Merge substitutes the essay body and title into the first occurrence of their
// placeholders and derives the content-addressed storage key. It performs no I/O.
func Merge(template string, e essay.Essay, hasher essay.Hasher) (essay.Artifact, error) {
	if hasher == nil {
		hasher = sha256.New()
	}
	content := strings.Replace(template, essay.HTMLPlaceholder, e.HTML, 1)
	content = strings.Replace(content, essay.TitlePlaceholder, e.Title, 1)

	data := []byte(content)
	digest, err := hasher.Hash(data)
	if err != nil {
		return essay.Artifact{}, fmt.Errorf("hash artifact: %w", err)
	}
	short := sha256.Short(digest)
	return essay.Artifact{
		Content:   data,
		Hash:      digest,
		ShortHash: short,
		Key:       Key(e.Slug, short),
	}, nil
}

// Key composes the storage key for a slug and short hash.
func Key(slug, shortHash string) string {
	return fmt.Sprintf("%s-%s.html", slug, shortHash)
}
