package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/essaypub/internal/essay"
)

func TestEssayExtractsTitleBodyAndSlug(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Hello World</title><script>var head = 1;</script></head><body>` +
		`<div id="header"><p>nav</p></div>` +
		`<p>Hi <a href="https://example.com/a">link</a></p>` +
		`<script type="text/javascript">alert(1)</script>` +
		`<div id="footer"><p>foot</p></div>` +
		`</body></html>`

	got, err := Essay(html, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "Hello World", got.Title)
	require.Equal(t, "hello-world", got.Slug)
	require.Equal(t, `<p>Hi <a href="https://example.com/a" target="_blank">link</a></p>`, got.HTML)
}

func TestEssayForcesEveryAnchorToNewContext(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Links</title></head><body>` +
		`<a>bare</a><a href="/x" target="_self">self</a></body></html>`

	got, err := Essay(html, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, `<a target="_blank">bare</a><a href="/x" target="_blank">self</a>`, got.HTML)
}

func TestEssayRemovesNestedContainersWhole(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Nested</title></head><body>` +
		`<div id="header"><div>inner</div><p>still header</p></div>` +
		`<p>Body</p></body></html>`

	got, err := Essay(html, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, `<p>Body</p>`, got.HTML)
}

func TestEssayRemovesOnlyFirstContainer(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Twice</title></head><body>` +
		`<div id="footer">one</div><p>Body</p><div id="footer">two</div></body></html>`

	got, err := Essay(html, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, `<p>Body</p><div id="footer">two</div>`, got.HTML)
}

func TestEssayCustomContainerIDs(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Custom</title></head><body>` +
		`<div id="header">kept</div><nav id="banner">gone</nav><p>Body</p></body></html>`

	got, err := Essay(html, Options{HeaderID: "banner"})
	require.NoError(t, err)
	require.Equal(t, `<div id="header">kept</div><p>Body</p>`, got.HTML)
}

func TestEssayMalformedDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
	}{
		{name: "missing title", html: `<html><body><p>x</p></body></html>`},
		{name: "blank title", html: `<html><head><title>  </title></head><body><p>x</p></body></html>`},
		{name: "empty body", html: `<html><head><title>T</title></head><body></body></html>`},
		{name: "whitespace body", html: "<html><head><title>T</title></head><body>  \n </body></html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Essay(tt.html, DefaultOptions())
			require.ErrorIs(t, err, essay.ErrMalformedDocument)
		})
	}
}
