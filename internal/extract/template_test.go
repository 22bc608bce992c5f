package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateExtractsFragment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "escaped markup between sentinels",
			html: `<html><head><title>Template</title></head><body>` +
				`<p>intro</p><p>@@@@&lt;div&gt;HTML_GOES_HERE&lt;/div&gt;@@@@</p></body></html>`,
			want: "<div>HTML_GOES_HERE</div>",
		},
		{
			name: "fragment split across paragraphs",
			html: `<body><p>@@@@&lt;h1&gt;TITLE_GOES_HERE&lt;/h1&gt;</p><p>&lt;main&gt;HTML_GOES_HERE&lt;/main&gt;@@@@</p></body>`,
			want: "<h1>TITLE_GOES_HERE</h1><main>HTML_GOES_HERE</main>",
		},
		{
			name: "raw non-breaking space",
			html: "<body><p>@@@@<span>a\u00a0b</span>@@@@</p></body>",
			want: "a b",
		},
		{
			name: "entity non-breaking space",
			html: "<body><p>@@@@a&nbsp;b@@@@</p></body>",
			want: "a b",
		},
		{
			name: "no sentinel",
			html: `<html><body><p>just an ordinary document</p></body></html>`,
			want: "",
		},
		{
			name: "single sentinel",
			html: `<body><p>@@@@ unterminated</p></body>`,
			want: "",
		},
		{
			name: "sentinels on different lines",
			html: "<body><p>@@@@first</p>\n<p>second@@@@</p></body>",
			want: "",
		},
		{
			name: "sentinels split by line separator",
			html: "<body><p>@@@@first\u2028second@@@@</p></body>",
			want: "",
		},
		{
			name: "sentinels split by paragraph separator",
			html: "<body><p>@@@@first\u2029second@@@@</p></body>",
			want: "",
		},
		{
			name: "sentinels split by carriage return",
			html: "<body><p>@@@@first\rsecond@@@@</p></body>",
			want: "",
		},
		{
			name: "separator before a complete fragment",
			html: "<body><p>@@@@stray\u2028@@@@kept@@@@</p></body>",
			want: "kept",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Template(tt.html)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
