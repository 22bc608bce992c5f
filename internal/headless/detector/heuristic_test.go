package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/essaypub/internal/essay"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(essay.FetchResponse{StatusCode: 200, Body: []byte("  \n")}))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := essay.FetchResponse{StatusCode: 200, Body: []byte(`<div id="__next"></div>`)}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := essay.FetchResponse{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_StaticEssay(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	require.Equal(t, DefaultBodyLengthThreshold, h.BodyLengthThreshold)
	resp := essay.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><head><title>Hello World</title></head><body><p>Hi</p></body></html>`),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(essay.FetchResponse{StatusCode: 404, Body: []byte("not found")}))
}

func TestScriptDensityUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh([]byte(`<p>x</p><script src="a.js"`)))
	require.False(t, scriptDensityHigh([]byte(`<p>plain text only</p>`)))
}
