package essay

import (
	"net/http"
	"time"
)

// Target names which of the two source documents a fetch is for.
type Target string

// Fetch targets used in logs and metric labels.
const (
	TargetTemplate Target = "template"
	TargetEssay    Target = "essay"
)

// Placeholder tokens replaced inside the template fragment.
const (
	HTMLPlaceholder  = "HTML_GOES_HERE"
	TitlePlaceholder = "TITLE_GOES_HERE"
)

// DefaultContentType is the content type stored alongside published artifacts.
const DefaultContentType = "text/html; charset=utf-8"

// Essay is the structured content pulled out of an essay document.
type Essay struct {
	Title     string `json:"title"`
	HTML      string `json:"html"`
	Slug      string `json:"slug"`
	SourceURL string `json:"source_url,omitempty"`
}

// Artifact is the merged document ready for upload.
type Artifact struct {
	Content   []byte
	Hash      string
	ShortHash string
	Key       string
}

// FetchRequest captures everything needed to fetch one source document.
type FetchRequest struct {
	URL     string
	Target  Target
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// Published is the notification payload announced after a successful upload.
type Published struct {
	RunID       string    `json:"run_id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Hash        string    `json:"hash"`
	Bytes       int       `json:"bytes"`
	PublishedAt time.Time `json:"published_at"`
}
