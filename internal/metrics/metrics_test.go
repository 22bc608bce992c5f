package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveFetchAttempt("essay", "https://docs.google.com/document/d/x/pub", OutcomeFailure)
	r.ObserveFetchAttempt("essay", "https://docs.google.com/document/d/x/pub", OutcomeSuccess)
	r.ObserveFetchDuration("essay", 150*time.Millisecond)
	r.ObservePublishAttempt("s3", OutcomeSuccess)
	r.ObserveNotification(OutcomeFailure)
	r.ObserveRun(OutcomeSuccess, time.Second)
	r.ObserveArtifact(2048)
	r.ObserveEmptyTemplate()

	require.Equal(t, 1.0, testutil.ToFloat64(r.fetchAttemptsTotal.WithLabelValues("essay", "docs.google.com", OutcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.fetchAttemptsTotal.WithLabelValues("essay", "docs.google.com", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.publishAttemptsTotal.WithLabelValues("s3", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.notificationsTotal.WithLabelValues(OutcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues(OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(r.templateFragmentsEmpty))

	count, err := testutil.GatherAndCount(r.Registry(), "essaypub_artifact_bytes", "essaypub_fetch_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ObserveFetchAttempt("essay", "https://example.com", OutcomeSuccess)
	r.ObserveFetchDuration("essay", time.Second)
	r.ObservePublishAttempt("memory", OutcomeSuccess)
	r.ObserveNotification(OutcomeSuccess)
	r.ObserveRun(OutcomeSuccess, time.Second)
	r.ObserveArtifact(1)
	r.ObserveEmptyTemplate()
	r.ObserveRateLimitDelay("example.com", time.Second)
	require.Nil(t, r.Registry())
	require.NoError(t, r.Push(context.Background(), "http://unused", "job"))
}

func TestPushSendsToGateway(t *testing.T) {
	t.Parallel()

	var (
		gotPath atomic.Value
		gotBody atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		gotPath.Store(req.Method + " " + req.URL.Path)
		gotBody.Store(len(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveRun(OutcomeSuccess, time.Second)
	require.NoError(t, r.Push(context.Background(), srv.URL, "essaypub"))
	require.Equal(t, "PUT /metrics/job/essaypub", gotPath.Load())
	require.Greater(t, gotBody.Load().(int), 0)
}

func TestPushSurfacesGatewayErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "essaypub")
	require.ErrorContains(t, err, "push metrics")
}

func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
