package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "essays"})
	require.NoError(t, err)
	return store
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "essays"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "essays", PublicBaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/essays/a-1234abcd.html", store.PublicURL("a-1234abcd.html"))
	assert.Equal(t, "https://cdn.example.com/essays/why-go%3F-a-note-1234abcd.html", store.PublicURL("why-go?-a-note-1234abcd.html"))
}

func TestPutObjectUploadsPublicObject(t *testing.T) {
	t.Parallel()

	const key = "hello-world-1234abcd.html"
	content := []byte("<div><p>Hi</p></div>")

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/essays/o")
		assert.Equal(t, key, r.URL.Query().Get("name"))
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "publicRead", r.URL.Query().Get("predefinedAcl"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(content))
		assert.Contains(t, string(body), "text/html; charset=utf-8")

		fmt.Fprintf(w, `{"bucket":"essays","name":%q}`, key)
	}))

	url, err := store.PutObject(context.Background(), key, "text/html; charset=utf-8", content)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/essays/"+key, url)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.PutObject(context.Background(), "a-1234abcd.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestPutObjectRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "essays", baseURL: DefaultPublicBaseURL}
	_, err := store.PutObject(context.Background(), "", "text/html", nil)
	require.Error(t, err)
}
