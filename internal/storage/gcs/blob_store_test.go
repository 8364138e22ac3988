package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testBucket = "feed-archive"

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	bodies := make(chan string, 1)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, fmt.Sprintf("/b/%s/o", testBucket)) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		_, _ = fmt.Fprintf(w, `{"name":%q,"bucket":%q}`, r.URL.Query().Get("name"), testBucket)
	}))

	store, err := New(client, Config{Bucket: testBucket})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "raw/youtube/2024-09-10/abc.json", "application/json",
		strings.NewReader(`[{"title":"x"}]`))
	require.NoError(t, err)
	require.Equal(t, "gs://feed-archive/raw/youtube/2024-09-10/abc.json", uri)
	require.Contains(t, <-bodies, `[{"title":"x"}]`)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	store, err := New(client, Config{Bucket: testBucket})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "raw/x.json", "", strings.NewReader("{}"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: testBucket})
	require.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/"+testBucket) {
			_, _ = fmt.Fprintf(w, `{"name":%q}`, testBucket)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	opts := []option.ClientOption{option.WithEndpoint(srv.URL), option.WithoutAuthentication()}

	store, closeFn, err := Open(context.Background(), Config{Bucket: testBucket}, opts...)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, closeFn())

	_, _, err = Open(context.Background(), Config{Bucket: "missing"}, opts...)
	require.Error(t, err)
}
