package gcs

import (
	"bytes"
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

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "logo-bucket"})
	require.NoError(t, err)
	return store
}

func TestBlobStorePutObject(t *testing.T) {
	objectName := "logos/acme-0123456789ab.png"
	objectData := []byte("png-bytes")

	// Simulates the GCS JSON API for multipart uploads.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/logo-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(objectData))
		assert.Contains(t, string(body), objectName)
		assert.Contains(t, string(body), DefaultCacheControl)

		fmt.Fprintln(w, `{"name":"`+objectName+`","bucket":"logo-bucket"}`)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), "/"+objectName, "image/png", bytes.NewReader(objectData))
	require.NoError(t, err)
	assert.Equal(t, "gs://logo-bucket/"+objectName, uri)
}

func TestBlobStorePutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := newTestStore(t, handler)
	_, err := store.PutObject(context.Background(), "logos/a.png", "image/png", bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}

func TestBlobStoreValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	store := newTestStore(t, http.NotFoundHandler())
	_, err = store.PutObject(context.Background(), "  ", "image/png", bytes.NewReader(nil))
	assert.Error(t, err)
	assert.Equal(t, "https://storage.googleapis.com/logo-bucket/logos/a.png", store.PublicURL("/logos/a.png"))
}
