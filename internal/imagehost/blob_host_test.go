package imagehost

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func pngImage() backfill.Image {
	return backfill.Image{Body: []byte{0x89, 'P', 'N', 'G'}, ContentType: "image/png"}
}

func TestBlobHostUploadReturnsPublicURL(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	host, err := NewBlobHost(store, Config{PublicBaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)

	img := pngImage()
	url, err := host.Upload(context.Background(), img, "acme.com")
	require.NoError(t, err)

	path := host.ObjectPath(img, "acme.com")
	require.Regexp(t, `^logos/acme\.com-[0-9a-f]{12}\.png$`, path)
	require.Equal(t, "https://cdn.example.com/"+path, url)

	body, contentType, ok := store.Get(path)
	require.True(t, ok)
	require.Equal(t, img.Body, body)
	require.Equal(t, "image/png", contentType)
}

func TestBlobHostUploadWithoutPublicBaseReturnsStoreURI(t *testing.T) {
	t.Parallel()

	host, err := NewBlobHost(memory.NewBlobStore(), Config{Prefix: "/brand/"})
	require.NoError(t, err)

	url, err := host.Upload(context.Background(), pngImage(), "Acme Corp")
	require.NoError(t, err)
	require.Regexp(t, `^memory://brand/acme-corp-[0-9a-f]{12}\.png$`, url)
}

func TestBlobHostSameBodySamePath(t *testing.T) {
	t.Parallel()

	host, err := NewBlobHost(memory.NewBlobStore(), Config{})
	require.NoError(t, err)
	require.Equal(t, host.ObjectPath(pngImage(), "a.com"), host.ObjectPath(pngImage(), "a.com"))

	other := pngImage()
	other.Body = append(other.Body, 0x00)
	require.NotEqual(t, host.ObjectPath(pngImage(), "a.com"), host.ObjectPath(other, "a.com"))
}

func TestBlobHostErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBlobHost(nil, Config{})
	require.Error(t, err)

	host, err := NewBlobHost(failingStore{}, Config{})
	require.NoError(t, err)
	_, err = host.Upload(context.Background(), pngImage(), "a.com")
	require.ErrorContains(t, err, "bucket unavailable")

	_, err = host.Upload(context.Background(), backfill.Image{ContentType: "image/png"}, "a.com")
	require.ErrorContains(t, err, "empty")
}

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"image/png":                  "png",
		"image/jpeg; charset=binary": "jpg",
		"IMAGE/SVG+XML":              "svg",
		"image/x-icon":               "ico",
		"application/octet-stream":   "img",
		"":                           "img",
	}
	for contentType, want := range tests {
		require.Equal(t, want, Extension(contentType), contentType)
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme.com", slug("acme.com"))
	require.Equal(t, "foo-bar", slug(" Foo Bar "))
	require.Equal(t, "logo", slug("///"))
}
