package artifacts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	for _, k := range []string{"exports/ses_abc/sha.tar.gz", "deck/01-problem.html", "a"} {
		assert.NoError(t, ValidateKey(k), k)
	}
	for _, k := range []string{"", "../etc/passwd", "/abs", "a//b", "dir/", "exports/../x", "sp ace"} {
		assert.Error(t, ValidateKey(k), k)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "exports/one.tar.gz")
	require.NoError(t, err)
	assert.False(t, ok)

	digest, err := s.Put(ctx, "exports/one.tar.gz", []byte("bundle"), "application/gzip")
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("bundle")), digest)
	assert.True(t, strings.HasPrefix(digest, "sha256:"))

	ok, err = s.Exists(ctx, "exports/one.tar.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "exports/one.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "bundle", string(got))

	require.NoError(t, s.Delete(ctx, "exports/one.tar.gz"))
	_, err = s.Get(ctx, "exports/one.tar.gz")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(ctx, "exports/one.tar.gz"))
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "../escape", []byte("x"), "")
	assert.Error(t, err)
}

func TestSeedDeck(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	pages := DeckPages()
	require.NotEmpty(t, pages)
	assert.Equal(t, "01-problem", pages[0])

	// An edited page survives seeding.
	key, err := DeckKey(pages[0])
	require.NoError(t, err)
	_, err = s.Put(ctx, key, []byte("<p>edited</p>"), "text/html")
	require.NoError(t, err)

	n, err := SeedDeck(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, len(pages)-1, n)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "<p>edited</p>", string(got))

	n, err = SeedDeck(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeckKey(t *testing.T) {
	key, err := DeckKey("02-product")
	require.NoError(t, err)
	assert.Equal(t, "deck/02-product.html", key)

	_, err = DeckKey("../admin")
	assert.Error(t, err)
	_, err = DeckKey("Page")
	assert.Error(t, err)
}

func TestNewStore_Default(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(context.Background(), Config{Dir: dir})
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok, "expected *FileStore, got %T", s)
	assert.Equal(t, dir, fs.baseDir)
}

func TestNewStore_Errors(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Backend: BackendS3})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewStore(context.Background(), Config{Backend: "ftp"})
	assert.ErrorContains(t, err, "unsupported artifact backend")
}

// fakeS3 serves path-style object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(data)
	case http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_RoundTrip(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3Store(ctx, S3StoreConfig{Bucket: "sita", Region: "us-east-1", Endpoint: srv.URL, Prefix: "demo/"})
	require.NoError(t, err)

	ok, err := s.Exists(ctx, "deck/01-problem.html")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "deck/01-problem.html")
	assert.ErrorIs(t, err, ErrNotFound)

	digest, err := s.Put(ctx, "deck/01-problem.html", []byte("<h1>hi</h1>"), "text/html")
	require.NoError(t, err)
	assert.Equal(t, Digest([]byte("<h1>hi</h1>")), digest)

	fake.mu.Lock()
	assert.Equal(t, "<h1>hi</h1>", string(fake.objects["sita/demo/deck/01-problem.html"]))
	assert.Equal(t, "text/html", fake.types["sita/demo/deck/01-problem.html"])
	fake.mu.Unlock()

	ok, err = s.Exists(ctx, "deck/01-problem.html")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "deck/01-problem.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(got))

	require.NoError(t, s.Delete(ctx, "deck/01-problem.html"))
	ok, err = s.Exists(ctx, "deck/01-problem.html")
	require.NoError(t, err)
	assert.False(t, ok)
}
