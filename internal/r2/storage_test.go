package r2

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/trunov/assethub/internal/config"
)

type object struct {
	body         []byte
	contentType  string
	cacheControl string
}

// fakeBucket is a minimal path-style S3 endpoint holding objects in memory.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]object
	puts    int
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = object{body: body, contentType: r.Header.Get("Content-Type"), cacheControl: r.Header.Get("Cache-Control")}
		f.puts++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code></Error>`)
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		_, _ = w.Write(obj.body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string]object{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	s, err := NewStore(context.Background(), &conf.AssetStoreConfig{
		CacheControl: "public, max-age=60",
		R2: conf.R2Config{
			BucketName:    "assets",
			AccessKeyID:   "key",
			SecretKey:     "secret",
			Endpoint:      srv.URL,
			PublicBaseURL: "https://cdn.example.com/",
		},
	})
	require.NoError(t, err)
	return s, bucket
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	s, bucket := newTestStore(t)
	ctx := context.Background()

	url, err := s.Upsert(ctx, "catering/gourmet-wraps.webp", []byte("first"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/catering/gourmet-wraps.webp", url)

	_, err = s.Upsert(ctx, "catering/gourmet-wraps.webp", []byte("second"), "image/webp")
	require.NoError(t, err)

	assert.Equal(t, 2, bucket.puts)
	require.Len(t, bucket.objects, 1)
	obj := bucket.objects["assets/catering/gourmet-wraps.webp"]
	assert.Equal(t, "public, max-age=60", obj.cacheControl)

	body, contentType := getObject(t, s, "catering/gourmet-wraps.webp")
	assert.Equal(t, "second", string(body))
	assert.Equal(t, "image/webp", contentType)
}

// getObject reads an object back through the store's S3 client.
func getObject(t *testing.T, s *Store, key string) ([]byte, string) {
	t.Helper()
	out, err := s.S3Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	return body, aws.ToString(out.ContentType)
}
