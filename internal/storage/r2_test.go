package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/petermazzocco/dsgnr/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket is a minimal path-style S3 endpoint for PUT, GET and DELETE.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := b.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Write(data)
	case http.MethodDelete:
		delete(b.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestR2(t *testing.T) (*R2, *fakeBucket) {
	t.Helper()
	fb := &fakeBucket{objects: map[string][]byte{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "auto",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("key", "secret", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})
	return NewR2WithClient(client, "photos"), fb
}

func TestR2_SaveOpenRemove(t *testing.T) {
	ctx := context.Background()
	store, fb := newTestR2(t)

	require.NoError(t, store.Save(ctx, "a.png", io.NopCloser(strings.NewReader("pixels")), "image/png"))
	assert.Contains(t, fb.objects, "/photos/posts/a.png")

	rc, err := store.Open(ctx, "a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))

	require.NoError(t, store.Remove(ctx, "a.png"))
	_, err = store.Open(ctx, "a.png")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestR2_RejectsInvalidNames(t *testing.T) {
	store, fb := newTestR2(t)
	assert.ErrorIs(t, store.Save(context.Background(), "../x.png", strings.NewReader("x"), ""), ErrInvalidName)
	assert.Empty(t, fb.objects)
}
