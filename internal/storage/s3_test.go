package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const s3NS = `xmlns="http://s3.amazonaws.com/doc/2006-03-01/"`

// fakeS3 answers the path-style requests S3Storage sends for the bucket
// "imports".
type fakeS3 struct {
	mu       sync.Mutex
	puts     map[string]http.Header
	deleted  []string
	listPage int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/xml")
	switch {
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/imports/"):
		_, _ = io.Copy(io.Discard, r.Body)
		f.puts[strings.TrimPrefix(r.URL.Path, "/imports/")] = r.Header.Clone()
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		f.listPage++
		if q.Get("continuation-token") == "" {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult `+s3NS+`><Name>imports</Name><Prefix>`+q.Get("prefix")+`</Prefix><KeyCount>1</KeyCount><MaxKeys>1</MaxKeys><IsTruncated>true</IsTruncated><NextContinuationToken>page2</NextContinuationToken>
<Contents><Key>in/3/a.csv</Key><Size>4</Size><LastModified>2024-01-02T03:04:05.000Z</LastModified></Contents>
</ListBucketResult>`)
			return
		}
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult `+s3NS+`><Name>imports</Name><Prefix>`+q.Get("prefix")+`</Prefix><KeyCount>1</KeyCount><MaxKeys>1</MaxKeys><IsTruncated>false</IsTruncated>
<Contents><Key>in/3/b.zip</Key><Size>10</Size><LastModified>2024-01-02T03:04:06.000Z</LastModified></Contents>
</ListBucketResult>`)

	case r.Method == http.MethodPost && q.Has("delete"):
		body, _ := io.ReadAll(r.Body)
		for _, part := range strings.Split(string(body), "<Key>")[1:] {
			f.deleted = append(f.deleted, part[:strings.Index(part, "</Key>")])
		}
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult `+s3NS+`></DeleteResult>`)

	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeS3Storage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: make(map[string]http.Header)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3Storage(&S3Config{
		Type:      StorageTypeS3Compatible,
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "imports",
	})
	require.NoError(t, err)
	return s, fake
}

func TestS3StorageMirror(t *testing.T) {
	s, fake := newFakeS3Storage(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.Put(ctx, "in/3/a.csv", strings.NewReader("a,b\n"), 4, PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"import-id": "3"},
	})
	require.NoError(t, err)
	require.Contains(t, fake.puts, "in/3/a.csv")
	assert.Equal(t, "text/csv", fake.puts["in/3/a.csv"].Get("Content-Type"))
	assert.Equal(t, "3", fake.puts["in/3/a.csv"].Get("X-Amz-Meta-Import-Id"))

	m := NewMirror(s, "in")
	sources, err := m.Sources(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, 2, fake.listPage)
	assert.Equal(t, "a.csv", sources[0].Name)
	assert.Equal(t, int64(10), sources[1].Size)
	assert.True(t, strings.HasSuffix(sources[1].URL, "/imports/in/3/b.zip"))

	n, err := m.RemoveContext(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"in/3/a.csv", "in/3/b.zip"}, fake.deleted)
}
