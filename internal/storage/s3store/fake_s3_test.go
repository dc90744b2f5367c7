package s3store

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeS3 understands just enough path-style S3 for the backend tests.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string][]byte
	etags    map[string]string
	headers  map[string]http.Header
	uploads  map[string]map[int][]byte
	nextID   int
	requests map[string]int
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, *httptest.Server) {
	f, srv := newUnstartedFakeS3(t, bucket)
	srv.Start()
	return f, srv
}

// newUnstartedFakeS3 leaves the server unstarted so callers can hook its
// connection state or start it with TLS.
func newUnstartedFakeS3(t *testing.T, bucket string) (*fakeS3, *httptest.Server) {
	f := &fakeS3{
		bucket:   bucket,
		objects:  make(map[string][]byte),
		etags:    make(map[string]string),
		headers:  make(map[string]http.Header),
		uploads:  make(map[string]map[int][]byte),
		requests: make(map[string]int),
	}
	srv := httptest.NewUnstartedServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.etags[key] = md5hex(data)
}

func (f *fakeS3) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeS3) header(key, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[key].Get(name)
}

func (f *fakeS3) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[op]
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Name        string        `xml:"Name"`
	Prefix      string        `xml:"Prefix"`
	KeyCount    int           `xml:"KeyCount"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key  string `xml:"Key"`
	ETag string `xml:"ETag"`
	Size int    `xml:"Size"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/"+f.bucket)
	key := strings.TrimPrefix(path, "/")
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodGet && key == "" && q.Get("list-type") == "2":
		f.requests["list"]++
		prefix := q.Get("prefix")
		res := listResult{Name: f.bucket, Prefix: prefix}
		keys := make([]string, 0, len(f.objects))
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.Contents = append(res.Contents, listContent{Key: k, ETag: `"` + f.etags[k] + `"`, Size: len(f.objects[k])})
		}
		res.KeyCount = len(res.Contents)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(res)

	case r.Method == http.MethodHead:
		f.requests["head"]++
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"`+f.etags[key]+`"`)
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && q.Has("uploads"):
		f.requests["create"]++
		f.nextID++
		id := fmt.Sprintf("upload-%d", f.nextID)
		f.uploads[id] = make(map[int][]byte)
		f.headers[key] = r.Header.Clone()
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<InitiateMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><UploadId>%s</UploadId></InitiateMultipartUploadResult>`, f.bucket, key, id)

	case r.Method == http.MethodPut && q.Has("uploadId"):
		f.requests["part"]++
		body, _ := io.ReadAll(r.Body)
		var n int
		fmt.Sscan(q.Get("partNumber"), &n)
		f.uploads[q.Get("uploadId")][n] = body
		w.Header().Set("ETag", `"`+md5hex(body)+`"`)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPost && q.Has("uploadId"):
		f.requests["complete"]++
		parts := f.uploads[q.Get("uploadId")]
		var all, digests []byte
		for i := 1; i <= len(parts); i++ {
			all = append(all, parts[i]...)
			sum := md5.Sum(parts[i])
			digests = append(digests, sum[:]...)
		}
		f.objects[key] = all
		f.etags[key] = fmt.Sprintf("%s-%d", md5hex(digests), len(parts))
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<CompleteMultipartUploadResult><Bucket>%s</Bucket><Key>%s</Key><ETag>"%s"</ETag></CompleteMultipartUploadResult>`, f.bucket, key, f.etags[key])

	case r.Method == http.MethodDelete && q.Has("uploadId"):
		f.requests["abort"]++
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPut:
		f.requests["put"]++
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.etags[key] = md5hex(body)
		f.headers[key] = r.Header.Clone()
		w.Header().Set("ETag", `"`+f.etags[key]+`"`)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete:
		f.requests["delete"]++
		delete(f.objects, key)
		delete(f.etags, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "unsupported", http.StatusNotImplemented)
	}
}
