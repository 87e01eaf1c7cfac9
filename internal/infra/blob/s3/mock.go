package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const metaHeaderPrefix = "X-Amz-Meta-"

// NewMockForTests returns a Store backed by an in-memory fake S3 transport.
// It handles Head/Get/Put/Delete and paginated ListObjectsV2 with pageSize
// keys per page (pageSize < 1 means unpaginated).
func NewMockForTests(pageSize int) *Store {
	rt := &mockRoundTripper{objects: make(map[string]mockObj), pageSize: pageSize}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type mockRoundTripper struct {
	mu       sync.Mutex
	objects  map[string]mockObj
	pageSize int
}

type mockObj struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

func (o mockObj) etag() string {
	sum := sha256.Sum256(o.body)
	return "\"" + hex.EncodeToString(sum[:16]) + "\""
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	Contents              []listContents `xml:"Contents"`
}

type listContents struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req)
	}
	switch req.Method {
	case http.MethodHead:
		if obj, ok := m.objects[key]; ok {
			return respond(http.StatusOK, nil, objectHeaders(obj)), nil
		}
		return respond(http.StatusNotFound, nil, nil), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if req.Header.Get("X-Amz-Decoded-Content-Length") != "" {
			if body, err = decodeChunked(body); err != nil {
				return respond(http.StatusBadRequest, nil, nil), nil
			}
		}
		obj := mockObj{body: body, contentType: req.Header.Get("Content-Type"), modified: time.Now().UTC()}
		for h, v := range req.Header {
			if strings.HasPrefix(h, metaHeaderPrefix) && len(v) > 0 {
				if obj.metadata == nil {
					obj.metadata = make(map[string]string)
				}
				obj.metadata[strings.ToLower(strings.TrimPrefix(h, metaHeaderPrefix))] = v[0]
			}
		}
		m.objects[key] = obj
		return respond(http.StatusOK, nil, http.Header{"Etag": {obj.etag()}}), nil
	case http.MethodGet:
		if obj, ok := m.objects[key]; ok {
			return respond(http.StatusOK, bytes.Clone(obj.body), objectHeaders(obj)), nil
		}
		return respond(http.StatusNotFound, nil, nil), nil
	case http.MethodDelete:
		delete(m.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockRoundTripper) list(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	prefix := q.Get("prefix")
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 || n > len(keys) {
			return respond(http.StatusBadRequest, nil, nil), nil
		}
		start = n
	}
	end := len(keys)
	if m.pageSize > 0 && start+m.pageSize < end {
		end = start + m.pageSize
	}
	res := listResult{KeyCount: end - start}
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		res.Contents = append(res.Contents, listContents{Key: k, Size: len(obj.body), ETag: obj.etag(), LastModified: obj.modified.Format(time.RFC3339)})
	}
	if end < len(keys) {
		res.IsTruncated = true
		res.NextContinuationToken = strconv.Itoa(end)
	}
	body, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, body, http.Header{"Content-Type": {"application/xml"}}), nil
}

func objectHeaders(obj mockObj) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Etag":           {obj.etag()},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	if obj.contentType != "" {
		h.Set("Content-Type", obj.contentType)
	}
	for k, v := range obj.metadata {
		h.Set(metaHeaderPrefix+k, v)
	}
	return h
}

func respond(status int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

// decodeChunked strips aws-chunked framing: repeated `<hex>[;ext]\r\n<data>\r\n`
// terminated by a zero-size chunk and optional trailers.
func decodeChunked(b []byte) ([]byte, error) {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return nil, fmt.Errorf("missing chunk header")
		}
		head := string(b[:i])
		if j := strings.IndexByte(head, ';'); j >= 0 {
			head = head[:j]
		}
		size, err := strconv.ParseInt(head, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", head, err)
		}
		b = b[i+2:]
		if size == 0 {
			return out, nil
		}
		if int64(len(b)) < size+2 {
			return nil, fmt.Errorf("short chunk")
		}
		out = append(out, b[:size]...)
		b = b[size+2:]
	}
}
