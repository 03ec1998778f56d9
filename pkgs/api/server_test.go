package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ASingh442/sikh-historical-chain/pkgs/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFetcher struct {
	content *gateway.Content
	err     error
}

func (f *fakeFetcher) FetchRaw(_ context.Context, raw string) (*gateway.Content, error) {
	return f.content, f.err
}

type fakeUploader struct {
	calls int
	got   []pinning.File
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, files []pinning.File) ([]pinning.Upload, error) {
	f.calls++
	f.got = files
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pinning.Upload, len(files))
	for i, file := range files {
		out[i] = pinning.Upload{CID: fmt.Sprintf("cid-%d", i), Name: file.Name, Size: int64(len(file.Data)), Type: file.ContentType}
	}
	return out, nil
}

type fakeRecords struct {
	records []ledger.Record
	loaded  bool
	reloads int
	err     error
}

func (f *fakeRecords) Records() ([]ledger.Record, bool) {
	return f.records, f.loaded
}

func (f *fakeRecords) Reload(_ context.Context) ([]ledger.Record, error) {
	f.reloads++
	if f.err != nil {
		return nil, f.err
	}
	f.loaded = true
	return f.records, nil
}

func (f *fakeRecords) Await(_ context.Context) ([]ledger.Record, error) {
	return f.records, f.err
}

func do(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, data := range files {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestFetch_ServesContentImmutable(t *testing.T) {
	s := NewServer(Config{Fetcher: &fakeFetcher{content: &gateway.Content{Data: []byte("%PDF"), ContentType: "application/pdf"}}})

	w := do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/ipfs/fetch?hash=ipfs://"+testCID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
	assert.Equal(t, "%PDF", w.Body.String())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"missing hash", "", nil, http.StatusBadRequest},
		{"invalid", "?hash=short", gateway.ErrInvalidReference, http.StatusBadRequest},
		{"exhausted", "?hash=" + testCID, &gateway.ExhaustedError{
			Ref:      testCID,
			Attempts: []gateway.Attempt{{Candidate: "https://ipfs.io/ipfs/" + testCID, Err: &gateway.StatusError{Code: 504}}},
		}, http.StatusBadGateway},
		{"other", "?hash=" + testCID, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{Fetcher: &fakeFetcher{err: tt.err}})
			w := do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/ipfs/fetch"+tt.query, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestUpload_ReadOnly(t *testing.T) {
	up := &fakeUploader{}
	s := NewServer(Config{Uploader: up, ReadOnly: true})

	body, contentType := multipartBody(t, map[string]string{"a.txt": "a"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := do(t, s.Router(), req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SHC is in read-only mode", decode(t, w)["error"])
	assert.Zero(t, up.calls)
}

func TestUpload_FileCountLimits(t *testing.T) {
	up := &fakeUploader{}
	s := NewServer(Config{Uploader: up})

	body, contentType := multipartBody(t, map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusBadRequest, do(t, s.Router(), req).Code)

	six := map[string]string{}
	for i := 0; i < 6; i++ {
		six[fmt.Sprintf("f%d.txt", i)] = fmt.Sprint(i)
	}
	body, contentType = multipartBody(t, six)
	req = httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := do(t, s.Router(), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Max 5 files per block", decode(t, w)["error"])
	assert.Zero(t, up.calls)
}

func TestUpload_Success(t *testing.T) {
	up := &fakeUploader{}
	s := NewServer(Config{Uploader: up})

	body, contentType := multipartBody(t, map[string]string{"a.txt": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := do(t, s.Router(), req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Uploads []pinning.Upload `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Uploads, 1)
	assert.Equal(t, "cid-0", resp.Uploads[0].CID)
	assert.Equal(t, "a.txt", resp.Uploads[0].Name)
	assert.Equal(t, int64(5), resp.Uploads[0].Size)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestUpload_PinFailureIsBadGateway(t *testing.T) {
	up := &fakeUploader{err: &pinning.PinError{Name: "a.txt", Backend: "pinata", Err: errors.New("401")}}
	s := NewServer(Config{Uploader: up})

	body, contentType := multipartBody(t, map[string]string{"a.txt": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	assert.Equal(t, http.StatusBadGateway, do(t, s.Router(), req).Code)
}

func TestRPCProxy(t *testing.T) {
	var hits atomic.Int32
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "html_please") {
			w.Write([]byte("<!DOCTYPE html><html>blocked</html>"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer node.Close()

	post := func(s *Server, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/rpc-proxy", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return do(t, s.Router(), req)
	}

	readOnly := NewServer(Config{RPCURL: node.URL, ReadOnly: true})

	w := post(readOnly, `{"jsonrpc":"2.0","id":1,"method":"eth_sendRawTransaction","params":[]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Zero(t, hits.Load())

	w = post(readOnly, `{"jsonrpc":"2.0","id":1,"method":"eth_call","params":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`, w.Body.String())

	writable := NewServer(Config{RPCURL: node.URL})
	w = post(writable, `{"jsonrpc":"2.0","id":1,"method":"html_please"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Invalid response from RPC endpoint", decode(t, w)["error"])
}

func TestListRecords_PaginatesAndNavigatesByHash(t *testing.T) {
	records := make([]ledger.Record, 45)
	for i := range records {
		records[i] = ledger.Record{ID: uint64(45 - i), Title: fmt.Sprintf("entry %d", 45-i), RawContentHash: fmt.Sprintf("hash-%d", 45-i)}
	}
	src := &fakeRecords{records: records}
	s := NewServer(Config{Records: src})

	w := do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/records?page=3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 3, resp["totalPages"])
	assert.EqualValues(t, 41, resp["rangeStart"])
	assert.EqualValues(t, 45, resp["rangeEnd"])
	assert.Len(t, resp["records"], 5)
	assert.Equal(t, 1, src.reloads)

	w = do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/records?hash=hash-30", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["page"])
	assert.Equal(t, 1, src.reloads, "loaded records are reused")

	w = do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/records?hash=nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRecords_LoadFailure(t *testing.T) {
	src := &fakeRecords{err: &ledger.ReadError{Op: "totalRecords", Err: errors.New("rpc down")}}
	s := NewServer(Config{Records: src})

	w := do(t, s.Router(), httptest.NewRequest(http.MethodGet, "/api/records", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// gatedLoader blocks every load until released or cancelled.
type gatedLoader struct {
	started chan struct{}
	release chan struct{}
	records []ledger.Record
}

func (g *gatedLoader) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	g.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return g.records, nil
	}
}

func TestListRecords_OverlappingLoadsServeTheWinner(t *testing.T) {
	loader := &gatedLoader{
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
		records: []ledger.Record{{ID: 2, Title: "second"}, {ID: 1, Title: "first"}},
	}
	sess, err := session.New(session.Config{Loader: loader})
	require.NoError(t, err)
	defer sess.Close()

	router := NewServer(Config{Records: sess}).Router()
	responses := make(chan *httptest.ResponseRecorder, 2)
	get := func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/records", nil))
		responses <- w
	}

	go get()
	<-loader.started
	go get()
	<-loader.started
	close(loader.release)

	for i := 0; i < 2; i++ {
		w := <-responses
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Len(t, decode(t, w)["records"], 2)
	}
}

func TestAdminRouter(t *testing.T) {
	r := AdminRouter(map[string]HealthCheck{
		"ok":     func(context.Context) error { return nil },
		"broken": func(context.Context) error { return errors.New("redis unreachable") },
	})

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "unhealthy", resp["status"])

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
