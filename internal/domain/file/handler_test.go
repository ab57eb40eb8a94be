package file

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type upload struct {
	field, name, body string
}

func multipartBody(t *testing.T, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		if f.name == "" {
			require.NoError(t, w.WriteField(f.field, f.body))
			continue
		}
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func setupRouter(t *testing.T, opts Options, hopts HandlerOptions) (*gin.Engine, *testEnv) {
	t.Helper()
	env := newTestEnv(t, opts)
	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(env.svc, hopts))
	return r, env
}

func doUpload(r http.Handler, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestHandler_UploadListDownloadDelete(t *testing.T) {
	r, _ := setupRouter(t, Options{}, HandlerOptions{})

	body, ct := multipartBody(t,
		upload{field: "files", name: "report.txt", body: "hello"},
		upload{field: "note", body: "ignored"},
		upload{field: "files", name: "data.csv", body: "a,b\n"},
	)
	w := doUpload(r, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, "Files uploaded successfully", up.Message)
	require.Len(t, up.Files, 2)
	assert.Empty(t, up.Failed)
	assert.Equal(t, "report.txt", up.Files[0].Name)
	assert.Equal(t, int64(5), up.Files[0].Size)
	assert.True(t, strings.HasPrefix(up.Files[0].URL, "/uploads/"))
	id := up.Files[0].ID

	w = do(r, http.MethodGet, "/api/files")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	for _, item := range list {
		for _, key := range []string{"id", "name", "size", "uploaded", "url"} {
			assert.Contains(t, item, key)
		}
		assert.NotContains(t, item, "missing")
	}

	w = do(r, http.MethodGet, "/api/files/"+id+"/download")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "attachment; filename=report.txt", w.Header().Get("Content-Disposition"))

	w = do(r, http.MethodDelete, "/api/files/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"File deleted successfully"}`, w.Body.String())

	w = do(r, http.MethodDelete, "/api/files/"+id)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", errorBody(t, w))

	w = do(r, http.MethodGet, "/api/files/"+id+"/download")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListEmptyIsArray(t *testing.T) {
	r, _ := setupRouter(t, Options{}, HandlerOptions{})

	w := do(r, http.MethodGet, "/api/files")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_UploadNoFiles(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{})

	body, ct := multipartBody(t, upload{field: "note", body: "hi"})
	w := doUpload(r, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No files uploaded", errorBody(t, w))

	w = doUpload(r, strings.NewReader(`{"files":[]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No files uploaded", errorBody(t, w))

	assert.Empty(t, env.blobNames(t))
}

func TestHandler_UploadTooLarge(t *testing.T) {
	r, env := setupRouter(t, Options{MaxFileSize: 8}, HandlerOptions{})

	body, ct := multipartBody(t,
		upload{field: "files", name: "small.txt", body: "ok"},
		upload{field: "files", name: "big.bin", body: "123456789"},
	)
	w := doUpload(r, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "8 byte limit")

	w = do(r, http.MethodGet, "/api/files")
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Empty(t, env.blobNames(t))
}

func TestHandler_UploadPartial(t *testing.T) {
	r, _ := setupRouter(t, Options{MaxFileSize: 8, BatchPolicy: BatchPartial}, HandlerOptions{})

	body, ct := multipartBody(t,
		upload{field: "files", name: "small.txt", body: "ok"},
		upload{field: "files", name: "big.bin", body: "123456789"},
	)
	w := doUpload(r, body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var up UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	assert.Equal(t, "Some files failed to upload", up.Message)
	require.Len(t, up.Files, 1)
	require.Len(t, up.Failed, 1)
	assert.Equal(t, "big.bin", up.Failed[0].Name)
	assert.Equal(t, "File exceeds the 8 byte limit", up.Failed[0].Error)
}

func TestHandler_UploadTooManyFiles(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{MaxFiles: 2})

	body, ct := multipartBody(t,
		upload{field: "files", name: "1.txt", body: "1"},
		upload{field: "files", name: "2.txt", body: "2"},
		upload{field: "files", name: "3.txt", body: "3"},
	)
	w := doUpload(r, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "At most 2 files per upload", errorBody(t, w))
	assert.Empty(t, env.blobNames(t))
}

func TestHandler_UploadMalformed(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{})

	body, ct := multipartBody(t, upload{field: "files", name: "cut.txt", body: strings.Repeat("x", 64)})
	truncated := body.Bytes()[:body.Len()-20]

	w := doUpload(r, bytes.NewReader(truncated), ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Malformed multipart upload", errorBody(t, w))
	assert.Empty(t, env.blobNames(t))
}

// dribble serves head at once, then a small chunk per tick forever.
type dribble struct {
	head []byte
	tick time.Duration
}

func (d *dribble) Read(p []byte) (int, error) {
	if len(d.head) > 0 {
		n := copy(p, d.head)
		d.head = d.head[n:]
		return n, nil
	}
	time.Sleep(d.tick)
	n := min(len(p), 512)
	for i := range n {
		p[i] = 'x'
	}
	return n, nil
}

func TestHandler_UploadTimeout(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{UploadTimeout: 50 * time.Millisecond})

	body, ct := multipartBody(t, upload{field: "files", name: "slow.bin", body: ""})
	// Keep only the part headers; the payload never ends.
	head := body.Bytes()[:bytes.Index(body.Bytes(), []byte("\r\n\r\n"))+4]

	w := doUpload(r, &dribble{head: head, tick: 5 * time.Millisecond}, ct)
	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, "Upload timed out", errorBody(t, w))
	assert.Empty(t, env.blobNames(t))
}

func TestHandler_DownloadBlobMissing(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{})

	f, err := env.svc.Upload(t.Context(), "lost.txt", strings.NewReader("gone"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(env.blobPath(f)))

	w := do(r, http.MethodGet, "/api/files/"+f.ID+"/download")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File content is missing", errorBody(t, w))

	w = do(r, http.MethodGet, "/api/files")
	var list []FileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].Missing)
	assert.Equal(t, int64(4), list[0].Size)

	w = do(r, http.MethodGet, "/api/files/unknown/download")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", errorBody(t, w))
}

func TestHandler_DownloadNonASCIIName(t *testing.T) {
	r, env := setupRouter(t, Options{}, HandlerOptions{})

	f, err := env.svc.Upload(t.Context(), "résumé 2024.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/files/"+f.ID+"/download")
	require.Equal(t, http.StatusOK, w.Code)
	cd := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(cd, "attachment;"))
	assert.Contains(t, cd, "filename*=utf-8''")
	assert.Equal(t, "%PDF", w.Body.String())
}
