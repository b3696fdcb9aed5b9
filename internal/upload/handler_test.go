package upload

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Smallest valid PNG: signature plus truncated chunks is enough for
// content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(t.TempDir(), 1<<20, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func TestUploadStoresImageAndReturnsURL(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t)

	body, contentType := multipartBody(t, "photo.png", pngHeader)
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Upload(w, r)

	req.Equal(http.StatusCreated, w.Code)

	var res map[string]string
	req.NoError(json.Unmarshal(w.Body.Bytes(), &res))
	req.True(strings.HasPrefix(res["url"], URLPrefix))
	req.True(strings.HasSuffix(res["url"], ".png"))

	stored := filepath.Join(h.dir, strings.TrimPrefix(res["url"], URLPrefix))
	data, err := os.ReadFile(stored)
	req.NoError(err)
	req.Equal(pngHeader, data)
}

func TestUploadRejectsNonImage(t *testing.T) {
	h := newTestHandler(t)

	body, contentType := multipartBody(t, "notes.txt", []byte("just some text"))
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Upload(w, r)

	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestUploadRequiresFile(t *testing.T) {
	h := newTestHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("nope"))
	w := httptest.NewRecorder()

	h.Upload(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServeReturnsStoredFile(t *testing.T) {
	req := require.New(t)
	h := newTestHandler(t)
	req.NoError(os.WriteFile(filepath.Join(h.dir, "abc.png"), pngHeader, 0o644))

	r := httptest.NewRequest(http.MethodGet, "/uploads/abc.png", nil)
	w := httptest.NewRecorder()
	h.Serve().ServeHTTP(w, r)

	req.Equal(http.StatusOK, w.Code)
	req.Equal(pngHeader, w.Body.Bytes())
}
