package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmorgan81/fluxui/internal/feed"
	"github.com/dmorgan81/fluxui/internal/handler"
	imagegen "github.com/dmorgan81/fluxui/internal/image"
	"github.com/dmorgan81/fluxui/internal/metrics"
	"github.com/dmorgan81/fluxui/internal/page"
	"github.com/dmorgan81/fluxui/internal/prompt"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/result"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	err   error
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, req request.Request, _ string) (imagegen.Generation, error) {
	g.calls++
	if g.err != nil {
		return imagegen.Generation{}, g.err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		return imagegen.Generation{}, err
	}
	return imagegen.Generation{Data: buf.Bytes(), Elapsed: 250 * time.Millisecond}, nil
}

func newTestServer(t *testing.T, g imagegen.Generator) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := filepath.Join(t.TempDir(), "generated_images")
	now := func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.Local) }
	results := result.NewHandlerWith(&store.FileUploader{Dir: dir}, nil, now)
	recorder := metrics.New()
	randomizer, err := prompt.NewRandomizerWith([]string{"dev|a red fox"}, 1)
	require.NoError(t, err)

	i := do.New()
	do.ProvideNamedValue(i, "addr", "127.0.0.1:0")
	do.ProvideValue(i, handler.New(g, results, recorder))
	do.ProvideValue(i, results)
	do.ProvideValue(i, &page.Templator{})
	do.ProvideValue(i, randomizer)
	do.ProvideValue(i, feed.NewGeneratorWith(dir))
	do.ProvideValue(i, recorder)
	do.ProvideValue(i, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s, err := NewServer(i)
	require.NoError(t, err)
	return s, dir
}

func postForm(t *testing.T, r http.Handler, values url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Generate Image")
}

func TestGenerateAndDownload(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{})
	r := s.Router()

	w := postForm(t, r, url.Values{"model": {"schnell"}, "prompt": {"a red fox"}}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Image generated in 0.25 seconds!")
	assert.Contains(t, w.Body.String(), "/download/image_20240203-040506.png")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/image_20240203-040506.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ai_generated_20240203-040506.png"`, w.Header().Get("Content-Disposition"))
	_, err := png.Decode(w.Body)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/image_20240203-040506.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed.rss", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://example.com/images/image_20240203-040506.png")
}

func TestGenerateJSON(t *testing.T) {
	g := &stubGenerator{}
	s, _ := newTestServer(t, g)

	body, err := json.Marshal(request.Input{Model: "dev", Prompt: "a red fox"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out handler.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotNil(t, out.Result)
	assert.Equal(t, 0.25, out.Result.ElapsedSeconds)
	require.NotNil(t, out.Request)
	require.NotNil(t, out.Request.Guidance)
	assert.Equal(t, 3.5, *out.Request.Guidance)
}

func TestGenerateEmptyPrompt(t *testing.T) {
	g := &stubGenerator{}
	s, dir := newTestServer(t, g)

	w := postForm(t, s.Router(), url.Values{"prompt": {""}}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a prompt first!")
	assert.Zero(t, g.calls)
	assert.NoDirExists(t, dir)
}

func TestGenerateFailure(t *testing.T) {
	g := &stubGenerator{err: &imagegen.ProcessError{ExitCode: 1, Stderr: "out of memory"}}
	s, _ := newTestServer(t, g)

	w := postForm(t, s.Router(), url.Values{"prompt": {"a red fox"}}, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	var out handler.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Nil(t, out.Result)
	assert.Equal(t, "An error occurred: Command failed: out of memory", out.Error)
}

func TestRandomPrompt(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/prompt/random", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"model":"dev","prompt":"a red fox"}`, w.Body.String())
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{})
	for _, path := range []string{"/images/latest.png", "/download/image_20990101-000000.png", "/download/..%2Fsecret"} {
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestMetricsAndHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubGenerator{})
	for _, path := range []string{"/metrics", "/healthz"} {
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func postJSON(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateJSONNumbers(t *testing.T) {
	g := &stubGenerator{}
	s, _ := newTestServer(t, g)

	w := postJSON(t, s.Router(), `{"model":"schnell","steps":4,"seed":7,"resolution":512,"prompt":"a red fox"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out handler.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Success(), out.Error)
	require.NotNil(t, out.Request)
	assert.Equal(t, 4, out.Request.Steps)
	assert.Equal(t, 7, out.Request.Seed)
	assert.Equal(t, 512, out.Request.Resolution)
	assert.Equal(t, 1, g.calls)
}

func TestGenerateJSONUnreadable(t *testing.T) {
	g := &stubGenerator{}
	s, _ := newTestServer(t, g)

	w := postJSON(t, s.Router(), `{"prompt":"a red fox","steps":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out handler.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Nil(t, out.Result)
	assert.True(t, strings.HasPrefix(out.Error, "An error occurred: invalid parameter: steps"), out.Error)
	assert.Zero(t, g.calls)
}
