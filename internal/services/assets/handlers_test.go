package assets

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/assetpipe/internal/bundle"
	"github.com/louisbranch/assetpipe/internal/bundle/manifest"
)

type testEnv struct {
	handler   http.Handler
	codec     manifest.Codec
	sourceDir string
	outputDir string
}

func newTestEnv(t *testing.T, mutate func(*bundle.Config)) testEnv {
	t.Helper()
	codec, err := manifest.NewCipherCodec("handlers-test-secret")
	if err != nil {
		t.Fatalf("NewCipherCodec() error = %v", err)
	}
	cfg := bundle.Config{
		SourceRoot:   t.TempDir(),
		OutputDir:    t.TempDir(),
		Version:      "v7",
		CacheEnabled: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	builder, err := bundle.NewBuilder(cfg, codec)
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	handler, err := NewHandler(Config{HTTPAddr: "localhost:0", Route: "/bundle"}, builder)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return testEnv{handler: handler, codec: codec, sourceDir: cfg.SourceRoot, outputDir: cfg.OutputDir}
}

func (e testEnv) writeSource(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.sourceDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

func (e testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) encode(t *testing.T, names ...string) string {
	t.Helper()
	token, err := e.codec.Encode(names)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return token
}

func TestBundleCurrentVersionServesLongLivedResponse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.writeSource(t, "a.js", "function f() {\n  return 1;\n}\n")
	token := env.encode(t, "a.js")

	rr := env.get(t, "/bundle/"+token+"-v7.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%q)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=31536000") {
		t.Fatalf("Cache-Control = %q, want max-age=31536000", cc)
	}
	if rr.Header().Get("Expires") == "" || rr.Header().Get("Expires") == "0" {
		t.Fatalf("Expires = %q, want far-future date", rr.Header().Get("Expires"))
	}
	if body := rr.Body.String(); !strings.Contains(body, "function f()") {
		t.Fatalf("body = %q, want minified source", body)
	}
	if lm := rr.Header().Get("Last-Modified"); lm == "" {
		t.Fatal("expected Last-Modified header")
	}
}

func TestBundleStaleVersionGetsNoCacheAndTmpArtifact(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.writeSource(t, "a.js", "function f(){return 1;}")
	token := env.encode(t, "a.js")

	rr := env.get(t, "/bundle/"+token+"-v1.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("Cache-Control = %q, want no-store", cc)
	}
	if p := rr.Header().Get("Pragma"); p != "no-cache" {
		t.Fatalf("Pragma = %q, want no-cache", p)
	}
	if exp := rr.Header().Get("Expires"); exp != "0" {
		t.Fatalf("Expires = %q, want 0", exp)
	}

	entries, err := os.ReadDir(env.outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "tmp.") {
		t.Fatalf("output dir = %v, want single tmp.-prefixed artifact", entries)
	}
}

func TestBundleEmptyManifestAnswersGenericBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	token := env.encode(t, "gone.js")

	rr := env.get(t, "/bundle/"+token+"-v7.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); body != "something is wrong" {
		t.Fatalf("body = %q, want %q", body, "something is wrong")
	}
	entries, err := os.ReadDir(env.outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("output dir = %v, want empty", entries)
	}
}

func TestBundleGarbageTokenAnswersGenericBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rr := env.get(t, "/bundle/garbage-token-v7.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); body != "something is wrong" {
		t.Fatalf("body = %q, want %q", body, "something is wrong")
	}
}

func TestBundlePersistFailureIsServerError(t *testing.T) {
	t.Parallel()

	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	env := newTestEnv(t, func(cfg *bundle.Config) {
		cfg.OutputDir = filepath.Join(blocked, "out")
	})
	env.writeSource(t, "a.js", "function f(){return 1;}")
	token := env.encode(t, "a.js")

	rr := env.get(t, "/bundle/"+token+"-v7.js")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "bundle build failed" {
		t.Fatalf("body = %q, want generic failure text", body)
	}
}

func TestBundleRejectsNonScriptNames(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rr := env.get(t, "/bundle/styles-v7.css")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestBundleCacheHitSurvivesSourceRemoval(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.writeSource(t, "a.js", "function f(){return 1;}")
	token := env.encode(t, "a.js")

	if rr := env.get(t, "/bundle/"+token+"-v7.js"); rr.Code != http.StatusOK {
		t.Fatalf("priming status = %d, want %d", rr.Code, http.StatusOK)
	}
	if err := os.RemoveAll(env.sourceDir); err != nil {
		t.Fatalf("remove source dir: %v", err)
	}

	rr := env.get(t, "/bundle/"+token+"-v7.js")
	if rr.Code != http.StatusOK {
		t.Fatalf("cache hit status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); !strings.Contains(body, "function f()") {
		t.Fatalf("cache hit body = %q, want cached bundle", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rr := env.get(t, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
}
