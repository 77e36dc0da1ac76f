package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/qa-archiver/internal/config"
	"github.com/JakeFAU/qa-archiver/internal/hash/sha256"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\ncli test image")

func writeTestConfig(t *testing.T) string {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/questions/42":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":42,"title":"Why?","detail":%q}`, `<p>Asking <img src="`+srv.URL+`/cat.png"></p>`)
		case "/api/v4/questions/42/answers":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[],"paging":{"is_end":true,"next":""}}`))
		case "/cat.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
fetch:
  api_base: %s
  min_interval: 0s
  retry_limit: 0
storage:
  backend: local
  base_dir: %s
items:
  backend: sqlite
  sqlite_path: %s
progress:
  log_events: false
logging:
  level: error
`, srv.URL, filepath.Join(dir, "archive"), filepath.Join(dir, "items.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, closeApp := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	require.NoError(t, closeApp(context.Background()))
	return out.String(), err
}

func TestCrawlThenGet(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t)
	out, err := execute(t, "--config", path, "crawl", "question:42")
	require.NoError(t, err)
	assert.Contains(t, out, "done 1")
	assert.Contains(t, out, "media 1")

	digest, err := sha256.New().Hash(pngBytes)
	require.NoError(t, err)
	dst := filepath.Join(t.TempDir(), "cat.png")
	out, err = execute(t, "--config", path, "get", digest, "--out", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "size    "+fmt.Sprint(len(pngBytes)))
	assert.Contains(t, out, "image/png")
	written, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, written)

	// The second crawl resumes over the persisted table.
	out, err = execute(t, "--config", path, "crawl", "https://www.zhihu.com/question/42")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped 1")
}

func TestGetUnknownDigest(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t)
	_, err := execute(t, "--config", path, "get", "sha256-nope")
	require.Error(t, err)
}

func TestCrawlRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	cmd.Flags().String("status-addr", "", "")
	cmd.Flags().Int("max-depth", 0, "")
	cmd.Flags().Int("max-items", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--status-addr", ":9000", "--max-depth", "0", "--max-items", "7"}))

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, applyFlagOverrides(cmd, &cfg))
	assert.Equal(t, ":9000", cfg.Progress.StatusAddr)
	assert.Equal(t, 0, cfg.Crawler.MaxDepth)
	assert.Equal(t, 7, cfg.Crawler.MaxItems)
	assert.Equal(t, 4, cfg.Crawler.MaxConcurrency)

	bad := &cobra.Command{}
	bad.Flags().Int("max-depth", 0, "")
	require.NoError(t, bad.Flags().Parse([]string{"--max-depth=-1"}))
	require.Error(t, applyFlagOverrides(bad, &cfg))
}
