package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poltergeist/wisp/pkg/config"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/metrics"
	"github.com/poltergeist/wisp/pkg/types"
)

func testLogger() logger.Logger {
	return logger.CreateLoggerWithOutput("", "debug", nil)
}

func testConfig(t *testing.T) types.Config {
	t.Helper()
	cfg := *config.Default(t.TempDir())
	cfg.Server.Port = 0
	require.NoError(t, os.MkdirAll(cfg.Path(cfg.Server.Root), 0o755))
	return cfg
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_StartsWithEmptyRoot(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, testLogger(), NewLiveReloadHub(testLogger(), nil), nil)

	require.NoError(t, srv.Start())
	defer srv.Shutdown(context.Background())

	resp, _ := get(t, "http://"+srv.Addr()+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, "http://"+srv.Addr()+"/assets/css/common.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Error(t, srv.Start(), "second start must fail")
}

func TestServer_ShutdownStopsListening(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, testLogger(), NewLiveReloadHub(testLogger(), nil), nil)
	require.NoError(t, srv.Start())
	addr := srv.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestServer_InjectsClientIntoHTML(t *testing.T) {
	cfg := testConfig(t)
	root := cfg.Path(cfg.Server.Root)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte("<html><body><h1>Home</h1></body></html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets", "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "css", "common.css"),
		[]byte("body{color:red}"), 0o644))

	ts := httptest.NewServer(New(cfg, testLogger(), NewLiveReloadHub(testLogger(), nil), nil).Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><body><h1>Home</h1>"+clientTag+"</body></html>", body)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	_, body = get(t, ts.URL+"/assets/css/common.css")
	assert.Equal(t, "body{color:red}", body)

	resp, body = get(t, ts.URL+ClientPath)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, LiveReloadPath)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	hub := NewLiveReloadHub(testLogger(), rec)
	defer hub.Shutdown()

	ts := httptest.NewServer(New(testConfig(t), testLogger(), hub, metrics.HTTPHandler(reg)).Handler())
	defer ts.Close()

	hub.ReloadPage("templates")

	resp, body := get(t, ts.URL+MetricsPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `wisp_livereload_broadcasts_total{kind="page"} 1`)
}

func readEvent(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()

	select {
	case line, ok := <-lines:
		require.True(t, ok, "stream closed before an event arrived")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no live reload event received")
		return ""
	}
}

func TestLiveReloadHub_Broadcasts(t *testing.T) {
	hub := NewLiveReloadHub(testLogger(), nil)
	defer hub.Shutdown()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	reader := bufio.NewReader(resp.Body)

	hub.ReloadCSS([]string{"assets/css/common.css"})
	assert.JSONEq(t, `{"kind":"css","paths":["assets/css/common.css"]}`, readEvent(t, reader))

	hub.ReloadPage("scripts")
	assert.JSONEq(t, `{"kind":"page","reason":"scripts"}`, readEvent(t, reader))
}

func TestLiveReloadHub_Shutdown(t *testing.T) {
	hub := NewLiveReloadHub(testLogger(), nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Shutdown()
	assert.Equal(t, 0, hub.ClientCount())

	// The stream ends once the hub shuts down
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after shutdown")
	}

	late, _ := get(t, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, late.StatusCode)

	// Broadcasting after shutdown is a no-op
	hub.ReloadPage("late")
}
