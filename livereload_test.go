package devserve

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestInjectScript(t *testing.T) {
	is := is.New(t)

	out := string(injectScript([]byte("<html><BODY>hi</BODY></html>")))
	is.Equal(out, "<html><BODY>hi"+liveReloadScript+"</BODY></html>")

	out = string(injectScript([]byte("fragment")))
	is.Equal(out, "fragment"+liveReloadScript)
}

func TestInject_HTMLOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.html":
			if r.Header.Get("Accept-Encoding") != "" {
				t.Errorf("expected Accept-Encoding to be dropped for pages")
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Content-Length", "26")
			_, _ = w.Write([]byte("<html><body></body></html>"))
		case "/app.js":
			w.Header().Set("Content-Type", "text/javascript")
			_, _ = w.Write([]byte("console.log(1)"))
		default:
			http.NotFound(w, r)
		}
	})
	h := Inject(next)

	t.Run("page", func(t *testing.T) {
		is := is.New(t)
		req := httptest.NewRequest("GET", "/index.html", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		is.Equal(w.Code, http.StatusOK)
		is.True(strings.Contains(w.Body.String(), LiveReloadPath))
		is.Equal(w.Header().Get("ETag"), "")
		is.Equal(w.Header().Get("Content-Length"), strconv.Itoa(w.Body.Len()))
		is.Equal(req.Header.Get("Accept-Encoding"), "gzip")
	})

	t.Run("head matches get", func(t *testing.T) {
		is := is.New(t)
		get := httptest.NewRecorder()
		h.ServeHTTP(get, httptest.NewRequest("GET", "/index.html", nil))
		head := httptest.NewRecorder()
		h.ServeHTTP(head, httptest.NewRequest("HEAD", "/index.html", nil))

		is.Equal(head.Code, http.StatusOK)
		is.Equal(head.Body.Len(), 0)
		is.Equal(head.Header().Get("Content-Length"), get.Header().Get("Content-Length"))
		is.Equal(head.Header().Get("Content-Length"), strconv.Itoa(get.Body.Len()))
		is.Equal(head.Header().Get("ETag"), "")
	})

	t.Run("asset", func(t *testing.T) {
		is := is.New(t)
		req := httptest.NewRequest("GET", "/app.js", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		is.Equal(w.Body.String(), "console.log(1)")
	})

	t.Run("missing page", func(t *testing.T) {
		is := is.New(t)
		req := httptest.NewRequest("GET", "/missing.html", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		is.Equal(w.Code, http.StatusNotFound)
		is.True(!strings.Contains(w.Body.String(), LiveReloadPath))
	})
}

func TestLiveReload_BroadcastOnChange(t *testing.T) {
	is := is.New(t)
	dir := writeSite(t, map[string]string{"index.html": "<html><body>v1</body></html>"})

	config := CreateConfig()
	config.RootDir = dir
	config.LiveReload = true
	config.Debounce = 50 * time.Millisecond
	ds, err := New(config)
	is.NoErr(err)
	defer ds.Close()

	srv := httptest.NewServer(ds)
	defer srv.Close()

	res, err := http.Get(srv.URL + LiveReloadPath)
	is.NoErr(err)
	defer res.Body.Close()
	is.Equal(res.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				lines <- line
			}
		}
		close(lines)
	}()

	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
		}
		return ""
	}
	is.Equal(next(), "data: connected")

	is.NoErr(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body>v2</body></html>"), 0o644))
	is.Equal(next(), "data: reload")

	head, err := http.Head(srv.URL + "/")
	is.NoErr(err)
	head.Body.Close()

	page, err := http.Get(srv.URL + "/")
	is.NoErr(err)
	defer page.Body.Close()
	sc := bufio.NewScanner(page.Body)
	var body strings.Builder
	for sc.Scan() {
		body.WriteString(sc.Text())
	}
	is.True(strings.Contains(body.String(), "v2"))
	is.True(strings.Contains(body.String(), "new EventSource"))
	is.Equal(head.ContentLength, page.ContentLength)
}
