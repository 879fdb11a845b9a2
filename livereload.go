package devserve

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const LiveReloadPath = "/__livereload"

const liveReloadScript = `<script>(function(){var es=new EventSource("` + LiveReloadPath + `");es.onmessage=function(e){if(e.data==="reload"){location.reload();}};})();</script>`

// LiveReload watches a directory tree and tells connected browsers to reload
// through server-sent events.
type LiveReload struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	clients map[chan struct{}]struct{}
	wg      sync.WaitGroup
}

// NewLiveReload starts watching root and every non-hidden directory below it.
func NewLiveReload(root string, debounce time.Duration) (*LiveReload, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create file watcher")
	}
	lr := &LiveReload{
		watcher:  w,
		debounce: debounce,
		clients:  make(map[chan struct{}]struct{}),
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
	if err != nil {
		_ = w.Close()
		return nil, errors.Wrapf(err, "watch %s", root)
	}
	lr.wg.Add(1)
	go lr.loop()
	return lr, nil
}

func (lr *LiveReload) loop() {
	defer lr.wg.Done()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case event, ok := <-lr.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Chmod != 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := lr.watcher.Add(event.Name); err != nil {
						slog.Warn("watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			slog.Debug("file changed", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Reset(lr.debounce)
			} else {
				timer = time.AfterFunc(lr.debounce, lr.Broadcast)
			}
		case err, ok := <-lr.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// Broadcast sends a reload event to every connected client.
func (lr *LiveReload) Broadcast() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	slog.Info("reload", "clients", len(lr.clients))
	for ch := range lr.clients {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (lr *LiveReload) Close() error {
	err := lr.watcher.Close()
	lr.wg.Wait()
	return err
}

// ServeHTTP streams reload events to one browser until it disconnects.
func (lr *LiveReload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan struct{}, 1)
	lr.mu.Lock()
	lr.clients[ch] = struct{}{}
	lr.mu.Unlock()
	defer func() {
		lr.mu.Lock()
		delete(lr.clients, ch)
		lr.mu.Unlock()
	}()

	_, _ = fmt.Fprint(w, "data: connected\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			_, _ = fmt.Fprint(w, "data: reload\n\n")
			flusher.Flush()
		}
	}
}

// bufferedResponse holds a response so a script can be spliced into HTML.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func injectScript(body []byte) []byte {
	script := []byte(liveReloadScript)
	idx := bytes.LastIndex(bytes.ToLower(body), []byte("</body>"))
	if idx < 0 {
		return append(body, script...)
	}
	out := make([]byte, 0, len(body)+len(script))
	out = append(out, body[:idx]...)
	out = append(out, script...)
	return append(out, body[idx:]...)
}

// Inject splices the client script into uncompressed HTML responses from next.
func Inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.ToLower(r.URL.Path)
		page := strings.HasSuffix(p, "/") || strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")
		head := r.Method == http.MethodHead
		if (r.Method != http.MethodGet && !head) || !page {
			next.ServeHTTP(w, r)
			return
		}
		// the page must be sent in full and uncompressed to carry the script;
		// HEAD is rendered as GET so both report the same headers
		r = r.Clone(r.Context())
		r.Method = http.MethodGet
		r.Header.Del("If-None-Match")
		r.Header.Del("If-Modified-Since")
		r.Header.Del("Range")
		r.Header.Del("Accept-Encoding")
		buf := &bufferedResponse{header: make(http.Header)}
		next.ServeHTTP(buf, r)
		if buf.status == 0 {
			buf.status = http.StatusOK
		}
		body := buf.body.Bytes()
		if buf.status == http.StatusOK && buf.header.Get("Content-Encoding") == "" &&
			strings.HasPrefix(buf.header.Get("Content-Type"), "text/html") {
			body = injectScript(body)
			buf.header.Del("ETag")
			buf.header.Set("Content-Length", strconv.Itoa(len(body)))
		}
		for k, v := range buf.header {
			w.Header()[k] = v
		}
		w.WriteHeader(buf.status)
		if head {
			return
		}
		_, _ = w.Write(body)
	})
}
