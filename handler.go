package devserve

import (
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

func init() {
	// browsers refuse to stream-compile wasm served with the wrong type
	_ = mime.AddExtensionType(".wasm", "application/wasm")
}

type Handler struct {
	fs      fs.StatFS
	listing http.Handler
}

func NewHandler(fsys fs.StatFS) *Handler {
	slog.Info("handler created", "root", fsys)
	return &Handler{fs: fsys, listing: http.FileServerFS(fsys)}
}

type encodeInfo struct {
	ext    string
	encode string
	order  int
}

var sortorder = map[string]encodeInfo{
	// brotli vs zstd: which is winner?
	"br":       {ext: ".br", encode: "br", order: 1},
	"zstd":     {ext: ".zst", encode: "zstd", order: 2},
	"gzip":     {ext: ".gz", encode: "gzip", order: 3},
	"deflate":  {ext: ".deflate", encode: "deflate", order: 4},
	"compress": {ext: ".Z", encode: "compress", order: 5},
}

func (h *Handler) accepts(accept string) []encodeInfo {
	enc := []string{}
	for _, v := range strings.Split(accept, ",") {
		vv := strings.SplitN(v, ";", 2)
		enc = append(enc, strings.TrimSpace(vv[0]))
	}
	sort.SliceStable(enc, func(i, j int) bool {
		vi, iok := sortorder[enc[i]]
		vj, jok := sortorder[enc[j]]
		if iok && jok {
			return vi.order < vj.order
		}
		return iok && !jok
	})
	res := []encodeInfo{}
	for _, v := range enc {
		if ei, ok := sortorder[v]; ok {
			res = append(res, ei)
		}
	}
	return res
}

// isHashedAsset reports whether filename carries a content hash such as
// layout.a1b2c3d4.css.
func isHashedAsset(filename string) bool {
	parts := strings.Split(filename, ".")
	if len(parts) < 3 {
		return false
	}
	hashPart := parts[len(parts)-2]
	if len(hashPart) < 8 || len(hashPart) > 12 {
		return false
	}
	return strings.Trim(hashPart, "0123456789abcdefABCDEF") == ""
}

func setCacheHeaders(res http.ResponseWriter, name string, dir bool) {
	base := path.Base(name)
	switch {
	case isHashedAsset(base):
		res.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	case dir || strings.HasSuffix(base, ".html") || strings.HasSuffix(base, ".htm"):
		res.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		res.Header().Set("Pragma", "no-cache")
		res.Header().Set("Expires", "0")
	default:
		res.Header().Set("Cache-Control", "public, max-age=60")
	}
}

func hasDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func (h *Handler) contentType(name string) string {
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		return ctype
	}
	ctype := "application/octet-stream"
	fp, err := h.fs.Open(name)
	if err != nil {
		slog.Error("open original", "path", name, "error", err)
		return ctype
	}
	defer fp.Close()
	buf := make([]byte, 512)
	n, err := fp.Read(buf)
	if n > 0 {
		return http.DetectContentType(buf[:n])
	}
	if err != nil && err != io.EOF {
		slog.Error("read for content-type failed", "path", name, "error", err)
	}
	return ctype
}

// etag hashes the whole file with BLAKE3 and rewinds it.
func etag(fp io.ReadSeeker) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, fp); err != nil {
		return "", err
	}
	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return `"` + hex.EncodeToString(hasher.Sum(nil)[:16]) + `"`, nil
}

// notFound serves the site's own 404.html when there is one.
func (h *Handler) notFound(res http.ResponseWriter) {
	data, err := fs.ReadFile(h.fs, "404.html")
	if err != nil {
		http.Error(res, "404 - Page Not Found", http.StatusNotFound)
		return
	}
	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.Header().Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusNotFound)
	_, _ = res.Write(data)
}

func (h *Handler) serveHTTP(res http.ResponseWriter, req *http.Request) {
	if hasDotDot(req.URL.Path) {
		http.Error(res, "403 - Forbidden: Invalid path", http.StatusForbidden)
		return
	}
	name := strings.TrimPrefix(path.Clean("/"+req.URL.Path), "/")
	if name == "" {
		name = "."
	}
	info, err := h.fs.Stat(name)
	if err != nil {
		slog.Debug("stat failed", "path", name, "error", err)
		h.notFound(res)
		return
	}
	if info.IsDir() {
		if !strings.HasSuffix(req.URL.Path, "/") {
			target := path.Base(req.URL.Path) + "/"
			if q := req.URL.RawQuery; q != "" {
				target += "?" + q
			}
			res.Header().Set("Location", target)
			res.WriteHeader(http.StatusMovedPermanently)
			return
		}
		index := path.Join(name, "index.html")
		ist, err := h.fs.Stat(index)
		if err != nil || ist.IsDir() {
			setCacheHeaders(res, name, true)
			h.listing.ServeHTTP(res, req)
			return
		}
		name, info = index, ist
	}

	setCacheHeaders(res, name, false)
	res.Header().Set("Content-Type", h.contentType(name))
	res.Header().Set("Vary", "Accept-Encoding")

	served := name
	for _, ae := range h.accepts(req.Header.Get("Accept-Encoding")) {
		cinfo, err := h.fs.Stat(name + ae.ext)
		if err != nil {
			continue
		}
		if cinfo.ModTime().Round(time.Second).Before(info.ModTime().Round(time.Second)) {
			slog.Warn("encoded file is older than original", "path", name, "ext", ae.ext, "diff", info.ModTime().Sub(cinfo.ModTime()))
			continue
		}
		if cinfo.Size() > info.Size() {
			slog.Info("encoded file is larger than original, skip", "path", name, "ext", ae.ext, "original", info.Size(), "encoded", cinfo.Size())
			continue
		}
		res.Header().Set("Content-Encoding", ae.encode)
		served = name + ae.ext
		slog.Debug("encoded file", "path", name, "ext", ae.ext)
		break
	}

	fp, err := h.fs.Open(served)
	if err != nil {
		res.Header().Del("Content-Encoding")
		slog.Error("open error", "path", served, "error", err)
		http.Error(res, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer fp.Close()

	rs, ok := fp.(io.ReadSeeker)
	if !ok {
		st, err := fp.Stat()
		if err == nil {
			res.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
		}
		if req.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(res, fp); err != nil {
			slog.Error("copy error", "path", served, "error", err)
		}
		return
	}
	if tag, err := etag(rs); err == nil {
		res.Header().Set("ETag", tag)
	} else {
		slog.Warn("etag failed", "path", served, "error", err)
	}
	http.ServeContent(res, req, served, info.ModTime(), rs)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (h *Handler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	st := time.Now()
	rec := &statusRecorder{ResponseWriter: res}
	h.serveHTTP(rec, req)
	code := rec.status
	if code == 0 {
		code = http.StatusOK
	}
	slog.Info("accesslog", "method", req.Method, "path", req.URL.Path, "remote", req.RemoteAddr, "status", code, "elapsed_ns", time.Since(st))
	slog.Debug("accesslog headers", "path", req.URL.Path, "req-header", req.Header, "res-header", res.Header())
}
