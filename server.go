package devserve

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"
)

type Config struct {
	RootDir    string        `json:"rootdir,omitempty"`
	Compress   bool          `json:"compress,omitempty"`
	LiveReload bool          `json:"livereload,omitempty"`
	Debounce   time.Duration `json:"debounce,omitempty"`
}

func CreateConfig() *Config {
	return &Config{RootDir: ".", Debounce: 300 * time.Millisecond}
}

// DevServer is the composed request handler for a served directory.
type DevServer struct {
	hdl http.Handler
	lr  *LiveReload
}

func New(config *Config) (*DevServer, error) {
	if config.RootDir == "" {
		return nil, errors.New("rootdir cannot be empty")
	}
	info, err := os.Stat(config.RootDir)
	if err != nil {
		return nil, errors.Wrap(err, "stat rootdir")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("rootdir %s is not a directory", config.RootDir)
	}
	slog.Info("devserve initialized", "rootdir", config.RootDir, "compress", config.Compress, "livereload", config.LiveReload)

	var hdl http.Handler = NewHandler(os.DirFS(config.RootDir).(fs.StatFS))
	ds := &DevServer{}
	if config.LiveReload {
		lr, err := NewLiveReload(config.RootDir, config.Debounce)
		if err != nil {
			return nil, err
		}
		ds.lr = lr
		hdl = Inject(hdl)
	}
	if config.Compress {
		hdl = gzhttp.GzipHandler(hdl)
	}
	if ds.lr != nil {
		mux := http.NewServeMux()
		mux.Handle(LiveReloadPath, ds.lr)
		mux.Handle("/", hdl)
		hdl = mux
	}
	ds.hdl = hdl
	return ds, nil
}

func (d *DevServer) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	d.hdl.ServeHTTP(res, req)
}

func (d *DevServer) Close() error {
	if d.lr != nil {
		return d.lr.Close()
	}
	return nil
}

// Serve runs handler on ln until ctx is done. The listener is closed on every
// return path. A ctx-driven stop returns nil.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	defer ln.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// long-lived event streams end when shutdown starts
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
			_ = server.Close()
		}
	}()
	slog.Info("starting server", "addr", ln.Addr().String())
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return errors.Wrap(err, "serve")
}
