package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/wtnb75/devserve"
)

type launcher struct {
	in     io.Reader
	out    io.Writer
	listen func(host string, port int) (net.Listener, error)
	open   func(url string) error
}

// within reports whether p is base or lies below it.
func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveDir picks the served directory: the flag when given, else the
// directory holding the executable. `go run` builds land in the temp dir, in
// which case the current directory is used.
func resolveDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	exe, err := os.Executable()
	if err != nil {
		slog.Warn("locate executable", "error", err)
		return os.Getwd()
	}
	if resolved, err := filepath.EvalSymlinks(exe); err != nil {
		slog.Warn("resolve executable", "path", exe, "error", err)
	} else {
		exe = resolved
	}
	exeDir := filepath.Dir(exe)
	tmp, err := filepath.EvalSymlinks(os.TempDir())
	if err != nil {
		slog.Warn("resolve temp dir", "path", os.TempDir(), "error", err)
		tmp = os.TempDir()
	}
	if within(tmp, exeDir) {
		return os.Getwd()
	}
	return exeDir, nil
}

func (l *launcher) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("devserve", flag.ContinueOnError)
	fs.SetOutput(l.out)
	dir := fs.String("dir", "", "serve directory (default: directory of the executable)")
	host := fs.String("host", "0.0.0.0", "bind address")
	port := fs.Int("port", 0, "port to listen on, skips the menu")
	noBrowser := fs.Bool("no-browser", false, "do not open a browser")
	watch := fs.Bool("watch", false, "reload pages when files change")
	compress := fs.Bool("compress", false, "gzip responses on the fly")
	debounce := fs.Duration("debounce", 300*time.Millisecond, "delay before a change triggers a reload")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root, err := resolveDir(*dir)
	if err != nil {
		panic(errors.Wrap(err, "resolve directory"))
	}
	if err := os.Chdir(root); err != nil {
		panic(errors.Wrap(err, "change directory"))
	}

	bold := color.New(color.Bold)
	bold.Fprintln(l.out, "🚀 Development Server")
	fmt.Fprintln(l.out, strings.Repeat("=", 40))
	fmt.Fprintln(l.out)

	switch {
	case *port == 0:
		p, err := devserve.PromptContext(ctx, l.in, l.out)
		if err != nil {
			fmt.Fprintln(l.out)
			fmt.Fprintln(l.out)
			fmt.Fprintln(l.out, "✋ Server stopped")
			return 0
		}
		*port = p
	case !devserve.ValidPort(*port):
		color.New(color.FgYellow).Fprintf(l.out, "Invalid port number. Using %d\n", devserve.DefaultPort)
		*port = devserve.DefaultPort
	}
	url := fmt.Sprintf("http://localhost:%d", *port)

	fmt.Fprintln(l.out)
	fmt.Fprintf(l.out, "🌐 Starting development server on port %d...\n", *port)
	fmt.Fprintln(l.out)
	fmt.Fprintf(l.out, "📍 Open %s in your browser\n", url)
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, "Press Ctrl+C to stop the server")
	fmt.Fprintln(l.out)

	config := devserve.CreateConfig()
	config.RootDir = "."
	config.Compress = *compress
	config.LiveReload = *watch
	config.Debounce = *debounce
	ds, err := devserve.New(config)
	if err != nil {
		panic(err)
	}
	defer ds.Close()

	ln, err := l.listen(*host, *port)
	if err != nil {
		var inUse *devserve.PortInUseError
		if errors.As(err, &inUse) {
			color.New(color.FgRed).Fprintf(l.out, "❌ Port %d is already in use. Try another port.\n", *port)
			return 1
		}
		panic(err)
	}

	if !*noBrowser {
		// best effort: a missing browser never stops the server
		_ = l.open(url)
	}

	color.New(color.FgGreen).Fprintf(l.out, "✅ Server running on %s\n", url)
	if err := devserve.Serve(ctx, ln, ds); err != nil {
		panic(err)
	}
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, "✋ Server stopped")
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	l := &launcher{
		in:     os.Stdin,
		out:    os.Stdout,
		listen: devserve.ListenPort,
		open:   devserve.OpenBrowser,
	}
	code := l.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
