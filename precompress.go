package devserve

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// compress:
//   - compress every file in the tree next to the original
//   - skip outputs newer than the original
//   - remove outputs not smaller than the original
//
// cleanup:
//   - remove compressed siblings, optionally only stale ones

type compressor struct {
	ext    string
	writer func(w io.Writer) (io.WriteCloser, error)
}

var compressors = []compressor{
	{ext: ".gz", writer: func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	}},
	{ext: ".br", writer: func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	}},
	{ext: ".zst", writer: func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	}},
}

// IsCompressedName reports whether name carries one of the encoded-sibling
// extensions the handler understands.
func IsCompressedName(name string) bool {
	switch filepath.Ext(name) {
	case ".gz", ".br", ".zst", ".deflate", ".Z":
		return true
	}
	return false
}

type Precompressor struct {
	Fs      afero.Fs
	MinSize int64
	MaxSize int64
	DryRun  bool
}

func NewPrecompressor(fsys afero.Fs) *Precompressor {
	return &Precompressor{Fs: fsys, MinSize: 128, MaxSize: 10 * 1024 * 1024}
}

func (p *Precompressor) encode(path, outfn string, c compressor) (err error) {
	in, err := p.Fs.Open(path)
	if err != nil {
		return errors.Wrap(err, "open original")
	}
	defer in.Close()
	out, err := p.Fs.Create(outfn)
	if err != nil {
		return errors.Wrap(err, "create compressed")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close compressed")
		}
	}()
	w, err := c.writer(out)
	if err != nil {
		return errors.Wrap(err, "create encoder")
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "encode %s", outfn)
	}
	return errors.Wrap(w.Close(), "flush encoder")
}

// CompressFile writes every encoded sibling of path.
func (p *Precompressor) CompressFile(path string) error {
	origst, err := p.Fs.Stat(path)
	if err != nil {
		slog.Error("stat failed in compressFile", "path", path, "error", err)
		return err
	}
	for _, c := range compressors {
		outfn := path + c.ext
		if st, err := p.Fs.Stat(outfn); err == nil && st.ModTime().After(origst.ModTime()) {
			slog.Info("skip compressing, up-to-date", "path", path, "compressed", outfn)
			continue
		}
		if p.DryRun {
			slog.Info("dry-run: would compress file", "path", path, "compressed", outfn)
			continue
		}
		if err := p.encode(path, outfn, c); err != nil {
			slog.Error("compress failed", "path", path, "compressed", outfn, "error", err)
			return err
		}
		st, err := p.Fs.Stat(outfn)
		if err != nil {
			slog.Error("stat compressed file failed", "path", outfn, "error", err)
			return err
		}
		if st.Size() >= origst.Size() {
			slog.Info("compressed file is larger than original, removing", "path", path, "compressed", outfn, "original_size", origst.Size(), "compressed_size", st.Size())
			if err := p.Fs.Remove(outfn); err != nil {
				slog.Error("remove compressed file failed", "path", outfn, "error", err)
				return err
			}
			continue
		}
		slog.Info("compressed file created", "path", path, "compressed", outfn, "original_size", origst.Size(), "compressed_size", st.Size())
	}
	return nil
}

// CleanupFile removes the encoded siblings of path. With oldOnly, siblings
// newer than the original are kept.
func (p *Precompressor) CleanupFile(path string, oldOnly bool) error {
	origst, err := p.Fs.Stat(path)
	if err != nil {
		slog.Error("stat failed", "path", path, "error", err)
		return err
	}
	for _, c := range compressors {
		outfn := path + c.ext
		st, err := p.Fs.Stat(outfn)
		if err != nil {
			slog.Debug("not exists?", "path", outfn)
			continue
		}
		if oldOnly && st.ModTime().After(origst.ModTime()) {
			slog.Info("skip cleanup, up-to-date", "path", path, "compressed", outfn)
			continue
		}
		if p.DryRun {
			slog.Info("dry-run: would cleanup file", "path", path, "compressed", outfn)
			continue
		}
		if err := p.Fs.Remove(outfn); err != nil {
			slog.Error("remove compressed file failed", "path", outfn, "error", err)
			return err
		}
		slog.Info("removed compressed file", "path", path, "compressed", outfn)
	}
	return nil
}

func (p *Precompressor) walk(root string, fn func(path string, info os.FileInfo) error) error {
	return afero.Walk(p.Fs, root, func(path string, info os.FileInfo, err error) error {
		// siblings removed by an earlier visit are still in the listing
		if err != nil && path != root && os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.IsDir() || IsCompressedName(path) {
			return nil
		}
		return fn(path, info)
	})
}

// CompressTree compresses every file under root whose size is within
// [MinSize, MaxSize].
func (p *Precompressor) CompressTree(root string) error {
	return p.walk(root, func(path string, info os.FileInfo) error {
		if info.Size() < p.MinSize {
			slog.Info("skip compressing, too small", "path", path, "size", info.Size(), "min_size", p.MinSize)
			return nil
		}
		if info.Size() > p.MaxSize {
			slog.Info("skip compressing, too large", "path", path, "size", info.Size(), "max_size", p.MaxSize)
			return nil
		}
		slog.Info("compressing file", "path", path)
		return p.CompressFile(path)
	})
}

func (p *Precompressor) CleanupTree(root string, oldOnly bool) error {
	return p.walk(root, func(path string, _ os.FileInfo) error {
		slog.Info("cleanup file", "path", path, "old_only", oldOnly)
		return p.CleanupFile(path, oldOnly)
	})
}
