package nrfixture

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/docker/go-units"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/lattice-substrate/nanraster/nrerr"
	"github.com/lattice-substrate/nanraster/nrlog"
)

// Pack writes the verified fixture set of layout to out as a zstd-compressed
// tar stream. Entries are sorted with fixed ownership and timestamps, so the
// same fixture set always packs to the same bytes.
func Pack(layout Layout, out string, log *zap.Logger) (*Manifest, error) {
	log = nrlog.OrNop(log)
	m, err := VerifyManifest(layout)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(out)
	if err != nil {
		return nil, ioErr("create bundle", errors.Wrapf(err, "%s", out))
	}
	defer func() { _ = f.Close() }()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, nrerr.Wrap(nrerr.InternalError, -1, "zstd writer", err)
	}
	tw := tar.NewWriter(zw)
	entries := append([]string{ManifestFile}, m.Files...)
	for _, rel := range entries {
		if err := addTarFile(tw, layout, rel); err != nil {
			_ = zw.Close()
			return nil, err
		}
	}
	if err := errors.CombineErrors(tw.Close(), zw.Close()); err != nil {
		return nil, ioErr("finish bundle", err)
	}
	if err := f.Close(); err != nil {
		return nil, ioErr("close bundle", err)
	}
	if st, err := os.Stat(out); err == nil {
		log.Info("packed fixtures",
			zap.String("bundle", out),
			zap.String("raw", units.HumanSize(float64(m.TotalSize()))),
			zap.String("compressed", units.HumanSize(float64(st.Size()))))
	}
	return m, nil
}

func addTarFile(tw *tar.Writer, layout Layout, rel string) error {
	src := filepath.Join(layout.Dir, filepath.FromSlash(rel))
	in, err := os.Open(src)
	if err != nil {
		return ioErr("bundle entry", err)
	}
	defer func() { _ = in.Close() }()
	st, err := in.Stat()
	if err != nil {
		return ioErr("bundle entry", err)
	}
	hdr := &tar.Header{
		Name:     rel,
		Mode:     0o644,
		Size:     st.Size(),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
		Uname:    "root",
		Gname:    "root",
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return ioErr("bundle header", errors.Wrapf(err, "%s", rel))
	}
	if _, err := io.Copy(tw, in); err != nil {
		return ioErr("bundle entry", errors.Wrapf(err, "%s", rel))
	}
	return nil
}

// Unpack restores a bundle written by Pack into layout.Dir and verifies the
// restored files against the bundled manifest. Entries that are not regular
// files or whose names escape the directory are rejected.
func Unpack(in string, layout Layout, log *zap.Logger) (*Manifest, error) {
	log = nrlog.OrNop(log)
	f, err := os.Open(in)
	if err != nil {
		return nil, ioErr("open bundle", errors.Wrapf(err, "%s", in))
	}
	defer func() { _ = f.Close() }()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, ioErr("open bundle zstd stream", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var total int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ioErr("read bundle tar", err)
		}
		name, err := entryName(hdr)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(layout.Dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, ioErr("create fixture directory", err)
		}
		out, err := os.Create(dst)
		if err != nil {
			return nil, ioErr("restore fixture", err)
		}
		n, cerr := io.Copy(out, tr)
		if err := errors.CombineErrors(cerr, out.Close()); err != nil {
			return nil, ioErr("restore fixture", errors.Wrapf(err, "%s", name))
		}
		total += n
	}
	m, err := VerifyManifest(layout)
	if err != nil {
		return nil, err
	}
	log.Info("unpacked fixtures", zap.String("dir", layout.Dir), zap.String("size", units.HumanSize(float64(total))))
	return m, nil
}

func entryName(hdr *tar.Header) (string, error) {
	if hdr.Typeflag != tar.TypeReg {
		return "", nrerr.Newf(nrerr.IOError, -1, "bundle entry %q is not a regular file", hdr.Name)
	}
	clean := path.Clean(hdr.Name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, `\`) {
		return "", nrerr.Newf(nrerr.IOError, -1, "bundle entry %q escapes the data directory", hdr.Name)
	}
	return clean, nil
}
