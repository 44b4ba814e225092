// Package output writes finished cube documents into the output directory.
package output

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/covidstat/internal/logging"
)

// Extension is the suffix every output file carries.
const Extension = ".json-stat"

// ErrInvalidName: the output name is not a plain file name.
var ErrInvalidName = errors.New("invalid output name")

// Writer replaces files under a root directory atomically: readers of the
// repository see either the previous document or the new one, never a
// truncated file.
type Writer struct {
	root  string
	permF os.FileMode
	permD os.FileMode
}

// New returns a writer rooted at dir. The directory is created on first write.
func New(dir string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty output directory", ErrInvalidName)
	}
	return &Writer{root: dir, permF: 0o644, permD: 0o755}, nil
}

// Root returns the output directory.
func (w *Writer) Root() string { return w.root }

// Write stores data as <root>/<name>, replacing any previous version.
func (w *Writer) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := w.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.root, w.permD); err != nil {
		return err
	}
	return w.writeAtomic(ctx, dest, bytes.NewReader(data))
}

// path rejects anything but a bare file name with the output extension.
func (w *Writer) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Extension) {
		return "", fmt.Errorf("%w: %q does not end in %s", ErrInvalidName, name, Extension)
	}
	return filepath.Join(w.root, name), nil
}

func (w *Writer) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	// CreateTemp opens files 0600; published outputs must be world-readable.
	if err := os.Chmod(tmpPath, w.permF); err != nil {
		return fail(fmt.Errorf("chmod %s: %w", tmpPath, err))
	}

	bw := bufio.NewWriter(tmp)
	if _, err := io.Copy(bw, &ctxReader{ctx: ctx, r: r}); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := syncDir(dir); err != nil {
		logging.FromContext(ctx).Debug("directory sync failed", "dir", dir, "error", err)
	}
	return nil
}

// syncDir flushes directory metadata so the rename survives a crash.
// Not every platform supports it, so failures are logged, not returned.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// ctxReader checks for cancellation before every read.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
