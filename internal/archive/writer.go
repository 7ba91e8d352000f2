package archive

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"dbvault/internal/schema"
)

// Writer produces an archive stream. Entries must be written with known
// sizes, so segments are usually spooled to disk first.
type Writer struct {
	compressed io.WriteCloser
	tw         *tar.Writer
	modTime    time.Time
	closed     bool
}

// NewWriter starts an archive on w
func NewWriter(w io.Writer, compression Compression, level int) (*Writer, error) {
	cw, err := NewCompressWriter(w, compression, level)
	if err != nil {
		return nil, err
	}
	return &Writer{
		compressed: cw,
		tw:         tar.NewWriter(cw),
		modTime:    time.Now().UTC(),
	}, nil
}

// WriteManifest stores the manifest entry
func (w *Writer) WriteManifest(m *Manifest) error {
	return w.writeJSON(ManifestEntry, m)
}

// WriteSchema stores the catalog snapshot
func (w *Writer) WriteSchema(s *schema.Snapshot) error {
	return w.writeJSON(SchemaEntry, s)
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := w.writeHeader(name, int64(len(data)), 0o644); err != nil {
		return err
	}
	_, err = w.tw.Write(data)
	return err
}

// WriteSegment copies size bytes of a finished segment from r
func (w *Writer) WriteSegment(table string, r io.Reader, size int64) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	name := segmentEntry(table)
	if err := w.writeHeader(name, size, 0o644); err != nil {
		return err
	}
	if _, err := io.CopyN(w.tw, r, size); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ListFiles returns the slash-separated relative paths of every regular file
// below root, in walk order. A missing root yields no files.
func ListFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}

// WriteFile stores the file at src as files/<rel> and returns its size
func (w *Writer) WriteFile(rel, src string) (int64, error) {
	if rel == "" || path.IsAbs(rel) || strings.HasPrefix(path.Clean(rel), "..") {
		return 0, fmt.Errorf("invalid relative path %q", rel)
	}
	return w.writeFile(FilesPrefix+path.Clean(rel), src)
}

func (w *Writer) writeFile(name, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := w.writeHeader(name, info.Size(), int64(info.Mode().Perm())); err != nil {
		return 0, err
	}
	if _, err := io.CopyN(w.tw, f, info.Size()); err != nil {
		return 0, fmt.Errorf("failed to archive %s: %w", src, err)
	}
	return info.Size(), nil
}

func (w *Writer) writeHeader(name string, size int64, mode int64) error {
	if w.closed {
		return fmt.Errorf("archive writer is closed")
	}
	return w.tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     size,
		Mode:     mode,
		ModTime:  w.modTime,
		Format:   tar.FormatPAX,
	})
}

// Close flushes the tar stream and the compressor. The destination writer
// is not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.tw.Close(); err != nil {
		w.compressed.Close()
		return err
	}
	return w.compressed.Close()
}
