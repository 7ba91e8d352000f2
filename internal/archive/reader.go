package archive

import (
	"archive/tar"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dbvault/internal/schema"
)

// ErrCorruptArchive marks archives that cannot be trusted for a restore
var ErrCorruptArchive = errors.New("corrupt archive")

const (
	maxMetadataSize = 64 << 20
	// MaxFileSize caps a single extracted blob
	MaxFileSize = 1 << 30
)

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArchive, fmt.Sprintf(format, args...))
}

// Contents is a decoded archive. Segments and files live in a private spool
// directory that Cleanup removes.
type Contents struct {
	Manifest    *Manifest
	Schema      *schema.Snapshot
	Compression Compression
	// FilesDir holds the extracted blob tree, or is empty when the archive
	// carries no files.
	FilesDir  string
	FileCount int

	dir      string
	segments map[string]string
}

// OpenSegment streams the rows of one table
func (c *Contents) OpenSegment(table string) (*SegmentReader, error) {
	p, ok := c.segments[table]
	if !ok {
		return nil, fmt.Errorf("no data segment for table %s", table)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return NewSegmentReader(f), nil
}

// Cleanup removes the spool directory
func (c *Contents) Cleanup() error {
	if c.dir == "" {
		return nil
	}
	err := os.RemoveAll(c.dir)
	c.dir = ""
	return err
}

// Open decodes an archive stream into a new spool directory under workDir.
// Every segment is digest-checked and parsed before Open returns, so a nil
// error means the data can be replayed without format surprises.
func Open(r io.Reader, workDir string) (*Contents, error) {
	dir, err := os.MkdirTemp(workDir, ".spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	contents := &Contents{dir: dir, segments: make(map[string]string)}
	if err := contents.load(r); err != nil {
		contents.Cleanup()
		return nil, err
	}
	return contents, nil
}

func (c *Contents) load(r io.Reader) error {
	dr, compression, err := NewDecompressReader(r)
	if err != nil {
		return corrupt("%v", err)
	}
	defer dr.Close()
	c.Compression = compression

	digests := make(map[string]string)
	tr := tar.NewReader(dr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return corrupt("failed to read tar entry: %v", err)
		}

		name := header.Name
		switch {
		case name == ManifestEntry:
			var m Manifest
			if err := decodeMetadata(tr, &m); err != nil {
				return corrupt("manifest is unreadable: %v", err)
			}
			c.Manifest = &m
		case name == SchemaEntry:
			var s schema.Snapshot
			if err := decodeMetadata(tr, &s); err != nil {
				return corrupt("schema snapshot is unreadable: %v", err)
			}
			c.Schema = &s
		case strings.HasPrefix(name, DataPrefix):
			table, err := segmentTable(name)
			if err != nil {
				return corrupt("%v", err)
			}
			if _, dup := c.segments[table]; dup {
				return corrupt("duplicate segment for table %s", table)
			}
			p, digest, err := c.spoolSegment(tr, len(c.segments))
			if err != nil {
				return corrupt("failed to read segment %s: %v", table, err)
			}
			c.segments[table] = p
			digests[table] = digest
		case strings.HasPrefix(name, FilesPrefix):
			if err := c.extractFile(tr, header); err != nil {
				return err
			}
		}
	}

	return c.verify(digests)
}

func (c *Contents) verify(digests map[string]string) error {
	m := c.Manifest
	if m == nil {
		return corrupt("manifest is missing")
	}
	if err := m.Validate(); err != nil {
		return corrupt("%v", err)
	}
	if c.Schema == nil {
		return corrupt("schema snapshot is missing")
	}

	for table, rows := range m.TableCounts {
		if _, ok := c.segments[table]; !ok {
			return corrupt("manifest lists table %s but the archive has no segment for it", table)
		}
		if seg, ok := m.Segments[table]; ok && seg.Digest != "" && seg.Digest != digests[table] {
			return corrupt("digest mismatch for table %s", table)
		}

		reader, err := c.OpenSegment(table)
		if err != nil {
			return err
		}
		n, err := reader.Count()
		reader.Close()
		if err != nil {
			return corrupt("segment for table %s is unparsable: %v", table, err)
		}
		if n != rows {
			return corrupt("segment for table %s has %d rows, manifest counts %d", table, n, rows)
		}
	}
	for table := range c.segments {
		if _, ok := m.TableCounts[table]; !ok {
			return corrupt("segment for table %s is not listed in the manifest", table)
		}
	}
	return nil
}

func decodeMetadata(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, maxMetadataSize+1))
	if err != nil {
		return err
	}
	if len(data) > maxMetadataSize {
		return fmt.Errorf("entry exceeds %d bytes", maxMetadataSize)
	}
	return json.Unmarshal(data, v)
}

func segmentTable(name string) (string, error) {
	if !strings.HasSuffix(name, segmentSuffix) {
		return "", fmt.Errorf("unexpected data entry %s", name)
	}
	table := strings.TrimSuffix(strings.TrimPrefix(name, DataPrefix), segmentSuffix)
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return table, nil
}

func (c *Contents) spoolSegment(r io.Reader, index int) (string, string, error) {
	if err := os.MkdirAll(filepath.Join(c.dir, "data"), 0o750); err != nil {
		return "", "", err
	}
	// table names may not be valid file names, so segments are numbered
	p := filepath.Join(c.dir, "data", fmt.Sprintf("%06d.json", index))
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h := NewDigest()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		return "", "", err
	}
	if err := f.Close(); err != nil {
		return "", "", err
	}
	return p, hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Contents) extractFile(r io.Reader, header *tar.Header) error {
	rel := strings.TrimPrefix(header.Name, FilesPrefix)
	if rel == "" || header.Typeflag == tar.TypeDir {
		return nil
	}
	if header.Typeflag != tar.TypeReg {
		return corrupt("unsupported entry type for %s", header.Name)
	}
	if header.Size > MaxFileSize {
		return corrupt("file %s exceeds size limit", header.Name)
	}

	filesDir := filepath.Join(c.dir, "files")
	destPath, err := safeJoin(filesDir, rel)
	if err != nil {
		return corrupt("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", header.Name, err)
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.CopyN(f, r, header.Size); err != nil {
		return corrupt("failed to extract %s: %v", header.Name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	c.FilesDir = filesDir
	c.FileCount++
	return nil
}

// safeJoin joins an archive-relative path onto dir, refusing anything that
// would land outside it.
func safeJoin(dir, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("invalid file path in archive: %s", rel)
	}
	destPath := filepath.Join(dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(destPath, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid file path in archive: %s", rel)
	}
	return destPath, nil
}

// ReadManifest reads only the manifest of the archive at path
func ReadManifest(path string) (*Manifest, error) {
	var m Manifest
	if err := readEntry(path, ManifestEntry, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}
	return &m, nil
}

// ReadSchema reads only the schema snapshot of the archive at path
func ReadSchema(path string) (*schema.Snapshot, error) {
	var s schema.Snapshot
	if err := readEntry(path, SchemaEntry, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, corrupt("schema: %v", err)
	}
	return &s, nil
}

// readEntry decodes the named JSON metadata entry without spooling the rest
// of the archive. Metadata entries come first, so this stops early.
func readEntry(path, name string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dr, _, err := NewDecompressReader(f)
	if err != nil {
		return corrupt("%v", err)
	}
	defer dr.Close()

	tr := tar.NewReader(dr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return corrupt("%s is missing", name)
		}
		if err != nil {
			return corrupt("failed to read tar entry: %v", err)
		}
		if header.Name != name {
			continue
		}
		if err := decodeMetadata(tr, v); err != nil {
			return corrupt("%s is unreadable: %v", name, err)
		}
		return nil
	}
}
