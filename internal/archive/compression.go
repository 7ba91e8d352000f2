package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the outer wrapper of an archive
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// DefaultCompression is used when nothing else is configured
const DefaultCompression = CompressionGzip

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCompression accepts an algorithm name or common alias; empty means the default
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultCompression, nil
	case "none", "off", "tar":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Extension returns the file suffix used for archives of this kind
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	case CompressionLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

// Extensions lists every archive suffix the store recognises
func Extensions() []string {
	return []string{".tar.gz", ".tar.zst", ".tar.lz4", ".tar"}
}

// NewCompressWriter wraps w with the given algorithm. Level 0 selects the
// algorithm default; out-of-range levels fall back to the default too.
func NewCompressWriter(w io.Writer, c Compression, level int) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		if level < gzip.BestSpeed || level > gzip.BestCompression {
			level = gzip.DefaultCompression
		}
		return gzip.NewWriterLevel(w, level)
	case CompressionZstd:
		encLevel := zstd.SpeedDefault
		if level > 0 {
			encLevel = zstd.EncoderLevelFromZstd(level)
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(encLevel))
	case CompressionLZ4:
		writer := lz4.NewWriter(w)
		if lvl, ok := lz4Level(level); ok {
			if err := writer.Apply(lz4.CompressionLevelOption(lvl)); err != nil {
				return nil, fmt.Errorf("lz4 writer setup failed: %w", err)
			}
		}
		return writer, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c)
	}
}

func lz4Level(level int) (lz4.CompressionLevel, bool) {
	switch {
	case level <= 0:
		return lz4.Fast, false
	case level <= 3:
		return lz4.Level1, true
	case level <= 6:
		return lz4.Level5, true
	default:
		return lz4.Level9, true
	}
}

// NewDecompressReader sniffs the leading magic bytes of r and unwraps the
// matching algorithm. Streams without a known magic are treated as plain tar.
func NewDecompressReader(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, "", err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, CompressionGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zstdReadCloser{dec}, CompressionZstd, nil
	case bytes.HasPrefix(head, lz4Magic):
		return io.NopCloser(lz4.NewReader(br)), CompressionLZ4, nil
	default:
		return io.NopCloser(br), CompressionNone, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
