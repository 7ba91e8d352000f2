package archive

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// NewDigest returns the hash used for segment digests
func NewDigest() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// SegmentWriter streams rows as a JSON array while counting them and hashing
// the produced bytes.
type SegmentWriter struct {
	out    io.Writer
	digest hash.Hash
	bytes  int64
	rows   int64
	closed bool
}

// NewSegmentWriter starts a segment on w
func NewSegmentWriter(w io.Writer) *SegmentWriter {
	return &SegmentWriter{out: w, digest: NewDigest()}
}

func (s *SegmentWriter) write(p []byte) error {
	n, err := s.out.Write(p)
	s.bytes += int64(n)
	s.digest.Write(p[:n])
	return err
}

// WriteRow appends one row
func (s *SegmentWriter) WriteRow(row Row) error {
	if s.closed {
		return fmt.Errorf("segment already closed")
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	sep := []byte(",\n")
	if s.rows == 0 {
		sep = []byte("[\n")
	}
	if err := s.write(sep); err != nil {
		return err
	}
	if err := s.write(data); err != nil {
		return err
	}
	s.rows++
	return nil
}

// Close terminates the array. The underlying writer is left open.
func (s *SegmentWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rows == 0 {
		return s.write([]byte("[]\n"))
	}
	return s.write([]byte("\n]\n"))
}

// Info describes the finished segment
func (s *SegmentWriter) Info() SegmentInfo {
	return SegmentInfo{
		Rows:   s.rows,
		Bytes:  s.bytes,
		Digest: hex.EncodeToString(s.digest.Sum(nil)),
	}
}

// SegmentReader reads rows back from a segment in batches
type SegmentReader struct {
	dec     *json.Decoder
	closer  io.Closer
	started bool
	done    bool
	read    int64
}

// NewSegmentReader reads the JSON array on r. If r is an io.Closer it is
// closed by Close.
func NewSegmentReader(r io.Reader) *SegmentReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	sr := &SegmentReader{dec: dec}
	if c, ok := r.(io.Closer); ok {
		sr.closer = c
	}
	return sr
}

// Next returns up to n rows. An empty slice with a nil error means the
// segment is exhausted.
func (s *SegmentReader) Next(n int) ([]Row, error) {
	if s.done {
		return nil, nil
	}
	if n < 1 {
		n = 1
	}
	if !s.started {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("segment start: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return nil, fmt.Errorf("segment must be a JSON array, got %v", tok)
		}
		s.started = true
	}

	rows := make([]Row, 0, n)
	for len(rows) < n && s.dec.More() {
		var row Row
		if err := row.decodeFrom(s.dec); err != nil {
			return nil, fmt.Errorf("row %d: %w", s.read+1, err)
		}
		rows = append(rows, row)
		s.read++
	}

	if !s.dec.More() {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("segment end: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != ']' {
			return nil, fmt.Errorf("unterminated segment array")
		}
		if _, err := s.dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("trailing data after segment array")
		}
		s.done = true
	}
	return rows, nil
}

// Count drains the reader and returns the number of rows seen
func (s *SegmentReader) Count() (int64, error) {
	for {
		rows, err := s.Next(1000)
		if err != nil {
			return s.read, err
		}
		if len(rows) == 0 {
			return s.read, nil
		}
	}
}

// Close releases the underlying reader
func (s *SegmentReader) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
