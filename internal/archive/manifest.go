package archive

import (
	"fmt"
	"sort"
	"time"
)

// FormatVersion is the archive layout version written by this package
const FormatVersion = 1

// Entry names inside the tar stream
const (
	ManifestEntry = "manifest.json"
	SchemaEntry   = "schema.json"
	DataPrefix    = "data/"
	FilesPrefix   = "files/"
	segmentSuffix = ".json"
)

// Manifest summarises an archive
type Manifest struct {
	FormatVersion int                    `json:"formatVersion"`
	CreatedAt     time.Time              `json:"createdAt"`
	Label         string                 `json:"label,omitempty"`
	CreatedBy     string                 `json:"createdBy,omitempty"`
	ToolVersion   string                 `json:"toolVersion,omitempty"`
	Dialect       string                 `json:"dialect"`
	Database      string                 `json:"database"`
	Compression   Compression            `json:"compression"`
	TableCount    int                    `json:"tableCount"`
	TotalRows     int64                  `json:"totalRows"`
	TableCounts   map[string]int64       `json:"tableCounts"`
	Segments      map[string]SegmentInfo `json:"segments,omitempty"`
	IncludesFiles bool                   `json:"includesFiles"`
	FileCount     int                    `json:"fileCount,omitempty"`
}

// SegmentInfo records the size and blake2b-256 digest of a data segment
type SegmentInfo struct {
	Rows   int64  `json:"rows"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"digest"`
}

// NewManifest creates an empty manifest stamped with the current UTC time
func NewManifest(dialect, database string, compression Compression) *Manifest {
	return &Manifest{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Dialect:       dialect,
		Database:      database,
		Compression:   compression,
		TableCounts:   make(map[string]int64),
		Segments:      make(map[string]SegmentInfo),
	}
}

// AddSegment records a finished table segment and keeps the totals in step
func (m *Manifest) AddSegment(table string, info SegmentInfo) {
	if m.TableCounts == nil {
		m.TableCounts = make(map[string]int64)
	}
	if m.Segments == nil {
		m.Segments = make(map[string]SegmentInfo)
	}
	if prev, ok := m.TableCounts[table]; ok {
		m.TotalRows -= prev
	} else {
		m.TableCount++
	}
	m.TableCounts[table] = info.Rows
	m.Segments[table] = info
	m.TotalRows += info.Rows
}

// Tables returns the archived table names in sorted order
func (m *Manifest) Tables() []string {
	names := make([]string, 0, len(m.TableCounts))
	for name := range m.TableCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the manifest is internally consistent
func (m *Manifest) Validate() error {
	if m.FormatVersion < 1 || m.FormatVersion > FormatVersion {
		return fmt.Errorf("unsupported archive format version %d", m.FormatVersion)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("manifest has no creation time")
	}
	if m.TableCount != len(m.TableCounts) {
		return fmt.Errorf("manifest lists %d tables but counts %d", m.TableCount, len(m.TableCounts))
	}

	var total int64
	for table, rows := range m.TableCounts {
		if err := ValidateTableName(table); err != nil {
			return err
		}
		if rows < 0 {
			return fmt.Errorf("negative row count for table %s", table)
		}
		if seg, ok := m.Segments[table]; ok && seg.Rows != rows {
			return fmt.Errorf("segment for table %s records %d rows, manifest counts %d", table, seg.Rows, rows)
		}
		total += rows
	}
	if total != m.TotalRows {
		return fmt.Errorf("manifest total rows %d does not match table counts %d", m.TotalRows, total)
	}
	return nil
}

// ValidateTableName rejects names that cannot be used as a segment entry
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("empty table name")
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

func segmentEntry(table string) string {
	return DataPrefix + table + segmentSuffix
}
