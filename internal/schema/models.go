package schema

import (
	"fmt"
	"sort"
	"strings"

	"dbvault/internal/database"
)

// Snapshot is the catalog structure of one database at a point in time
type Snapshot struct {
	Database string            `json:"database"`
	Dialect  string            `json:"dialect"`
	Tables   map[string]*Table `json:"tables"`
}

// Table describes one base table
type Table struct {
	Name        string        `json:"name"`
	Columns     []*Column     `json:"columns"`
	PrimaryKey  []string      `json:"primary_key"`
	ForeignKeys []*ForeignKey `json:"foreign_keys,omitempty"`
}

// Column describes one table column in ordinal order. Generated columns are
// computed by the server and never written. Identity is ALWAYS or BY DEFAULT
// for identity and auto-increment columns.
type Column struct {
	Name             string  `json:"name"`
	DataType         string  `json:"data_type"`
	IsNullable       bool    `json:"is_nullable"`
	DefaultValue     *string `json:"default_value,omitempty"`
	CharMaxLength    *int64  `json:"char_max_length,omitempty"`
	NumericPrecision *int64  `json:"numeric_precision,omitempty"`
	NumericScale     *int64  `json:"numeric_scale,omitempty"`
	Generated        bool    `json:"generated,omitempty"`
	Identity         string  `json:"identity,omitempty"`
	Position         int     `json:"position"`
}

// ForeignKey is a single column-level reference from Table.Column to ReferencedTable.ReferencedColumn
type ForeignKey struct {
	Name             string `json:"name"`
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// NewSnapshot creates an empty snapshot
func NewSnapshot(database, dialect string) *Snapshot {
	return &Snapshot{
		Database: database,
		Dialect:  dialect,
		Tables:   make(map[string]*Table),
	}
}

// NewTable creates an empty table
func NewTable(name string) *Table {
	return &Table{
		Name:        name,
		Columns:     make([]*Column, 0),
		PrimaryKey:  make([]string, 0),
		ForeignKeys: make([]*ForeignKey, 0),
	}
}

// TableNames returns the table names in sorted order
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForeignKeys returns every foreign key edge of the snapshot, grouped by table in name order
func (s *Snapshot) ForeignKeys() []ForeignKey {
	var edges []ForeignKey
	for _, name := range s.TableNames() {
		for _, fk := range s.Tables[name].ForeignKeys {
			edges = append(edges, *fk)
		}
	}
	return edges
}

// Validate checks structural consistency of the snapshot
func (s *Snapshot) Validate() error {
	if s.Tables == nil {
		return fmt.Errorf("snapshot has no table map")
	}
	for name, table := range s.Tables {
		if table == nil {
			return fmt.Errorf("table %s is nil", name)
		}
		if table.Name != name {
			return fmt.Errorf("table key %s does not match table name %s", name, table.Name)
		}
		if err := table.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks that primary key and foreign key columns exist
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}
	for _, pk := range t.PrimaryKey {
		if t.Column(pk) == nil {
			return fmt.Errorf("primary key column %s does not exist", pk)
		}
	}
	for _, fk := range t.ForeignKeys {
		if t.Column(fk.Column) == nil {
			return fmt.Errorf("foreign key %s references unknown column %s", fk.Name, fk.Column)
		}
	}
	return nil
}

// Column returns the named column or nil
func (t *Table) Column(name string) *Column {
	for _, col := range t.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// ColumnNames returns column names in ordinal order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// OrderColumns returns the columns used to page through the table deterministically:
// the primary key when there is one, otherwise every column the server can sort by.
// An empty result means the table cannot be paged and is read in one pass.
func (t *Table) OrderColumns() []string {
	if len(t.PrimaryKey) > 0 {
		return t.PrimaryKey
	}
	var names []string
	for _, col := range t.Columns {
		if col.IsOrderable() {
			names = append(names, col.Name)
		}
	}
	return names
}

// ExportColumns returns the stored columns in ordinal order. Generated columns
// are left out; the server recomputes them on insert.
func (t *Table) ExportColumns() []database.SelectColumn {
	columns := make([]database.SelectColumn, 0, len(t.Columns))
	for _, col := range t.Columns {
		if !col.Generated {
			columns = append(columns, database.SelectColumn{Name: col.Name, DataType: col.DataType})
		}
	}
	return columns
}

// GeneratedColumns returns the set of computed columns
func (t *Table) GeneratedColumns() map[string]bool {
	generated := make(map[string]bool)
	for _, col := range t.Columns {
		if col.Generated {
			generated[col.Name] = true
		}
	}
	return generated
}

// BinaryColumns returns the set of columns whose values are raw bytes
func (t *Table) BinaryColumns() map[string]bool {
	binary := make(map[string]bool)
	for _, col := range t.Columns {
		if col.IsBinary() {
			binary[col.Name] = true
		}
	}
	return binary
}

var binaryTypes = map[string]bool{
	"binary":     true,
	"varbinary":  true,
	"blob":       true,
	"tinyblob":   true,
	"mediumblob": true,
	"longblob":   true,
	"bytea":      true,
}

// unorderableTypes have no default sort order on at least one supported server
var unorderableTypes = map[string]bool{
	"json":       true,
	"xml":        true,
	"point":      true,
	"line":       true,
	"lseg":       true,
	"box":        true,
	"path":       true,
	"polygon":    true,
	"circle":     true,
	"geometry":   true,
	"linestring": true,
}

// IsBinary reports whether the column stores raw bytes
func (c *Column) IsBinary() bool {
	return binaryTypes[c.baseType()]
}

// IsOrderable reports whether the column can appear in ORDER BY on every supported server
func (c *Column) IsOrderable() bool {
	base := c.baseType()
	return !binaryTypes[base] && !unorderableTypes[base]
}

// AlwaysIdentity reports whether the server rejects explicit values for the
// column unless the insert overrides it
func (c *Column) AlwaysIdentity() bool {
	return strings.EqualFold(c.Identity, "ALWAYS")
}

// HasSequence reports whether the column draws its values from a sequence
func (c *Column) HasSequence() bool {
	if c.Identity != "" {
		return true
	}
	return c.DefaultValue != nil && strings.HasPrefix(strings.ToLower(*c.DefaultValue), "nextval(")
}

func (c *Column) baseType() string {
	dataType := strings.ToLower(strings.TrimSpace(c.DataType))
	if i := strings.IndexByte(dataType, '('); i >= 0 {
		dataType = strings.TrimSpace(dataType[:i])
	}
	return dataType
}
