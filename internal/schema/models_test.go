package schema

import (
	"encoding/json"
	"testing"

	"dbvault/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	snap := NewSnapshot("shop", "postgres")

	users := NewTable("users")
	users.Columns = []*Column{
		{Name: "id", DataType: "integer", Position: 1},
		{Name: "avatar", DataType: "bytea", IsNullable: true, Position: 2},
	}
	users.PrimaryKey = []string{"id"}

	events := NewTable("events")
	events.Columns = []*Column{
		{Name: "at", DataType: "timestamp", Position: 1},
		{Name: "user_id", DataType: "integer", Position: 2},
	}
	events.ForeignKeys = []*ForeignKey{{Name: "events_user_fk", Table: "events", Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"}}

	snap.Tables["users"] = users
	snap.Tables["events"] = events
	return snap
}

func TestSnapshot_Validate(t *testing.T) {
	snap := sampleSnapshot()
	assert.NoError(t, snap.Validate())

	snap.Tables["users"].PrimaryKey = []string{"uuid"}
	assert.ErrorContains(t, snap.Validate(), "primary key column uuid does not exist")

	snap = sampleSnapshot()
	snap.Tables["events"].ForeignKeys[0].Column = "account_id"
	assert.ErrorContains(t, snap.Validate(), "unknown column account_id")

	snap = sampleSnapshot()
	snap.Tables["ghost"] = NewTable("ghost")
	assert.ErrorContains(t, snap.Validate(), "no columns")

	snap = sampleSnapshot()
	snap.Tables["alias"] = snap.Tables["users"]
	assert.ErrorContains(t, snap.Validate(), "does not match")
}

func TestTable_OrderColumns(t *testing.T) {
	snap := sampleSnapshot()

	assert.Equal(t, []string{"id"}, snap.Tables["users"].OrderColumns())
	assert.Equal(t, []string{"at", "user_id"}, snap.Tables["events"].OrderColumns())

	audit := NewTable("audit")
	audit.Columns = []*Column{
		{Name: "payload", DataType: "json", Position: 1},
		{Name: "at", DataType: "timestamp with time zone", Position: 2},
		{Name: "doc", DataType: "xml", Position: 3},
		{Name: "origin", DataType: "point", Position: 4},
		{Name: "raw", DataType: "bytea", Position: 5},
		{Name: "tags", DataType: "jsonb", Position: 6},
	}
	assert.Equal(t, []string{"at", "tags"}, audit.OrderColumns())

	blobs := NewTable("blobs")
	blobs.Columns = []*Column{
		{Name: "payload", DataType: "json", Position: 1},
		{Name: "data", DataType: "BLOB", Position: 2},
	}
	assert.Empty(t, blobs.OrderColumns())
}

func TestTable_ExportColumns(t *testing.T) {
	table := NewTable("items")
	table.Columns = []*Column{
		{Name: "id", DataType: "integer", Identity: "ALWAYS", Position: 1},
		{Name: "price", DataType: "numeric", Position: 2},
		{Name: "price_with_tax", DataType: "numeric", Generated: true, Position: 3},
	}

	assert.Equal(t, []database.SelectColumn{
		{Name: "id", DataType: "integer"},
		{Name: "price", DataType: "numeric"},
	}, table.ExportColumns())
	assert.Equal(t, map[string]bool{"price_with_tax": true}, table.GeneratedColumns())
}

func TestColumn_Sequences(t *testing.T) {
	serial := "nextval('items_id_seq'::regclass)"
	literal := "0"

	tests := []struct {
		name     string
		column   Column
		always   bool
		sequence bool
	}{
		{"identity always", Column{Identity: "ALWAYS"}, true, true},
		{"identity by default", Column{Identity: "BY DEFAULT"}, false, true},
		{"serial", Column{DefaultValue: &serial}, false, true},
		{"literal default", Column{DefaultValue: &literal}, false, false},
		{"plain", Column{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.always, tt.column.AlwaysIdentity())
			assert.Equal(t, tt.sequence, tt.column.HasSequence())
		})
	}
}

func TestColumn_IsBinary(t *testing.T) {
	tests := map[string]bool{
		"bytea":          true,
		"BLOB":           true,
		"varbinary(255)": true,
		"longblob":       true,
		"text":           false,
		"varchar(20)":    false,
		"":               false,
	}
	for dataType, want := range tests {
		col := &Column{Name: "c", DataType: dataType}
		assert.Equal(t, want, col.IsBinary(), dataType)
	}
}

func TestSnapshot_ForeignKeys(t *testing.T) {
	edges := sampleSnapshot().ForeignKeys()
	require.Len(t, edges, 1)
	assert.Equal(t, "events", edges[0].Table)
}

func TestSnapshot_JSON(t *testing.T) {
	snap := sampleSnapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap.TableNames(), decoded.TableNames())
	assert.Equal(t, []string{"id", "avatar"}, decoded.Tables["users"].ColumnNames())
	assert.Equal(t, "users", decoded.Tables["events"].ForeignKeys[0].ReferencedTable)
}
