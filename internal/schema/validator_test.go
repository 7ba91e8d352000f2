package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func snapshotOf(tables ...*Table) *Snapshot {
	s := NewSnapshot("app", "mysql")
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

func usersTable(cols ...*Column) *Table {
	t := NewTable("users")
	t.PrimaryKey = []string{"id"}
	t.Columns = append([]*Column{{Name: "id", DataType: "int", Position: 1}}, cols...)
	return t
}

func TestCheckRestore_Identical(t *testing.T) {
	archived := snapshotOf(usersTable(&Column{Name: "email", DataType: "varchar(255)", CharMaxLength: int64Ptr(255)}))
	live := snapshotOf(usersTable(&Column{Name: "email", DataType: "varchar(255)", CharMaxLength: int64Ptr(255)}))

	report := NewSchemaValidator(false).CheckRestore(archived, live, []string{"users"})

	assert.True(t, report.IsCompatible())
	assert.Empty(t, report.Warnings)
	assert.Equal(t, "No issues", report.Summary())
}

func TestCheckRestore_MissingColumnIsError(t *testing.T) {
	archived := snapshotOf(usersTable(&Column{Name: "email", DataType: "text"}, &Column{Name: "nickname", DataType: "text"}))
	live := snapshotOf(usersTable(&Column{Name: "email", DataType: "text"}))

	report := NewSchemaValidator(false).CheckRestore(archived, live, []string{"users"})

	require.False(t, report.IsCompatible())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "nickname", report.Errors[0].ColumnName)
	assert.Equal(t, ErrorTypeIncompatible, report.Errors[0].Type)
	assert.Equal(t, "1 errors", report.Summary())
}

func TestCheckRestore_Warnings(t *testing.T) {
	tests := []struct {
		name     string
		archived *Column
		live     []*Column
		severity WarningSeverity
		wType    WarningType
	}{
		{
			name:     "narrowed varchar",
			archived: &Column{Name: "email", DataType: "varchar(255)", CharMaxLength: int64Ptr(255), IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "varchar(64)", CharMaxLength: int64Ptr(64), IsNullable: true}},
			severity: SeverityHigh,
			wType:    WarningTypeDataLoss,
		},
		{
			name:     "lossy type change",
			archived: &Column{Name: "email", DataType: "text", IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "char(10)", IsNullable: true}},
			severity: SeverityHigh,
			wType:    WarningTypeDataLoss,
		},
		{
			name:     "compatible type change",
			archived: &Column{Name: "email", DataType: "varchar(40)", IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "text", IsNullable: true}},
			severity: SeverityMedium,
			wType:    WarningTypeCompatibility,
		},
		{
			name:     "became not null",
			archived: &Column{Name: "email", DataType: "text", IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "text"}},
			severity: SeverityMedium,
			wType:    WarningTypeConstraint,
		},
		{
			name:     "new nullable column",
			archived: &Column{Name: "email", DataType: "text", IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "text", IsNullable: true}, {Name: "bio", DataType: "text", IsNullable: true}},
			severity: SeverityLow,
			wType:    WarningTypeCompatibility,
		},
		{
			name:     "new required column",
			archived: &Column{Name: "email", DataType: "text", IsNullable: true},
			live:     []*Column{{Name: "email", DataType: "text", IsNullable: true}, {Name: "tenant", DataType: "int"}},
			severity: SeverityHigh,
			wType:    WarningTypeConstraint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archived := snapshotOf(usersTable(tt.archived))
			live := snapshotOf(usersTable(tt.live...))

			report := NewSchemaValidator(false).CheckRestore(archived, live, []string{"users"})

			assert.True(t, report.IsCompatible())
			require.Len(t, report.Warnings, 1)
			assert.Equal(t, tt.severity, report.Warnings[0].Severity)
			assert.Equal(t, tt.wType, report.Warnings[0].Type)
			assert.Equal(t, "users", report.Warnings[0].TableName)
		})
	}
}

func TestCheckRestore_NewColumnWithDefault(t *testing.T) {
	def := "0"
	archived := snapshotOf(usersTable())
	live := snapshotOf(usersTable(&Column{Name: "score", DataType: "int", DefaultValue: &def}))

	report := NewSchemaValidator(false).CheckRestore(archived, live, []string{"users"})

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, SeverityLow, report.Warnings[0].Severity)
}

func TestCheckRestore_GeneratedColumns(t *testing.T) {
	archived := snapshotOf(usersTable(
		&Column{Name: "email", DataType: "text"},
		&Column{Name: "email_lower", DataType: "text", Generated: true},
		&Column{Name: "score", DataType: "int"},
	))
	live := snapshotOf(usersTable(
		&Column{Name: "email", DataType: "text"},
		&Column{Name: "email_lower", DataType: "text", Generated: true},
		&Column{Name: "score", DataType: "int", Generated: true},
		&Column{Name: "email_domain", DataType: "text", Generated: true},
		&Column{Name: "seq", DataType: "bigint", Identity: "ALWAYS"},
	))

	report := NewSchemaValidator(true).CheckRestore(archived, live, []string{"users"})

	require.True(t, report.IsCompatible(), report.Summary())
	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "score", report.Warnings[0].ColumnName)
	assert.Equal(t, WarningTypeDataLoss, report.Warnings[0].Type)
	assert.Contains(t, report.Warnings[0].Message, "now generated")
	assert.Equal(t, "seq", report.Warnings[1].ColumnName)
	assert.Equal(t, SeverityLow, report.Warnings[1].Severity)
}

func TestCheckRestore_PrimaryKeyChange(t *testing.T) {
	archived := snapshotOf(usersTable(&Column{Name: "email", DataType: "text"}))
	liveTable := usersTable(&Column{Name: "email", DataType: "text"})
	liveTable.PrimaryKey = []string{"email"}

	report := NewSchemaValidator(false).CheckRestore(archived, snapshotOf(liveTable), []string{"users"})

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0].Message, "primary key of users changed from (id) to (email)")
}

func TestCheckRestore_StrictModePromotesHighWarnings(t *testing.T) {
	archived := snapshotOf(usersTable(&Column{Name: "email", DataType: "varchar(255)", CharMaxLength: int64Ptr(255), IsNullable: true}))
	live := snapshotOf(usersTable(&Column{Name: "email", DataType: "varchar(64)", CharMaxLength: int64Ptr(64)}))

	report := NewSchemaValidator(true).CheckRestore(archived, live, []string{"users"})

	assert.False(t, report.IsCompatible())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "narrower")
	require.Len(t, report.Warnings, 1, "medium warnings stay warnings")
	assert.Equal(t, SeverityMedium, report.Warnings[0].Severity)
	assert.Equal(t, "1 errors, 1 warnings", report.Summary())

	msgs := report.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "[MEDIUM]")
}

func TestCheckRestore_SkipsTablesMissingOnEitherSide(t *testing.T) {
	archived := snapshotOf(usersTable(), NewTable("audit"))
	live := snapshotOf(usersTable())

	report := NewSchemaValidator(false).CheckRestore(archived, live, []string{"users", "audit", "ghost"})
	assert.True(t, report.IsCompatible())
	assert.Empty(t, report.Warnings)

	assert.True(t, NewSchemaValidator(false).CheckRestore(nil, live, []string{"users"}).IsCompatible())
}

func TestExtractSize(t *testing.T) {
	sv := NewSchemaValidator(false)
	assert.Equal(t, 255, sv.extractSize("varchar(255)"))
	assert.Equal(t, 10, sv.extractSize("decimal(10,2)"))
	assert.Equal(t, 0, sv.extractSize("text"))
	assert.Equal(t, "int", sv.extractBaseType("INT(11) UNSIGNED"))
}
