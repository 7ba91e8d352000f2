package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CompatibilityReport is the result of comparing an archived snapshot with
// the live catalog it is about to be restored into
type CompatibilityReport struct {
	Warnings []Warning
	Errors   []ValidationError
}

// Warning represents a difference that may make the restore fail or lose data
type Warning struct {
	Type       WarningType
	Severity   WarningSeverity
	Message    string
	TableName  string
	ColumnName string
	Suggestion string
}

// ValidationError represents a difference that prevents the restore
type ValidationError struct {
	Type       ErrorType
	Message    string
	TableName  string
	ColumnName string
}

// WarningType represents the type of warning
type WarningType string

const (
	WarningTypeDataLoss      WarningType = "DATA_LOSS"
	WarningTypeCompatibility WarningType = "COMPATIBILITY"
	WarningTypeConstraint    WarningType = "CONSTRAINT"
)

// WarningSeverity represents the severity level of a warning
type WarningSeverity string

const (
	SeverityLow    WarningSeverity = "LOW"
	SeverityMedium WarningSeverity = "MEDIUM"
	SeverityHigh   WarningSeverity = "HIGH"
)

// ErrorType represents the type of validation error
type ErrorType string

const (
	ErrorTypeIncompatible ErrorType = "INCOMPATIBLE"
)

// SchemaValidator compares archived and live table definitions
type SchemaValidator struct {
	// StrictMode promotes HIGH severity warnings to errors
	StrictMode bool
}

// NewSchemaValidator creates a new SchemaValidator instance
func NewSchemaValidator(strictMode bool) *SchemaValidator {
	return &SchemaValidator{
		StrictMode: strictMode,
	}
}

// CheckRestore compares the named tables of the archived snapshot with the
// live one. Tables absent from either side are skipped.
func (sv *SchemaValidator) CheckRestore(archived, live *Snapshot, tables []string) *CompatibilityReport {
	report := &CompatibilityReport{
		Warnings: make([]Warning, 0),
		Errors:   make([]ValidationError, 0),
	}
	if archived == nil || live == nil {
		return report
	}

	names := append([]string(nil), tables...)
	sort.Strings(names)
	for _, name := range names {
		old, okOld := archived.Tables[name]
		cur, okCur := live.Tables[name]
		if !okOld || !okCur {
			continue
		}
		sv.checkTable(old, cur, report)
	}

	if sv.StrictMode {
		kept := report.Warnings[:0]
		for _, w := range report.Warnings {
			if w.Severity != SeverityHigh {
				kept = append(kept, w)
				continue
			}
			report.Errors = append(report.Errors, ValidationError{
				Type: ErrorTypeIncompatible, Message: w.Message, TableName: w.TableName, ColumnName: w.ColumnName,
			})
		}
		report.Warnings = kept
	}
	return report
}

func (sv *SchemaValidator) checkTable(archived, live *Table, report *CompatibilityReport) {
	for _, col := range archived.Columns {
		liveCol := live.Column(col.Name)
		if liveCol == nil {
			report.Errors = append(report.Errors, ValidationError{
				Type:       ErrorTypeIncompatible,
				Message:    fmt.Sprintf("column %s.%s is in the archive but not in the database", archived.Name, col.Name),
				TableName:  archived.Name,
				ColumnName: col.Name,
			})
			continue
		}
		if liveCol.Generated && !col.Generated {
			report.Warnings = append(report.Warnings, Warning{
				Type:       WarningTypeDataLoss,
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("column %s.%s is now generated; archived values are discarded", archived.Name, col.Name),
				TableName:  archived.Name,
				ColumnName: col.Name,
			})
			continue
		}
		sv.checkColumn(archived.Name, col, liveCol, report)
	}

	for _, col := range live.Columns {
		// only columns without archived values: new ones and formerly generated ones
		if a := archived.Column(col.Name); col.Generated || (a != nil && !a.Generated) {
			continue
		}
		if !col.IsNullable && col.DefaultValue == nil && !col.HasSequence() && !contains(live.PrimaryKey, col.Name) {
			report.Warnings = append(report.Warnings, Warning{
				Type:       WarningTypeConstraint,
				Severity:   SeverityHigh,
				Message:    fmt.Sprintf("column %s.%s is NOT NULL without a default and has no archived values", live.Name, col.Name),
				TableName:  live.Name,
				ColumnName: col.Name,
				Suggestion: "Add a default or make the column nullable before restoring",
			})
			continue
		}
		report.Warnings = append(report.Warnings, Warning{
			Type:       WarningTypeCompatibility,
			Severity:   SeverityLow,
			Message:    fmt.Sprintf("column %s.%s is not in the archive and will be left at its default", live.Name, col.Name),
			TableName:  live.Name,
			ColumnName: col.Name,
		})
	}

	if !sameSet(archived.PrimaryKey, live.PrimaryKey) {
		report.Warnings = append(report.Warnings, Warning{
			Type:      WarningTypeConstraint,
			Severity:  SeverityMedium,
			Message:   fmt.Sprintf("primary key of %s changed from (%s) to (%s)", live.Name, strings.Join(archived.PrimaryKey, ", "), strings.Join(live.PrimaryKey, ", ")),
			TableName: live.Name,
		})
	}
}

func (sv *SchemaValidator) checkColumn(table string, archived, live *Column, report *CompatibilityReport) {
	oldType := strings.ToLower(archived.DataType)
	newType := strings.ToLower(live.DataType)

	if sv.extractBaseType(oldType) != sv.extractBaseType(newType) {
		w := Warning{
			Type:       WarningTypeCompatibility,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("column %s.%s changed type from %s to %s", table, archived.Name, archived.DataType, live.DataType),
			TableName:  table,
			ColumnName: archived.Name,
		}
		if sv.isDataLossyTypeChange(oldType, newType) {
			w.Type = WarningTypeDataLoss
			w.Severity = SeverityHigh
			w.Suggestion = "Archived values may be truncated or rejected"
		}
		report.Warnings = append(report.Warnings, w)
	} else if sv.isSizeReduction(archived, live) {
		report.Warnings = append(report.Warnings, Warning{
			Type:       WarningTypeDataLoss,
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("column %s.%s is narrower than when archived (%s to %s)", table, archived.Name, archived.DataType, live.DataType),
			TableName:  table,
			ColumnName: archived.Name,
			Suggestion: "Archived values may be truncated or rejected",
		})
	}

	if archived.IsNullable && !live.IsNullable {
		report.Warnings = append(report.Warnings, Warning{
			Type:       WarningTypeConstraint,
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("column %s.%s no longer accepts NULL", table, archived.Name),
			TableName:  table,
			ColumnName: archived.Name,
			Suggestion: "Archived rows with NULL in this column will abort the restore",
		})
	}
}

// Type families between which a change can lose information
var lossyTypeChanges = map[string][]string{
	"text":      {"varchar", "char", "int", "integer", "bigint", "smallint", "tinyint"},
	"longtext":  {"text", "mediumtext", "varchar", "char"},
	"varchar":   {"char", "int", "integer", "bigint", "smallint", "tinyint"},
	"bigint":    {"int", "integer", "smallint", "tinyint"},
	"int":       {"smallint", "tinyint"},
	"integer":   {"smallint", "tinyint"},
	"decimal":   {"int", "integer", "bigint", "smallint"},
	"numeric":   {"int", "integer", "bigint", "smallint"},
	"double":    {"float", "real", "int", "integer"},
	"datetime":  {"date", "time"},
	"timestamp": {"date", "time"},
}

func (sv *SchemaValidator) isDataLossyTypeChange(oldType, newType string) bool {
	return contains(lossyTypeChanges[sv.extractBaseType(oldType)], sv.extractBaseType(newType))
}

func (sv *SchemaValidator) isSizeReduction(archived, live *Column) bool {
	if archived.CharMaxLength != nil && live.CharMaxLength != nil {
		return *live.CharMaxLength < *archived.CharMaxLength
	}
	if archived.NumericPrecision != nil && live.NumericPrecision != nil {
		return *live.NumericPrecision < *archived.NumericPrecision
	}
	oldSize, newSize := sv.extractSize(archived.DataType), sv.extractSize(live.DataType)
	return oldSize > 0 && newSize > 0 && newSize < oldSize
}

func (sv *SchemaValidator) extractBaseType(dataType string) string {
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexAny(dataType, "( "); i >= 0 {
		dataType = dataType[:i]
	}
	return dataType
}

var sizePattern = regexp.MustCompile(`\((\d+)`)

func (sv *SchemaValidator) extractSize(dataType string) int {
	m := sizePattern.FindStringSubmatch(dataType)
	if m == nil {
		return 0
	}
	size, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return size
}

// IsCompatible reports whether the restore may proceed
func (r *CompatibilityReport) IsCompatible() bool {
	return len(r.Errors) == 0
}

// Messages returns every error and warning message, errors first
func (r *CompatibilityReport) Messages() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	for _, w := range r.Warnings {
		out = append(out, fmt.Sprintf("[%s] %s", w.Severity, w.Message))
	}
	return out
}

// Summary returns a brief summary of the report
func (r *CompatibilityReport) Summary() string {
	if len(r.Warnings) == 0 && len(r.Errors) == 0 {
		return "No issues"
	}

	var parts []string
	if len(r.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", len(r.Errors)))
	}
	if len(r.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", len(r.Warnings)))
	}
	return strings.Join(parts, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !contains(b, v) {
			return false
		}
	}
	return true
}
