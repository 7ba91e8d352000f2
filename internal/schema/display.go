package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// DisplayFormatter renders a snapshot as indented text
type DisplayFormatter struct {
	ShowDetails bool
	UseColors   bool
}

// NewDisplayFormatter creates a new DisplayFormatter instance
func NewDisplayFormatter(showDetails, useColors bool) *DisplayFormatter {
	return &DisplayFormatter{
		ShowDetails: showDetails,
		UseColors:   useColors,
	}
}

// FormatSnapshot lists every table of s. With ShowDetails each table is
// followed by its columns and foreign keys.
func (df *DisplayFormatter) FormatSnapshot(s *Snapshot) string {
	if s == nil || len(s.Tables) == 0 {
		return df.colorize("No tables", color.FgYellow) + "\n"
	}

	var output strings.Builder
	output.WriteString(df.colorize(fmt.Sprintf("Schema of %s (%s)", s.Database, s.Dialect), color.Bold))
	output.WriteString("\n")
	output.WriteString(strings.Repeat("=", 50))
	output.WriteString("\n")

	for _, name := range s.TableNames() {
		table := s.Tables[name]
		line := df.colorize(name, color.FgCyan)
		if len(table.PrimaryKey) > 0 {
			line += fmt.Sprintf(" (primary key: %s)", strings.Join(table.PrimaryKey, ", "))
		}
		output.WriteString(line + "\n")
		if df.ShowDetails {
			output.WriteString(df.formatTableDetails(table, "  "))
		}
	}

	output.WriteString("\n")
	output.WriteString(df.FormatCompactSummary(s))
	output.WriteString("\n")
	return output.String()
}

// formatTableDetails formats the columns and references of one table
func (df *DisplayFormatter) formatTableDetails(table *Table, indent string) string {
	var output strings.Builder

	columns := append([]*Column(nil), table.Columns...)
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i].Position < columns[j].Position
	})

	for _, col := range columns {
		output.WriteString(indent + df.formatColumn(col))
		output.WriteString("\n")
	}
	for _, fk := range table.ForeignKeys {
		output.WriteString(indent + df.formatForeignKey(fk))
		output.WriteString("\n")
	}
	return output.String()
}

func (df *DisplayFormatter) formatColumn(col *Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", col.Name, df.colorize(col.DataType, color.FgBlue))
	if !col.IsNullable {
		b.WriteString(" NOT NULL")
	}
	if col.DefaultValue != nil {
		fmt.Fprintf(&b, " DEFAULT %s", *col.DefaultValue)
	}
	return b.String()
}

func (df *DisplayFormatter) formatForeignKey(fk *ForeignKey) string {
	ref := fmt.Sprintf("%s -> %s.%s", fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
	if fk.Name != "" {
		ref += " [" + fk.Name + "]"
	}
	return df.colorize(ref, color.FgMagenta)
}

// GetSummary counts tables, columns and foreign keys
func (df *DisplayFormatter) GetSummary(s *Snapshot) string {
	if s == nil {
		return "0 tables"
	}
	columns, refs := 0, 0
	for _, t := range s.Tables {
		columns += len(t.Columns)
		refs += len(t.ForeignKeys)
	}
	return fmt.Sprintf("%d tables, %d columns, %d foreign keys", len(s.Tables), columns, refs)
}

// FormatCompactSummary returns a compact one-line summary
func (df *DisplayFormatter) FormatCompactSummary(s *Snapshot) string {
	return df.colorize(df.GetSummary(s), color.FgGreen)
}

// colorize applies color formatting to text if colors are enabled
func (df *DisplayFormatter) colorize(text string, attr color.Attribute) string {
	if !df.UseColors {
		return text
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(text)
}
