package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one table row as an ordered column -> value mapping. Column order
// follows the source table and is kept through JSON encoding.
type Row struct {
	Columns []string
	Values  []any
}

// NewRow pairs columns with values; both slices must have the same length
func NewRow(columns []string, values []any) Row {
	return Row{Columns: columns, Values: values}
}

// Len returns the number of columns
func (r Row) Len() int {
	return len(r.Columns)
}

// MarshalJSON writes the row as a JSON object with keys in column order
func (r Row) MarshalJSON() ([]byte, error) {
	if len(r.Columns) != len(r.Values) {
		return nil, fmt.Errorf("row has %d columns but %d values", len(r.Columns), len(r.Values))
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Integral numbers become
// int64; other numbers stay json.Number so decimals keep their exact text.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return r.decodeFrom(dec)
}

func (r *Row) decodeFrom(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object, got %v", tok)
	}

	r.Columns = r.Columns[:0]
	r.Values = r.Values[:0]
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string, got %v", keyTok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		value, err = normalizeDecoded(value)
		if err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}

		r.Columns = append(r.Columns, key)
		r.Values = append(r.Values, value)
	}

	tok, err = dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '}' {
		return fmt.Errorf("unterminated row object")
	}
	return nil
}

func normalizeDecoded(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val, nil
	case map[string]any, []any:
		// structured column values are stored back as their JSON text
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}
