// Package frame defines the closed capability interface for tabular
// results. Queryables that produce row-oriented data return a Frame (or
// a Schema, which pairs a Frame with a structured-record row type)
// instead of a concrete tabular library type; adapters consume rows as
// structured records without knowing the backing container.
package frame

import (
	"reflect"

	"github.com/invopop/jsonschema"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/schema"
)

// Frame is the tabular capability contract: a container that can report
// its columns and produce its rows as generic records.
type Frame interface {
	// Columns returns the column names in declaration order.
	Columns() []string
	// Records materializes every row as a wire-shaped map.
	Records() []map[string]any
	// Len returns the number of rows.
	Len() int
}

// mapFrame is the basic Frame backed by a row slice.
type mapFrame struct {
	columns []string
	rows    []map[string]any
}

func (f *mapFrame) Columns() []string         { return f.columns }
func (f *mapFrame) Records() []map[string]any { return f.rows }
func (f *mapFrame) Len() int                  { return len(f.rows) }

// FromMaps builds a Frame from pre-shaped rows. Column order follows the
// provided column list; rows are taken as-is.
func FromMaps(columns []string, rows []map[string]any) Frame {
	return &mapFrame{columns: columns, rows: rows}
}

// FromRecords builds a Frame from a slice of structured records. Columns
// are derived from the record type's wire names.
func FromRecords[T any](records []T) (Frame, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if !schema.IsRecord(t) {
		return nil, qserrors.Newf(qserrors.CodeContract, "frame rows must be structured records, got %s", t)
	}
	fields := schema.Fields(t)
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}
	rows := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		rv := reflect.ValueOf(rec)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, qserrors.Newf(qserrors.CodeValidation, "frame row at index %d is nil", i)
			}
			rv = rv.Elem()
		}
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			row[f.Name] = rv.FieldByName(f.GoName).Interface()
		}
		rows = append(rows, row)
	}
	return &mapFrame{columns: columns, rows: rows}, nil
}

// Schema wraps a Frame with an explicit structured-record row type,
// giving adapters typed row iteration and a JSON schema for the rows.
type Schema struct {
	frame   Frame
	rowType reflect.Type
}

// NewSchema pairs a frame with its row record type. The row type must be
// a structured record.
func NewSchema(f Frame, rowType reflect.Type) (*Schema, error) {
	if !schema.IsRecord(rowType) {
		return nil, qserrors.Newf(qserrors.CodeContract, "schema row type %s is not a structured record", rowType)
	}
	return &Schema{frame: f, rowType: rowType}, nil
}

// Frame returns the wrapped frame.
func (s *Schema) Frame() Frame { return s.frame }

// RowType returns the declared row record type.
func (s *Schema) RowType() reflect.Type { return s.rowType }

// Columns implements the Frame capability.
func (s *Schema) Columns() []string { return s.frame.Columns() }

// Records implements the Frame capability.
func (s *Schema) Records() []map[string]any { return s.frame.Records() }

// Len implements the Frame capability.
func (s *Schema) Len() int { return s.frame.Len() }

// Rows materializes every row as a typed record instance, validating
// each against the row schema.
func (s *Schema) Rows() ([]any, error) {
	raw := s.frame.Records()
	out := make([]any, 0, len(raw))
	for i, row := range raw {
		rec, err := schema.CoerceWeak(s.rowType, row)
		if err != nil {
			return nil, qserrors.New(qserrors.CodeValidation,
				"frame row does not match the declared row schema", err).
				WithContext("row", i)
		}
		out = append(out, rec)
	}
	return out, nil
}

// JSONSchema returns the JSON schema of the row record type.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	return schema.JSONSchema(s.rowType)
}
