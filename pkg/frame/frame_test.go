package frame

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
)

type cityRow struct {
	City string `json:"city" validate:"required"`
	Pop  int64  `json:"pop"`
}

func TestFromRecords(t *testing.T) {
	f, err := FromRecords([]cityRow{
		{City: "Oslo", Pop: 700000},
		{City: "Bergen", Pop: 280000},
	})
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", f.Len())
	}
	if got := f.Columns(); !reflect.DeepEqual(got, []string{"city", "pop"}) {
		t.Errorf("unexpected columns: %v", got)
	}
	if f.Records()[0]["city"] != "Oslo" {
		t.Errorf("unexpected first row: %v", f.Records()[0])
	}
}

func TestFromRecordsRejectsNilRows(t *testing.T) {
	_, err := FromRecords([]*cityRow{
		{City: "Oslo", Pop: 700000},
		nil,
	})
	if err == nil {
		t.Fatalf("expected an error for a nil row")
	}
	qe, ok := err.(*qserrors.Error)
	if !ok || qe.Code != qserrors.CodeValidation {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFromRecordsRejectsScalars(t *testing.T) {
	if _, err := FromRecords([]int{1, 2}); err == nil {
		t.Fatalf("expected contract error for scalar rows")
	}
}

func TestSchemaRows(t *testing.T) {
	f := FromMaps([]string{"city", "pop"}, []map[string]any{
		{"city": "Oslo", "pop": 700000},
	})
	s, err := NewSchema(f, reflect.TypeOf(&cityRow{}))
	if err != nil {
		t.Fatalf("new schema: %v", err)
	}
	rows, err := s.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if rows[0].(*cityRow).City != "Oslo" {
		t.Errorf("unexpected typed row: %+v", rows[0])
	}
	if s.JSONSchema() == nil {
		t.Errorf("expected a row schema")
	}
}

func TestSchemaRowsValidates(t *testing.T) {
	f := FromMaps([]string{"city"}, []map[string]any{{"city": ""}})
	s, err := NewSchema(f, reflect.TypeOf(&cityRow{}))
	if err != nil {
		t.Fatalf("new schema: %v", err)
	}
	if _, err := s.Rows(); err == nil {
		t.Fatalf("expected validation error for empty required column")
	}
}

func TestFromRows(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "frame.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE cities (city TEXT, pop INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO cities VALUES ('Oslo', 700000), ('Bergen', 280000)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := db.Query(`SELECT city, pop FROM cities ORDER BY pop DESC`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	f, err := FromRows(rows)
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", f.Len())
	}
	if f.Records()[0]["city"] != "Oslo" {
		t.Errorf("unexpected first row: %v", f.Records()[0])
	}
}
