package schema

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
)

type nameArgs struct {
	Name  string `json:"name" validate:"required" doc:"who to greet"`
	Count int    `json:"count" default:"1"`
}

func TestIsRecord(t *testing.T) {
	if !IsRecord(reflect.TypeOf(nameArgs{})) {
		t.Errorf("struct should be a record")
	}
	if !IsRecord(reflect.TypeOf(&nameArgs{})) {
		t.Errorf("struct pointer should be a record")
	}
	if IsRecord(reflect.TypeOf("hi")) {
		t.Errorf("string is not a record")
	}
	if IsRecord(reflect.TypeOf(map[string]any{})) {
		t.Errorf("map is not a record")
	}
	if IsRecord(reflect.TypeOf(time.Now())) {
		t.Errorf("time.Time is not a record")
	}
}

func TestCoerceFromMap(t *testing.T) {
	got, err := Coerce(reflect.TypeOf(&nameArgs{}), map[string]any{"name": "Ann", "count": 3})
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	args, ok := got.(*nameArgs)
	if !ok {
		t.Fatalf("expected *nameArgs, got %T", got)
	}
	if args.Name != "Ann" || args.Count != 3 {
		t.Errorf("unexpected decode: %+v", args)
	}
}

func TestCoerceRejectsWrongFieldType(t *testing.T) {
	_, err := Coerce(reflect.TypeOf(&nameArgs{}), map[string]any{"name": 5})
	if !qserrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCoerceRejectsUnrelatedValue(t *testing.T) {
	_, err := Coerce(reflect.TypeOf(&nameArgs{}), 42)
	if !qserrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCoerceRequiredField(t *testing.T) {
	_, err := Coerce(reflect.TypeOf(&nameArgs{}), map[string]any{"count": 2})
	if !qserrors.IsValidation(err) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
}

func TestCoerceFromJSON(t *testing.T) {
	got, err := Coerce(reflect.TypeOf(&nameArgs{}), json.RawMessage(`{"name":"Bo"}`))
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if got.(*nameArgs).Name != "Bo" {
		t.Errorf("unexpected decode: %+v", got)
	}
}

func TestCoerceInstancePassthrough(t *testing.T) {
	in := &nameArgs{Name: "Cy"}
	got, err := Coerce(reflect.TypeOf(&nameArgs{}), in)
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if got != in {
		t.Errorf("pointer instance should pass through unchanged")
	}
}

func TestCoerceWeakParsesStrings(t *testing.T) {
	got, err := CoerceWeak(reflect.TypeOf(&nameArgs{}), map[string]string{"name": "Di", "count": "7"})
	if err != nil {
		t.Fatalf("coerce weak: %v", err)
	}
	if got.(*nameArgs).Count != 7 {
		t.Errorf("expected weak int parse, got %+v", got)
	}
}

func TestFields(t *testing.T) {
	fields := Fields(reflect.TypeOf(nameArgs{}))
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Name != "name" || !fields[0].Required || fields[0].Doc != "who to greet" {
		t.Errorf("unexpected first field: %+v", fields[0])
	}
	if fields[1].Default != "1" || fields[1].Kind != reflect.Int {
		t.Errorf("unexpected second field: %+v", fields[1])
	}
}

func TestJSONSchema(t *testing.T) {
	s := JSONSchema(reflect.TypeOf(nameArgs{}))
	if s.Properties == nil {
		t.Fatalf("expected properties")
	}
	if _, ok := s.Properties.Get("name"); !ok {
		t.Errorf("expected name property in schema")
	}
}
