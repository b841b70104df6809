package schema

import (
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// Field describes one exported record field for flag derivation and
// transport schema building.
type Field struct {
	Name     string // wire name (json tag, falling back to Go name)
	GoName   string
	Kind     reflect.Kind
	Type     reflect.Type
	Required bool
	Default  string // literal from the default tag, empty if none
	Doc      string // from the doc tag
}

// Fields returns descriptors for every exported field of the record type
// t, in declaration order. Fields tagged json:"-" are skipped.
func Fields(t reflect.Type) []Field {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	out := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := wireName(sf)
		if name == "-" {
			continue
		}
		out = append(out, Field{
			Name:     name,
			GoName:   sf.Name,
			Kind:     sf.Type.Kind(),
			Type:     sf.Type,
			Required: strings.Contains(sf.Tag.Get("validate"), "required"),
			Default:  sf.Tag.Get("default"),
			Doc:      sf.Tag.Get("doc"),
		})
	}
	return out
}

func wireName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return sf.Name
	}
	return name
}

// JSONSchema reflects a record type into a JSON schema document. The
// result is self-contained (no $ref indirection) so adapters can embed
// it directly in index documents and tool definitions.
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return reflector.ReflectFromType(t)
}
