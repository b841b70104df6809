// Package schema implements structured-record support: coercion of raw
// transport payloads into typed record structs, declarative validation,
// and schema/field introspection for adapters and the CLI.
//
// A structured record is a plain Go struct (or pointer to one) whose
// exported fields form the contract unit. Field constraints use
// go-playground validator tags; wire names use json tags.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// IsRecord reports whether t is a structured-record type: a struct or a
// pointer to one. time.Time and friends do not qualify on their own.
func IsRecord(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	return t != reflect.TypeOf(time.Time{})
}

// New returns a pointer to a freshly allocated record of type t.
func New(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// Coerce converts value into a record of type target and validates it.
// Accepted inputs: an instance of the record (value or pointer), a
// map[string]any, or raw JSON bytes. Numeric kinds convert between each
// other, but cross-kind coercions such as number-to-string are rejected;
// use CoerceWeak for string-keyed transports like query parameters.
func Coerce(target reflect.Type, value any) (any, error) {
	return coerce(target, value, false, true)
}

// CoerceWeak is Coerce with weakly-typed decoding: string inputs are
// parsed into the field's kind. Query parameters and CLI flags arrive as
// strings and need this mode.
func CoerceWeak(target reflect.Type, value any) (any, error) {
	return coerce(target, value, true, true)
}

// Decode converts value into a record of type target without running
// field validation. Used when runtime typechecking is disabled: raw
// payloads still need a typed instance for dispatch, but nothing is
// checked beyond decodability.
func Decode(target reflect.Type, value any) (any, error) {
	return coerce(target, value, true, false)
}

func coerce(target reflect.Type, value any, weak, check bool) (any, error) {
	if !IsRecord(target) {
		return nil, qserrors.Newf(qserrors.CodeContract, "type %s is not a structured record", target)
	}
	elem := target
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}

	var out any
	switch v := value.(type) {
	case nil:
		out = reflect.New(elem).Interface()
	case json.RawMessage:
		out = reflect.New(elem).Interface()
		if err := json.Unmarshal(v, out); err != nil {
			return nil, qserrors.New(qserrors.CodeValidation,
				fmt.Sprintf("payload could not be validated as %s", elem), err)
		}
	case []byte:
		return coerce(target, json.RawMessage(v), weak, check)
	case map[string]any:
		out = reflect.New(elem).Interface()
		if err := decodeMap(v, out, weak); err != nil {
			return nil, qserrors.New(qserrors.CodeValidation,
				fmt.Sprintf("payload could not be validated as %s", elem), err)
		}
	case map[string]string:
		// String-keyed transports (query params, flags) always decode
		// weakly.
		loose := make(map[string]any, len(v))
		for k, s := range v {
			loose[k] = s
		}
		return coerce(target, loose, true, check)
	default:
		rv := reflect.ValueOf(value)
		switch {
		case rv.Type() == target:
			out = value
		case rv.Kind() == reflect.Pointer && rv.Type().Elem() == elem:
			out = value
		case rv.Type() == elem:
			ptr := reflect.New(elem)
			ptr.Elem().Set(rv)
			out = ptr.Interface()
		default:
			return nil, qserrors.Newf(qserrors.CodeValidation,
				"payload of type %T is not compatible with %s", value, elem)
		}
	}

	if check {
		if err := Validate(out); err != nil {
			return nil, err
		}
	}
	rv := reflect.ValueOf(out)
	if target.Kind() == reflect.Pointer {
		if rv.Kind() == reflect.Pointer {
			return out, nil
		}
		ptr := reflect.New(elem)
		ptr.Elem().Set(rv)
		return ptr.Interface(), nil
	}
	if rv.Kind() == reflect.Pointer {
		return rv.Elem().Interface(), nil
	}
	return out, nil
}

func decodeMap(src map[string]any, dst any, weak bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "json",
		WeaklyTypedInput: weak,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

// Validate runs declarative field validation on a record instance.
func Validate(v any) error {
	if v == nil {
		return qserrors.Newf(qserrors.CodeValidation, "nil record")
	}
	if err := validate.Struct(v); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return qserrors.New(qserrors.CodeValidation, "value is not a structured record", err)
		}
		fields := fieldErrors(err)
		return qserrors.New(qserrors.CodeValidation,
			fmt.Sprintf("record %T failed validation (%s)", v, strings.Join(fields, ", ")), err)
	}
	return nil
}

func fieldErrors(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return out
}
