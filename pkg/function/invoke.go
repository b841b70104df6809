package function

import (
	"context"
	"reflect"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/schema"
)

// Result carries a call's primary value plus the optional side-channel
// metadata. The side channel passes through the gate unvalidated.
type Result struct {
	Value any
	Meta  map[string]any
}

// Invoke runs the validation gate around the underlying function.
//
// With typechecking enabled the gate, in order: verifies declared
// dependencies, verifies declared environment variables, coerces and
// validates the positional payload, calls the function, and validates
// the primary result against the inferred output shape. Precondition
// failures abort before the underlying function runs. With typechecking
// disabled the gate only decodes the payload into the declared type and
// dispatches.
//
// The payload may be nil, an instance of the declared record type, a
// map, or raw JSON bytes; adapters never pass category or metadata as
// call arguments.
func (f *Function) Invoke(ctx context.Context, payload any) (Result, error) {
	checking := f.TypecheckEnabled()
	if checking {
		if err := CheckDependencies(f.deps); err != nil {
			return Result{}, err
		}
		if err := CheckEnvVars(f.envVars); err != nil {
			return Result{}, err
		}
	}

	in := []reflect.Value{reflect.ValueOf(ctx)}
	if f.contract.ArgType != nil {
		arg, err := f.coercePayload(payload, checking)
		if err != nil {
			return Result{}, err
		}
		in = append(in, arg)
	} else if payload != nil {
		return Result{}, qserrors.Newf(qserrors.CodeValidation,
			"%s %q takes no positional argument", f.category, f.name)
	}

	out := f.fn.Call(in)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return Result{}, errv.Interface().(error)
	}

	res := Result{}
	values := out[:len(out)-1]
	if len(values) > 0 {
		res.Value = values[0].Interface()
	}
	if len(values) > 1 && !values[1].IsNil() {
		res.Meta = values[1].Interface().(map[string]any)
	}

	if checking && len(values) > 0 {
		if err := f.validateResult(res.Value); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (f *Function) coercePayload(payload any, checking bool) (reflect.Value, error) {
	var (
		coerced any
		err     error
	)
	if checking {
		coerced, err = schema.Coerce(f.contract.ArgType, payload)
	} else {
		coerced, err = schema.Decode(f.contract.ArgType, payload)
	}
	if err != nil {
		if qe, ok := err.(*qserrors.Error); ok {
			return reflect.Value{}, qe.WithContext("function", f.name).WithContext("argument", "args")
		}
		return reflect.Value{}, err
	}
	return reflect.ValueOf(coerced), nil
}

// validateResult enforces the inferred output shape on the primary
// result. For side-channel returns only the primary element is
// validated; the metadata element has already passed through.
func (f *Function) validateResult(value any) error {
	switch f.contract.Shape {
	case ShapeAny:
		return nil

	case ShapeRecord:
		if isNil(value) {
			return f.shapeErr("a structured record", value)
		}
		t := reflect.TypeOf(value)
		if !schema.IsRecord(t) || !t.AssignableTo(f.contract.OutType) && !assignableElem(t, f.contract.OutType) {
			return f.shapeErr(f.contract.OutType.String(), value)
		}
		return schema.Validate(value)

	case ShapeRecordList:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || rv.Kind() != reflect.Slice {
			return f.shapeErr("a list of "+f.contract.ElemType.String(), value)
		}
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			if elem.Kind() == reflect.Pointer && elem.IsNil() {
				return qserrors.Newf(qserrors.CodeValidation,
					"%s %q returned a nil element at index %d", f.category, f.name, i)
			}
			if err := schema.Validate(elem.Interface()); err != nil {
				return err
			}
		}
		return nil

	case ShapeFrame:
		if !isFrame(value) {
			return f.shapeErr("a tabular frame", value)
		}
		return nil

	case ShapeFrameSchema:
		if isNil(value) || reflect.TypeOf(value) != frameSchemaType {
			return f.shapeErr("a tabular frame with schema", value)
		}
		return nil
	}
	return nil
}

func (f *Function) shapeErr(expected string, actual any) error {
	return qserrors.Newf(qserrors.CodeValidation,
		"%s %q expected to return %s, got %T", f.category, f.name, expected, actual)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func assignableElem(t, target reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Elem().AssignableTo(target)
}
