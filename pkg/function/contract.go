package function

import (
	"context"
	"reflect"

	qserrors "github.com/PSU3D0/quickscript/pkg/errors"
	"github.com/PSU3D0/quickscript/pkg/frame"
	"github.com/PSU3D0/quickscript/pkg/schema"
)

var (
	ctxType         = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType         = reflect.TypeOf((*error)(nil)).Elem()
	frameType       = reflect.TypeOf((*frame.Frame)(nil)).Elem()
	frameSchemaType = reflect.TypeOf((*frame.Schema)(nil))
	sideChannelType = reflect.TypeOf(map[string]any(nil))
)

// inferContract classifies a function signature once, at registration
// time. The result is cached on the Function record; nothing here runs
// per call.
func inferContract(name string, category Category, t reflect.Type) (Contract, error) {
	if t.IsVariadic() {
		return Contract{}, contractErr(category, name, "must not be variadic")
	}
	if t.NumIn() < 1 || t.In(0) != ctxType {
		return Contract{}, contractErr(category, name, "first parameter must be context.Context")
	}
	switch t.NumIn() {
	case 1:
	case 2:
		if !schema.IsRecord(t.In(1)) {
			return Contract{}, contractErr(category, name,
				"positional argument must be a structured record type, got "+t.In(1).String())
		}
	default:
		return Contract{}, contractErr(category, name, "too many positional arguments")
	}

	if t.NumOut() < 1 || t.Out(t.NumOut()-1) != errType {
		return Contract{}, contractErr(category, name, "must return an error as its final result")
	}
	valueOuts := t.NumOut() - 1
	if valueOuts > 2 {
		return Contract{}, contractErr(category, name, "returns too many results")
	}
	if valueOuts == 2 && t.Out(1) != sideChannelType {
		return Contract{}, contractErr(category, name,
			"side-channel result must be map[string]any, got "+t.Out(1).String())
	}
	if valueOuts == 0 && category != CategoryScript {
		return Contract{}, contractErr(category, name, "must declare a result type")
	}

	c := Contract{SideChannel: valueOuts == 2}
	if t.NumIn() == 2 {
		c.ArgType = t.In(1)
	}
	if valueOuts == 0 {
		c.Shape = ShapeAny
		return c, nil
	}
	c.OutType = t.Out(0)

	switch category {
	case CategoryScript:
		c.Shape = ShapeAny
	case CategoryMutatable:
		// No frame outputs permitted for mutatables.
		if !schema.IsRecord(c.OutType) || c.OutType == frameSchemaType || c.OutType.Implements(frameType) {
			return Contract{}, contractErr(category, name,
				"must return a structured record, got "+c.OutType.String())
		}
		c.Shape = ShapeRecord
	case CategoryQueryable:
		shape, elem, err := classifyQueryableOut(name, c.OutType)
		if err != nil {
			return Contract{}, err
		}
		c.Shape = shape
		c.ElemType = elem
	}
	return c, nil
}

func classifyQueryableOut(name string, out reflect.Type) (OutputShape, reflect.Type, error) {
	switch {
	case out.Kind() == reflect.Slice:
		elem := out.Elem()
		if !schema.IsRecord(elem) {
			return "", nil, contractErr(CategoryQueryable, name,
				"returns a list but its element type is not a structured record: "+elem.String())
		}
		return ShapeRecordList, elem, nil
	case out == frameSchemaType:
		return ShapeFrameSchema, nil, nil
	case out.Implements(frameType):
		return ShapeFrame, nil, nil
	case schema.IsRecord(out):
		return ShapeRecord, nil, nil
	default:
		// Frames are duck-typed at call time: the declared type may be
		// the Frame interface, an implementation, or any.
		return ShapeFrame, nil, nil
	}
}

func contractErr(category Category, name, msg string) error {
	return qserrors.Newf(qserrors.CodeContract, "%s %q %s", category, name, msg)
}

// isFrame reports whether a call result satisfies the frame capability.
func isFrame(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Implements(frameType) || reflect.TypeOf(v) == frameSchemaType
}
