package docstore

import (
	"math"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/errors"
)

// Kind identifies the type held by a [Value].
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindDocument
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindDocument:
		return "document"
	case KindArray:
		return "array"
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a dynamically typed document field value. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  int64
	dbl  float64
	bln  bool
	doc  *Document
	arr  []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value { return Value{kind: KindInt, num: i} }
func Double(f float64) Value { return Value{kind: KindDouble, dbl: f} }
func Bool(b bool) Value { return Value{kind: KindBool, bln: b} }
func DocumentValue(d *Document) Value {
	if d == nil {
		return Null()
	}

	return Value{kind: KindDocument, doc: d}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: items}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string and true if v holds a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the integer and true if v holds an int.
func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }

// AsDouble returns the number as float64. Ints are converted.
func (v Value) AsDouble() (float64, bool) {
	switch v.kind { //nolint:exhaustive
	case KindDouble:
		return v.dbl, true
	case KindInt:
		return float64(v.num), true
	}

	return 0, false
}

func (v Value) AsBool() (bool, bool) { return v.bln, v.kind == KindBool }

func (v Value) AsDocument() (*Document, bool) { return v.doc, v.kind == KindDocument }

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Equal reports deep equality. An int and a double holding the same number are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		a, aok := v.AsDouble()
		b, bok := o.AsDouble()

		return aok && bok && a == b
	}

	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindDouble:
		return v.dbl == o.dbl
	case KindBool:
		return v.bln == o.bln
	case KindDocument:
		return v.doc.Equal(o.doc)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}

		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}

		return true
	}

	return false
}

// Interface returns v as a plain Go value suitable for BSON encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindDouble:
		return v.dbl
	case KindBool:
		return v.bln
	case KindDocument:
		return v.doc.bson()
	case KindArray:
		arr := make(bson.A, len(v.arr))
		for i, item := range v.arr {
			arr[i] = item.Interface()
		}

		return arr
	}

	return nil
}

// ValueOf converts a Go or BSON value into a Value. Maps are ordered by key. Object IDs
// become their hex string and datetimes their RFC 3339 form.
func ValueOf(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Document:
		return DocumentValue(x), nil
	case Document:
		return DocumentValue(&x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Value{}, errors.Wrapf(errors.ErrInvalidArgument, "integer %d overflows int64", x)
		}

		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, errors.Wrapf(errors.ErrInvalidArgument, "integer %d overflows int64", x)
		}

		return Int(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case bson.ObjectID:
		return String(x.Hex()), nil
	case bson.DateTime:
		return String(x.Time().UTC().Format(time.RFC3339Nano)), nil
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano)), nil
	case bson.Decimal128:
		return String(x.String()), nil
	case bson.D, bson.M, map[string]any, bson.Raw:
		d, err := DocumentOf(x)
		if err != nil {
			return Value{}, err
		}

		return DocumentValue(d), nil
	case bson.A:
		return arrayOf(x)
	case []any:
		return arrayOf(x)
	case []Value:
		return Array(x...), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}

		return Array(items...), nil
	}

	return Value{}, errors.Wrapf(errors.ErrInvalidArgument, "unsupported value type %T", x)
}

func arrayOf(items []any) (Value, error) {
	values := make([]Value, len(items))
	for i, item := range items {
		v, err := ValueOf(item)
		if err != nil {
			return Value{}, errors.Wrapf(err, "[%d]", i)
		}

		values[i] = v
	}

	return Array(values...), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
