package docstore

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/errors"
)

// IDField is the implicit identifier field of every stored document.
const IDField = "_id"

// Field is a single named value of a [Document].
type Field struct {
	Key   string
	Value Value
}

// Document is an ordered mapping from field name to [Value].
type Document struct {
	fields []Field
}

// NewDocument builds a document from fields. A repeated key keeps its first position and
// its last value.
func NewDocument(fields ...Field) *Document {
	d := &Document{}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}

	return d
}

// DocumentOf converts x into a document. Accepted inputs are *Document, bson.D, bson.M,
// map[string]any, bson.Raw and extended JSON text (string or []byte). Unordered maps are
// ordered by key.
func DocumentOf(x any) (*Document, error) {
	switch x := x.(type) {
	case *Document:
		if x == nil {
			return nil, errors.Wrap(errors.ErrInvalidArgument, "nil document")
		}

		return x.Clone(), nil
	case Document:
		return x.Clone(), nil
	case bson.D:
		d := &Document{fields: make([]Field, 0, len(x))}
		for _, e := range x {
			v, err := ValueOf(e.Value)
			if err != nil {
				return nil, errors.Wrap(err, e.Key)
			}

			d.Set(e.Key, v)
		}

		return d, nil
	case bson.M:
		return documentOfMap(x)
	case map[string]any:
		return documentOfMap(x)
	case bson.Raw:
		var doc bson.D

		err := bson.Unmarshal(x, &doc)
		if err != nil {
			return nil, errors.WithKind(errors.Wrap(err, "decode"), errors.ErrInvalidArgument)
		}

		return DocumentOf(doc)
	case string:
		return documentOfJSON([]byte(x))
	case []byte:
		return documentOfJSON(x)
	}

	return nil, errors.Wrapf(errors.ErrInvalidArgument, "unsupported document type %T", x)
}

func documentOfMap(m map[string]any) (*Document, error) {
	d := &Document{fields: make([]Field, 0, len(m))}
	for _, k := range sortedKeys(m) {
		v, err := ValueOf(m[k])
		if err != nil {
			return nil, errors.Wrap(err, k)
		}

		d.fields = append(d.fields, Field{Key: k, Value: v})
	}

	return d, nil
}

func documentOfJSON(data []byte) (*Document, error) {
	var doc bson.D

	err := bson.UnmarshalExtJSON(data, false, &doc)
	if err != nil {
		return nil, errors.WithKind(errors.Wrap(err, "parse json"), errors.ErrInvalidArgument)
	}

	return DocumentOf(doc)
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}

	return len(d.fields)
}

// Fields returns a copy of the fields in order.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}

	return append([]Field(nil), d.fields...)
}

// Keys returns the field names in order.
func (d *Document) Keys() []string {
	keys := make([]string, d.Len())
	for i, f := range d.Fields() {
		keys[i] = f.Key
	}

	return keys
}

// Get returns the value of key.
func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}

	for _, f := range d.fields {
		if f.Key == key {
			return f.Value, true
		}
	}

	return Value{}, false
}

// Set replaces the value of key in place, or appends the field.
func (d *Document) Set(key string, v Value) {
	for i := range d.fields {
		if d.fields[i].Key == key {
			d.fields[i].Value = v

			return
		}
	}

	d.fields = append(d.fields, Field{Key: key, Value: v})
}

// Delete removes key. It reports whether the key was present.
func (d *Document) Delete(key string) bool {
	for i := range d.fields {
		if d.fields[i].Key == key {
			d.fields = append(d.fields[:i], d.fields[i+1:]...)

			return true
		}
	}

	return false
}

// ID returns the string form of the identifier field.
func (d *Document) ID() (string, bool) {
	v, ok := d.Get(IDField)
	if !ok {
		return "", false
	}

	return v.AsString()
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	c := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		c.fields[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
	}

	return c
}

// Equal reports whether both documents hold equal fields in the same order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}

	for i := range d.Len() {
		if d.fields[i].Key != o.fields[i].Key || !d.fields[i].Value.Equal(o.fields[i].Value) {
			return false
		}
	}

	return true
}

// Decode unmarshals the document into v, which follows BSON struct tag rules.
func (d *Document) Decode(v any) error {
	data, err := bson.Marshal(d.bson())
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	return errors.Wrap(bson.Unmarshal(data, v), "decode")
}

// MarshalJSON encodes the document as relaxed extended JSON, keeping field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return bson.MarshalExtJSON(d.bson(), false, false)
}

// String returns the relaxed extended JSON form.
func (d *Document) String() string {
	data, err := d.MarshalJSON()
	if err != nil {
		return "{}"
	}

	return string(data)
}

func (d *Document) bson() bson.D {
	doc := make(bson.D, 0, d.Len())
	for _, f := range d.Fields() {
		doc = append(doc, bson.E{Key: f.Key, Value: f.Value.Interface()})
	}

	return doc
}

func cloneValue(v Value) Value {
	switch v.kind { //nolint:exhaustive
	case KindDocument:
		return DocumentValue(v.doc.Clone())
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = cloneValue(item)
		}

		return Array(items...)
	}

	return v
}
