package expr

import (
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/errors"
)

// Filter resolves placeholders from bindings and returns the MongoDB query filter.
// A placeholder without a binding fails with [errors.ErrUnboundParameter]; a binding for a
// name the expression does not use fails with [errors.ErrInvalidArgument].
func (e *Expr) Filter(bindings map[string]any) (bson.D, error) {
	unknown := make([]string, 0)
	for name := range bindings {
		if !e.HasPlaceholder(name) {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) != 0 {
		sort.Strings(unknown)

		return nil, errors.Wrapf(errors.ErrInvalidArgument,
			"unknown placeholder: %s", strings.Join(unknown, ", "))
	}

	for _, name := range e.params {
		if _, ok := bindings[name]; !ok {
			return nil, errors.Wrapf(errors.ErrUnboundParameter, "placeholder :%s", name)
		}
	}

	if e.root == nil {
		return bson.D{}, nil
	}

	t := translator{bindings: bindings}

	return t.node(e.root)
}

type translator struct {
	bindings map[string]any
}

func (t translator) node(n node) (bson.D, error) {
	switch n := n.(type) {
	case *logicalNode:
		return t.logical(n)
	case *notNode:
		inner, err := t.node(n.term)
		if err != nil {
			return nil, err
		}

		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	case *compareNode:
		return t.compare(n)
	case *likeNode:
		return t.like(n)
	}

	return nil, errors.Errorf("unexpected node %T", n)
}

func (t translator) logical(n *logicalNode) (bson.D, error) {
	op := "$and"
	if n.or {
		op = "$or"
	}

	terms := make(bson.A, 0, len(n.terms))
	for _, term := range n.terms {
		d, err := t.node(term)
		if err != nil {
			return nil, err
		}

		// flatten nested terms of the same operator
		if len(d) == 1 && d[0].Key == op {
			if nested, ok := d[0].Value.(bson.A); ok {
				terms = append(terms, nested...)

				continue
			}
		}

		terms = append(terms, d)
	}

	return bson.D{{Key: op, Value: terms}}, nil
}

//nolint:gochecknoglobals
var queryOperators = map[string]string{
	"=":  "$eq",
	"==": "$eq",
	"!=": "$ne",
	"<>": "$ne",
	"<":  "$lt",
	"<=": "$lte",
	">":  "$gt",
	">=": "$gte",
}

//nolint:gochecknoglobals
var mirroredOperators = map[string]string{
	"$eq":  "$eq",
	"$ne":  "$ne",
	"$lt":  "$gt",
	"$lte": "$gte",
	"$gt":  "$lt",
	"$gte": "$lte",
}

func (t translator) compare(n *compareNode) (bson.D, error) {
	op, ok := queryOperators[n.op]
	if !ok {
		return nil, errors.Wrapf(errors.ErrParse, "unsupported operator '%s'", n.op)
	}

	switch {
	case n.left.kind == fieldOperand && n.right.kind == fieldOperand:
		return bson.D{{Key: "$expr", Value: bson.D{{Key: op, Value: bson.A{"$" + n.left.field, "$" + n.right.field}}}}}, nil

	case n.left.kind == fieldOperand:
		return fieldCompare(n.left.field, op, t.value(n.right)), nil

	default:
		return fieldCompare(n.right.field, mirroredOperators[op], t.value(n.left)), nil
	}
}

const idField = "_id"

func fieldCompare(field, op string, v any) bson.D {
	if field == idField && (op == "$eq" || op == "$ne") {
		if forms, ok := idForms(v); ok {
			set := "$in"
			if op == "$ne" {
				set = "$nin"
			}

			return bson.D{{Key: field, Value: bson.D{{Key: set, Value: forms}}}}
		}
	}

	return bson.D{{Key: field, Value: bson.D{{Key: op, Value: v}}}}
}

// idForms returns both forms a hex identifier can be stored as: the string and the ObjectID.
func idForms(v any) (bson.A, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}

	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return nil, false
	}

	return bson.A{s, oid}, true
}

// MatchID returns the filter value for an identifier read back as a string. A hex string
// also matches the ObjectID it encodes.
func MatchID(id string) any {
	if forms, ok := idForms(id); ok {
		return bson.D{{Key: "$in", Value: forms}}
	}

	return id
}

func (t translator) like(n *likeNode) (bson.D, error) {
	raw := t.value(n.pattern)

	pattern, ok := raw.(string)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidArgument,
			"LIKE pattern for '%s' must be a string, got %T", n.field, raw)
	}

	re := bson.Regex{Pattern: LikeToRegex(pattern), Options: "s"}
	if n.negate {
		return bson.D{{Key: n.field, Value: bson.D{{Key: "$not", Value: re}}}}, nil
	}

	return bson.D{{Key: n.field, Value: bson.D{{Key: "$regex", Value: re}}}}, nil
}

func (t translator) value(o operand) any {
	if o.kind == paramOperand {
		return t.bindings[o.param]
	}

	return o.value
}

// LikeToRegex converts a LIKE pattern into a regular expression anchored at both ends of the
// subject. The end anchor is \z, so a trailing newline is not skipped.
// '%' matches any sequence, '_' matches one character and '\' escapes the next one.
func LikeToRegex(pattern string) string {
	var sb strings.Builder

	sb.WriteString("^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch ch := runes[i]; ch {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		case '\\':
			if i+1 < len(runes) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				sb.WriteString(regexp.QuoteMeta(`\`))
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}

	sb.WriteString(`\z`)

	return sb.String()
}
