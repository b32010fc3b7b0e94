package expr

import (
	"strings"
	"unicode"

	"github.com/percona/percona-docshell/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokParam
	tokOp
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokParam:
		return "placeholder"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}

	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// keyword reports whether the token is the identifier kw, ignoring case.
func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}

	return "'" + t.text + "'"
}

func tokenize(src string) ([]token, error) {
	var tokens []token

	runes := []rune(src)
	for i := 0; i < len(runes); {
		ch := runes[i]

		switch {
		case unicode.IsSpace(ch):
			i++

		case ch == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case ch == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case ch == '\'' || ch == '"':
			text, next, err := scanString(runes, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = next

		case ch == '`':
			end := i + 1
			for end < len(runes) && runes[end] != '`' {
				end++
			}

			if end == len(runes) {
				return nil, errors.Wrapf(errors.ErrParse, "unterminated quoted identifier at position %d", i)
			}

			tokens = append(tokens, token{kind: tokIdent, text: string(runes[i+1 : end]), pos: i})
			i = end + 1

		case ch == ':':
			end := i + 1
			for end < len(runes) && isIdentRune(runes[end]) {
				end++
			}

			if end == i+1 {
				return nil, errors.Wrapf(errors.ErrParse, "placeholder name expected at position %d", i)
			}

			tokens = append(tokens, token{kind: tokParam, text: string(runes[i+1 : end]), pos: i})
			i = end

		case unicode.IsDigit(ch) || (ch == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			end := i + 1
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.' ||
				runes[end] == 'e' || runes[end] == 'E' ||
				((runes[end] == '+' || runes[end] == '-') && (runes[end-1] == 'e' || runes[end-1] == 'E'))) {
				end++
			}

			tokens = append(tokens, token{kind: tokNumber, text: string(runes[i:end]), pos: i})
			i = end

		case isIdentStart(ch):
			end := i + 1
			for end < len(runes) && (isIdentRune(runes[end]) || runes[end] == '.') {
				end++
			}

			tokens = append(tokens, token{kind: tokIdent, text: string(runes[i:end]), pos: i})
			i = end

		default:
			op, ok := scanOperator(runes, i)
			if !ok {
				return nil, errors.Wrapf(errors.ErrParse, "unexpected character %q at position %d", ch, i)
			}

			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})

	return tokens, nil
}

func scanString(runes []rune, start int) (string, int, error) {
	quote := runes[start]

	var sb strings.Builder
	for i := start + 1; i < len(runes); i++ {
		ch := runes[i]

		switch {
		case ch == '\\' && i+1 < len(runes):
			i++
			switch runes[i] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(runes[i])
			default:
				// other escapes such as \% and \_ are kept for LIKE patterns
				sb.WriteRune('\\')
				sb.WriteRune(runes[i])
			}
		case ch == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteRune(ch)
		}
	}

	return "", 0, errors.Wrapf(errors.ErrParse, "unterminated string at position %d", start)
}

//nolint:gochecknoglobals
var operators = []string{"==", "!=", "<>", "<=", ">=", "=", "<", ">"}

func scanOperator(runes []rune, i int) (string, bool) {
	rest := string(runes[i:min(i+2, len(runes))])
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			return op, true
		}
	}

	return "", false
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentRune(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}
