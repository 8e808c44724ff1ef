package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
)

type Field string

const (
	FieldGroup  Field = "group"
	FieldNode   Field = "node"
	FieldDevice Field = "device"
	FieldTag    Field = "tag"
	FieldValue  Field = "value"
	FieldStatus Field = "status"
	FieldTS     Field = "ts"
)

type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

var tableFields = map[Table]map[Field]struct{}{
	StatusTable: {FieldGroup: {}, FieldNode: {}, FieldDevice: {}, FieldStatus: {}, FieldTS: {}},
	TagTable:    {FieldGroup: {}, FieldNode: {}, FieldDevice: {}, FieldTag: {}, FieldValue: {}, FieldTS: {}},
}

// Condition compares one column with a literal. Time is set for FieldTS.
type Condition struct {
	Field Field
	Op    Op
	Value string
	Time  time.Time
}

// Filter is a conjunction of conditions.
type Filter struct {
	Conditions []Condition
}

func (f Filter) And(conds ...Condition) Filter {
	out := make([]Condition, 0, len(f.Conditions)+len(conds))
	out = append(out, f.Conditions...)
	out = append(out, conds...)

	return Filter{Conditions: out}
}

// Range returns the tightest bounds implied by the ts conditions. Zero values
// mean unbounded.
func (f Filter) Range() (start, end time.Time) {
	for _, c := range f.Conditions {
		if c.Field != FieldTS {
			continue
		}
		switch c.Op {
		case OpGt, OpGe:
			if start.IsZero() || c.Time.After(start) {
				start = c.Time
			}
		case OpLt, OpLe:
			if end.IsZero() || c.Time.Before(end) {
				end = c.Time
			}
		case OpEq:
			start, end = c.Time, c.Time
		}
	}

	return start, end
}

func Eq(field Field, value string) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func TimeCond(op Op, t time.Time) Condition {
	return Condition{Field: FieldTS, Op: op, Time: t}
}

type tokenKind uint8

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

// ParseFilter parses a restricted SQL WHERE clause: one or more
// `field op literal` comparisons joined by AND, optionally prefixed by WHERE.
// Time literals without a zone are read in loc.
func ParseFilter(expr string, table Table, loc *time.Location) (Filter, error) {
	tokens, err := lex(expr)
	if err != nil {
		return Filter{}, err
	}
	if len(tokens) > 0 && tokens[0].kind == tokIdent && strings.EqualFold(tokens[0].text, "where") {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return Filter{}, nil
	}

	var f Filter
	for i := 0; ; {
		if len(tokens)-i < 3 {
			return Filter{}, fmt.Errorf("%w: incomplete condition in %q", pkgerrors.ErrQueryValidation, expr)
		}
		cond, err := condition(tokens[i], tokens[i+1], tokens[i+2], table, loc)
		if err != nil {
			return Filter{}, err
		}
		f.Conditions = append(f.Conditions, cond)
		i += 3

		if i == len(tokens) {
			return f, nil
		}
		if tokens[i].kind != tokIdent || !strings.EqualFold(tokens[i].text, "and") {
			return Filter{}, fmt.Errorf("%w: expected AND, got %q", pkgerrors.ErrQueryValidation, tokens[i].text)
		}
		i++
	}
}

func condition(fieldTok, opTok, litTok token, table Table, loc *time.Location) (Condition, error) {
	if fieldTok.kind != tokIdent {
		return Condition{}, fmt.Errorf("%w: expected field name, got %q", pkgerrors.ErrQueryValidation, fieldTok.text)
	}
	field := Field(strings.ToLower(fieldTok.text))
	if _, ok := tableFields[table][field]; !ok {
		return Condition{}, fmt.Errorf("%w: unknown field %q for %s", pkgerrors.ErrQueryValidation, fieldTok.text, table)
	}

	var op Op
	switch {
	case opTok.kind == tokOp:
		op = Op(opTok.text)
		if op == "<>" {
			op = OpNe
		}
	case opTok.kind == tokIdent && strings.EqualFold(opTok.text, "like"):
		op = OpLike
	default:
		return Condition{}, fmt.Errorf("%w: expected operator, got %q", pkgerrors.ErrQueryValidation, opTok.text)
	}

	if litTok.kind != tokString && litTok.kind != tokNumber {
		return Condition{}, fmt.Errorf("%w: expected literal, got %q", pkgerrors.ErrQueryValidation, litTok.text)
	}

	cond := Condition{Field: field, Op: op, Value: litTok.text}
	switch field {
	case FieldTS:
		if op == OpLike {
			return Condition{}, fmt.Errorf("%w: LIKE is not supported on ts", pkgerrors.ErrQueryValidation)
		}
		t, err := ParseTime(litTok.text, loc)
		if err != nil {
			return Condition{}, err
		}
		cond.Time = t
	default:
		if op != OpEq && op != OpNe && op != OpLike {
			return Condition{}, fmt.Errorf("%w: operator %s is not supported on %s", pkgerrors.ErrQueryValidation, op, field)
		}
	}

	return cond, nil
}

func lex(expr string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '\'':
			var sb strings.Builder
			j := i + 1
			closed := false
			for j < len(expr) {
				if expr[j] == '\'' {
					if j+1 < len(expr) && expr[j+1] == '\'' {
						sb.WriteByte('\'')
						j += 2

						continue
					}
					closed = true
					j++

					break
				}
				sb.WriteByte(expr[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string literal", pkgerrors.ErrQueryValidation)
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String()})
			i = j
		case ch == '=' || ch == '<' || ch == '>' || ch == '!':
			j := i + 1
			if j < len(expr) && (expr[j] == '=' || (ch == '<' && expr[j] == '>')) {
				j++
			}
			op := expr[i:j]
			if op == "!" {
				return nil, fmt.Errorf("%w: unexpected %q", pkgerrors.ErrQueryValidation, op)
			}
			tokens = append(tokens, token{kind: tokOp, text: op})
			i = j
		case isIdentStart(ch):
			j := i + 1
			for j < len(expr) && isIdentPart(expr[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: expr[i:j]})
			i = j
		case isDigit(ch) || ch == '-' && i+1 < len(expr) && isDigit(expr[i+1]):
			j := i + 1
			for j < len(expr) && (isDigit(expr[j]) || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: expr[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", pkgerrors.ErrQueryValidation, ch)
		}
	}

	for _, t := range tokens {
		if t.kind == tokIdent && strings.EqualFold(t.text, "or") {
			return nil, fmt.Errorf("%w: OR is not supported", pkgerrors.ErrQueryValidation)
		}
	}

	return tokens, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// LikePattern converts a SQL LIKE pattern into an anchored regular expression.
func LikePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid LIKE pattern %q", pkgerrors.ErrQueryValidation, pattern)
	}

	return re, nil
}
