package dynamock

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nisimpson/reviewmap"
)

var (
	reToken  = regexp.MustCompile(`\(|\)|,|<>|<=|>=|=|<|>|[#:]?\w+`)
	reClause = regexp.MustCompile(`\b(SET|ADD|REMOVE)\s`)
	reSet    = regexp.MustCompile(`^(#\w+)\s*=\s*(:\w+)$`)
	reAdd    = regexp.MustCompile(`^(#\w+)\s+(:\w+)$`)
	reRemove = regexp.MustCompile(`^(#\w+)$`)
)

// expression holds the placeholders shared by a request's expressions.
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

// holds evaluates a condition expression against record, which is nil when
// the row does not exist. An empty condition always holds.
//
// Supported: AND, OR, NOT, parentheses, attribute_exists,
// attribute_not_exists, begins_with, and the comparison operators.
func (e expression) holds(cond string, record reviewmap.Record) (bool, error) {
	if strings.TrimSpace(cond) == "" {
		return true, nil
	}

	p := &condParser{expression: e, tokens: reToken.FindAllString(cond, -1), record: record}
	ok, err := p.or()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("dynamock: unexpected %q in condition %q", p.tokens[p.pos], cond)
	}
	return ok, nil
}

type condParser struct {
	expression
	tokens []string
	pos    int
	record reviewmap.Record
}

func (p *condParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *condParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *condParser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("dynamock: expected %q, got %q", tok, got)
	}
	return nil
}

// Both sides are always evaluated so that syntax errors surface.
func (p *condParser) or() (bool, error) {
	ok, err := p.and()
	for err == nil && p.peek() == "OR" {
		p.next()
		var right bool
		right, err = p.and()
		ok = ok || right
	}
	return ok, err
}

func (p *condParser) and() (bool, error) {
	ok, err := p.unary()
	for err == nil && p.peek() == "AND" {
		p.next()
		var right bool
		right, err = p.unary()
		ok = ok && right
	}
	return ok, err
}

func (p *condParser) unary() (bool, error) {
	if p.peek() == "NOT" {
		p.next()
		ok, err := p.unary()
		return !ok, err
	}
	return p.primary()
}

func (p *condParser) primary() (bool, error) {
	switch tok := p.peek(); tok {
	case "(":
		p.next()
		ok, err := p.or()
		if err != nil {
			return false, err
		}
		return ok, p.expect(")")
	case "attribute_exists", "attribute_not_exists", "begins_with":
		return p.function()
	}

	left, err := p.operand()
	if err != nil {
		return false, err
	}
	op := p.next()
	right, err := p.operand()
	if err != nil {
		return false, err
	}
	return compare(left, op, right)
}

func (p *condParser) function() (bool, error) {
	name := p.next()
	if err := p.expect("("); err != nil {
		return false, err
	}

	attr, err := p.operand()
	if err != nil {
		return false, err
	}

	var ok bool
	switch name {
	case "attribute_exists":
		ok = attr != nil
	case "attribute_not_exists":
		ok = attr == nil
	case "begins_with":
		if err := p.expect(","); err != nil {
			return false, err
		}
		prefix, err := p.operand()
		if err != nil {
			return false, err
		}
		s, sok := attr.(*types.AttributeValueMemberS)
		pre, pok := prefix.(*types.AttributeValueMemberS)
		ok = sok && pok && strings.HasPrefix(s.Value, pre.Value)
	}
	return ok, p.expect(")")
}

// operand resolves a name placeholder against the record and a value
// placeholder against the request values. A missing attribute is nil.
func (p *condParser) operand() (types.AttributeValue, error) {
	tok := p.next()
	switch {
	case strings.HasPrefix(tok, "#"):
		name, ok := p.names[tok]
		if !ok {
			return nil, fmt.Errorf("dynamock: undefined name %s", tok)
		}
		return p.record[name], nil
	case strings.HasPrefix(tok, ":"):
		v, ok := p.values[tok]
		if !ok {
			return nil, fmt.Errorf("dynamock: undefined value %s", tok)
		}
		return v, nil
	}
	return nil, fmt.Errorf("dynamock: unsupported operand %q", tok)
}

// compare applies op to two attribute values. Comparisons with a missing
// attribute are false.
func compare(a types.AttributeValue, op string, b types.AttributeValue) (bool, error) {
	if a == nil || b == nil {
		return false, nil
	}

	var c int
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return op == "<>", nil
		}
		x, err := strconv.ParseFloat(av.Value, 64)
		if err != nil {
			return false, err
		}
		y, err := strconv.ParseFloat(bv.Value, 64)
		if err != nil {
			return false, err
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return op == "<>", nil
		}
		c = strings.Compare(av.Value, bv.Value)
	default:
		switch op {
		case "=":
			return reflect.DeepEqual(a, b), nil
		case "<>":
			return !reflect.DeepEqual(a, b), nil
		}
		return false, fmt.Errorf("dynamock: cannot order %T", a)
	}

	switch op {
	case "=":
		return c == 0, nil
	case "<>":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("dynamock: unsupported operator %q", op)
}

// apply runs an update expression on record in place and returns the names
// of the attributes it changed. Supported: SET a = :v, ADD a :n on numbers,
// and REMOVE a.
func (e expression) apply(update string, record reviewmap.Record) ([]string, error) {
	var (
		changed []string
		bounds  = reClause.FindAllStringSubmatchIndex(update, -1)
	)
	if len(bounds) == 0 {
		return nil, fmt.Errorf("dynamock: unsupported update expression %q", update)
	}

	for i, b := range bounds {
		end := len(update)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		mode := update[b[2]:b[3]]

		for _, action := range strings.Split(update[b[1]:end], ",") {
			action = strings.TrimSpace(action)
			name, err := e.applyAction(mode, action, record)
			if err != nil {
				return nil, err
			}
			changed = append(changed, name)
		}
	}
	return changed, nil
}

func (e expression) applyAction(mode, action string, record reviewmap.Record) (string, error) {
	unsupported := fmt.Errorf("dynamock: unsupported %s action %q", mode, action)

	switch mode {
	case "SET":
		m := reSet.FindStringSubmatch(action)
		if m == nil {
			return "", unsupported
		}
		record[e.names[m[1]]] = e.values[m[2]]
		return e.names[m[1]], nil

	case "ADD":
		m := reAdd.FindStringSubmatch(action)
		if m == nil {
			return "", unsupported
		}
		name := e.names[m[1]]
		delta, err := number(e.values[m[2]])
		if err != nil {
			return "", err
		}
		var current int64
		if av, ok := record[name]; ok {
			if current, err = number(av); err != nil {
				return "", err
			}
		}
		record[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+delta, 10)}
		return name, nil

	case "REMOVE":
		m := reRemove.FindStringSubmatch(action)
		if m == nil {
			return "", unsupported
		}
		delete(record, e.names[m[1]])
		return e.names[m[1]], nil
	}
	return "", unsupported
}
