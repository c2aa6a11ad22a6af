// Package expr implements variable substitution and restricted condition
// evaluation for workflow configuration.
//
// Templates reference variables as {{name}}, where name matches
// [A-Za-z_][A-Za-z0-9_]* and whitespace is permitted inside the braces.
// Conditions have the shape "LHS OP RHS" with OP drawn from a fixed operator
// set. The evaluator deliberately supports nothing else: user input never
// reaches a general-purpose expression sandbox. Any input that does not fit
// the operator-and-literal grammar evaluates to false.
package expr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholder matches {{ name }} template references.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// operators lists the supported comparison operators in parse precedence
// order. Two-character operators come first so ">=" is never parsed as ">".
var operators = []string{">=", "<=", "!=", "==", ">", "<", "contains"}

// operand restricts what may appear on either side of an operator after
// substitution. Anything outside this literal grammar fails evaluation.
var operand = regexp.MustCompile(`^[A-Za-z0-9_\s'".,:@/+-]*$`)

// Substitute replaces every {{name}} reference in the template with the
// stringified value of that variable. Unknown references are left as the
// literal {{name}} text.
func Substitute(template string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			return match
		}
		return Stringify(val)
	})
}

// SubstituteValue applies Substitute recursively to an arbitrary structured
// value: strings are substituted, maps and slices are walked, and every other
// scalar passes through unchanged.
func SubstituteValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		return Substitute(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = SubstituteValue(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = SubstituteValue(item, vars)
		}
		return out
	default:
		return v
	}
}

// SubstituteMap applies SubstituteValue to every value of the given map.
func SubstituteMap(m map[string]any, vars map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = SubstituteValue(v, vars)
	}
	return out
}

// Stringify renders a value for template substitution. Containers are
// JSON-encoded; scalars use their natural string form.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// Evaluate substitutes variables into the expression and evaluates it as a
// single comparison. It never panics and never executes user input: a parse
// or evaluation failure yields false along with a descriptive error the
// caller may log as a warning.
func Evaluate(expression string, vars map[string]any) (bool, error) {
	substituted := Substitute(expression, vars)
	op, lhs, rhs, ok := split(substituted)
	if !ok {
		return false, fmt.Errorf("no supported operator in %q", substituted)
	}
	if !operand.MatchString(lhs) || !operand.MatchString(rhs) {
		return false, fmt.Errorf("expression %q contains characters outside the allowed grammar", substituted)
	}
	left := parseOperand(lhs)
	right := parseOperand(rhs)
	switch op {
	case ">", "<", ">=", "<=":
		ln, lok := left.number()
		rn, rok := right.number()
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires numeric operands in %q", op, substituted)
		}
		switch op {
		case ">":
			return ln > rn, nil
		case "<":
			return ln < rn, nil
		case ">=":
			return ln >= rn, nil
		default:
			return ln <= rn, nil
		}
	case "==", "!=":
		eq := equal(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	case "contains":
		return strings.Contains(left.text, right.text), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// split finds the first matching operator in precedence order and returns the
// trimmed sides. The "contains" operator must be surrounded by whitespace to
// avoid matching inside identifiers.
func split(expression string) (op, lhs, rhs string, ok bool) {
	for _, candidate := range operators {
		needle := candidate
		if candidate == "contains" {
			needle = " contains "
		}
		if idx := strings.Index(expression, needle); idx >= 0 {
			lhs = strings.TrimSpace(expression[:idx])
			rhs = strings.TrimSpace(expression[idx+len(needle):])
			return candidate, lhs, rhs, true
		}
	}
	return "", "", "", false
}

// value is a parsed operand: a string form plus an optional numeric form.
type value struct {
	text    string
	num     float64
	numeric bool
}

func (v value) number() (float64, bool) { return v.num, v.numeric }

// parseOperand trims the operand, strips surrounding quotes, and attempts a
// numeric parse.
func parseOperand(s string) value {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return value{text: s[1 : len(s)-1]}
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return value{text: s, num: n, numeric: true}
	}
	return value{text: s}
}

// equal compares two operands, numerically when both sides coerce to numbers
// and as strings otherwise.
func equal(a, b value) bool {
	if a.numeric && b.numeric {
		return a.num == b.num
	}
	return a.text == b.text
}
