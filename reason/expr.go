package reason

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// 问题前缀,求值前剥掉,例如 "what is 2+2" → "2+2"。
var exprPrefixes = []string{"what's", "what is", "calculate", "compute", "evaluate", "solve"}

var errBadExpr = errors.New("unparseable expression")

// stripExprPrefix removes a leading question phrase from expr.
func stripExprPrefix(expr string) string {
	lower := strings.ToLower(expr)
	for _, p := range exprPrefixes {
		if strings.HasPrefix(lower, p+" ") {
			return strings.TrimSpace(expr[len(p):])
		}
	}
	return strings.TrimSpace(expr)
}

// looksBoolean reports whether expr contains boolean vocabulary.
func looksBoolean(expr string) bool {
	lower := strings.ToLower(expr)
	for _, w := range []string{"true", "false", " and ", " or ", "not "} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// looksArithmetic requires at least one digit and one operator.
func looksArithmetic(expr string) bool {
	hasDigit := strings.IndexFunc(expr, unicode.IsDigit) >= 0
	hasOp := strings.ContainsAny(expr, "+-*/%")
	return hasDigit && hasOp
}

// ---------------------------------------------------------------------------
// 算术求值:递归下降,支持 + - * / % 与括号及一元负号。

type arithParser struct {
	input []rune
	pos   int
}

func evalArithmetic(expr string) (float64, error) {
	p := &arithParser{input: []rune(expr)}
	v, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, errBadExpr
	}
	return v, nil
}

func (p *arithParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *arithParser) peek() rune {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *arithParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, errors.New("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, errors.New("division by zero")
			}
			left = float64(int64(left) % int64(right))
		default:
			return left, nil
		}
	}
}

func (p *arithParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *arithParser) parseAtom() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errBadExpr
		}
		p.pos++
		return v, nil
	}

	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, errBadExpr
	}
	return strconv.ParseFloat(string(p.input[start:p.pos]), 64)
}

// formatNumber renders integers without a decimal point.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ---------------------------------------------------------------------------
// 布尔求值:true/false 字面量加 and/or/not 与括号。

type boolParser struct {
	tokens []string
	pos    int
}

func evalBoolean(expr string) (bool, error) {
	raw := strings.ToLower(expr)
	raw = strings.ReplaceAll(raw, "(", " ( ")
	raw = strings.ReplaceAll(raw, ")", " ) ")
	p := &boolParser{tokens: strings.Fields(raw)}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, errBadExpr
	}
	return v, nil
}

func (p *boolParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *boolParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peek() == "or" {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *boolParser) parseAnd() (bool, error) {
	left, err := p.parseNot()
	if err != nil {
		return false, err
	}
	for p.peek() == "and" {
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *boolParser) parseNot() (bool, error) {
	if p.peek() == "not" {
		p.pos++
		v, err := p.parseNot()
		return !v, err
	}
	switch p.peek() {
	case "true":
		p.pos++
		return true, nil
	case "false":
		p.pos++
		return false, nil
	case "(":
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.peek() != ")" {
			return false, errBadExpr
		}
		p.pos++
		return v, nil
	}
	return false, fmt.Errorf("%w: unexpected token %q", errBadExpr, p.peek())
}
