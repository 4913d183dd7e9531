package tool

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	calcAllowed = regexp.MustCompile(`^[0-9+\-*/%^(). \t]+$`)
	calcRun     = regexp.MustCompile(`[0-9+\-*/%^(). ]+`)
)

func newCalculator(cfg CalculatorConfig) runFunc {
	return func(_ context.Context, input string) (string, error) {
		expr := strings.TrimSpace(input)
		if expr == "" {
			return "", NewToolError(NameCalculator, "empty expression", CodeValidation)
		}
		if len(expr) > cfg.MaxExpressionLength {
			return "", NewToolError(NameCalculator, "expression too long", CodeValidation)
		}
		if !calcAllowed.MatchString(expr) {
			return "", NewToolError(NameCalculator, "expression contains invalid characters", CodePolicy)
		}
		v, err := Evaluate(expr)
		if err != nil {
			return "", NewToolError(NameCalculator, err.Error(), CodeExecution)
		}
		return fmt.Sprintf("%s = %s", expr, strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
}

// ExtractExpression returns the longest arithmetic fragment of text that
// holds at least one digit and one operator, or "" when there is none.
func ExtractExpression(text string) string {
	best := ""
	for _, m := range calcRun.FindAllString(text, -1) {
		m = strings.Trim(strings.TrimSpace(m), ".")
		m = strings.TrimSpace(m)
		if !strings.ContainsAny(m, "0123456789") || !strings.ContainsAny(m, "+-*/%^") {
			continue
		}
		if len(m) > len(best) {
			best = m
		}
	}
	return best
}

// Evaluate computes an arithmetic expression with + - * / % ^, unary signs
// and parentheses. ^ is right associative and binds tighter than unary minus.
func Evaluate(expr string) (float64, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("unexpected %q", p.toks[p.pos].text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

type token struct {
	op   byte // 0 for numbers
	num  float64
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case (c >= '0' && c <= '9') || c == '.':
			j := i
			for j < len(s) && ((s[j] >= '0' && s[j] <= '9') || s[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", s[i:j])
			}
			toks = append(toks, token{num: v, text: s[i:j]})
			i = j
		case strings.IndexByte("+-*/%^()", c) >= 0:
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("unbalanced parentheses")
				}
			}
			toks = append(toks, token{op: c, text: string(c)})
			i++
		default:
			return nil, fmt.Errorf("invalid character %q", c)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

const maxNesting = 64

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || (t.op != '+' && t.op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if t.op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || (t.op != '*' && t.op != '/' && t.op != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch t.op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) unary() (float64, error) {
	t, ok := p.peek()
	if ok && (t.op == '-' || t.op == '+') {
		p.pos++
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxNesting {
			return 0, fmt.Errorf("expression nested too deeply")
		}
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if t.op == '-' {
			return -v, nil
		}
		return v, nil
	}
	return p.power()
}

func (p *parser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	t, ok := p.peek()
	if !ok || t.op != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *parser) primary() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch t.op {
	case 0:
		return t.num, nil
	case '(':
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxNesting {
			return 0, fmt.Errorf("expression nested too deeply")
		}
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if closing, ok := p.peek(); !ok || closing.op != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected %q", t.text)
	}
}
