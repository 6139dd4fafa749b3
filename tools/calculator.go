// Calculator tool - arithmetic expression evaluation.
//
// Information Hiding:
// - Tokenizer and precedence-climbing parser hidden
// - Numeric error handling (division by zero, overflow) hidden

package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forshape/stepflow/llm"
)

// Calculator evaluates arithmetic expressions without shelling out or
// interpreting code. Supported: + - * / % ^, parentheses, unary minus,
// decimal numbers.
type Calculator struct{}

// NewCalculator creates the calculator provider.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Definitions returns the tool schemas.
func (c *Calculator) Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "calculate",
			Description: "Evaluate an arithmetic expression. Supports + - * / % ^ and parentheses.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"expression": map[string]interface{}{
						"type":        "string",
						"description": "The arithmetic expression to evaluate, e.g. '2 * (3 + 4)'",
					},
				},
				"required": []string{"expression"},
			},
		},
	}
}

// Functions returns the callable tools.
func (c *Calculator) Functions() map[string]Func {
	return map[string]Func{
		"calculate": c.calculate,
	}
}

func (c *Calculator) calculate(_ context.Context, args map[string]interface{}) (string, error) {
	expr, _ := args["expression"].(string)
	if strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("expression cannot be empty")
	}

	value, err := evalExpression(expr)
	if err != nil {
		return "", fmt.Errorf("evaluating '%s': %w", expr, err)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return "", fmt.Errorf("evaluating '%s': result is not a finite number", expr)
	}
	return strconv.FormatFloat(value, 'g', -1, 64), nil
}

type exprToken struct {
	kind  byte // 'n' number, 'o' operator, '(' or ')'
	value float64
	op    byte
}

func tokenizeExpression(expr string) ([]exprToken, error) {
	var tokens []exprToken
	i := 0
	for i < len(expr) {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			value, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number '%s'", expr[i:j])
			}
			tokens = append(tokens, exprToken{kind: 'n', value: value})
			i = j
		case ch == '(' || ch == ')':
			tokens = append(tokens, exprToken{kind: ch})
			i++
		case strings.IndexByte("+-*/%^", ch) >= 0:
			tokens = append(tokens, exprToken{kind: 'o', op: ch})
			i++
		default:
			return nil, fmt.Errorf("unexpected character '%c'", ch)
		}
	}
	return tokens, nil
}

// exprParser is a precedence-climbing parser over the token stream.
type exprParser struct {
	tokens []exprToken
	pos    int
}

func evalExpression(expr string) (float64, error) {
	tokens, err := tokenizeExpression(expr)
	if err != nil {
		return 0, err
	}
	p := &exprParser{tokens: tokens}
	value, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("unexpected trailing input")
	}
	return value, nil
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/', '%':
		return 2
	case '^':
		return 3
	}
	return 0
}

func (p *exprParser) parseExpr(minPrec int) (float64, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].kind == 'o' {
		op := p.tokens[p.pos].op
		prec := precedence(op)
		if prec < minPrec {
			break
		}
		p.pos++

		// ^ is right-associative, everything else left.
		nextMin := prec + 1
		if op == '^' {
			nextMin = prec
		}
		right, err := p.parseExpr(nextMin)
		if err != nil {
			return 0, err
		}

		switch op {
		case '+':
			left += right
		case '-':
			left -= right
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
		case '^':
			left = math.Pow(left, right)
		}
	}
	return left, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	if p.pos >= len(p.tokens) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	tok := p.tokens[p.pos]

	switch tok.kind {
	case 'n':
		p.pos++
		return tok.value, nil
	case '(':
		p.pos++
		value, err := p.parseExpr(0)
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case 'o':
		if tok.op == '-' {
			p.pos++
			value, err := p.parsePrimary()
			if err != nil {
				return 0, err
			}
			return -value, nil
		}
		if tok.op == '+' {
			p.pos++
			return p.parsePrimary()
		}
	}
	return 0, fmt.Errorf("unexpected token in expression")
}
