package tools

import (
	"context"
	"strings"
	"testing"
)

func TestCalculatorEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2 + 3", "5"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"10 / 4", "2.5"},
		{"-5 + 3", "-2"},
		{"2 ^ 10", "1024"},
		{"2 ^ 3 ^ 2", "512"}, // right-associative
		{"10 % 3", "1"},
		{"  1.5*2 ", "3"},
		{"-(2 + 3)", "-5"},
	}

	calc := NewCalculator()
	fn := calc.Functions()["calculate"]

	for _, tt := range tests {
		got, err := fn(context.Background(), map[string]interface{}{"expression": tt.expr})
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.expr, tt.want, got)
		}
	}
}

func TestCalculatorErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"empty", "", "empty"},
		{"division by zero", "1 / 0", "division by zero"},
		{"modulo by zero", "1 % 0", "modulo by zero"},
		{"trailing garbage", "1 + 2 )", "trailing"},
		{"unclosed paren", "(1 + 2", "parenthesis"},
		{"letters", "two + two", "unexpected character"},
		{"bad number", "1..2 + 1", "invalid number"},
	}

	calc := NewCalculator()
	fn := calc.Functions()["calculate"]

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fn(context.Background(), map[string]interface{}{"expression": tt.expr})
			if err == nil {
				t.Fatalf("%q: expected error", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("%q: expected error containing %q, got %v", tt.expr, tt.want, err)
			}
		})
	}
}

func TestCalculatorDefinitionMatchesFunctions(t *testing.T) {
	calc := NewCalculator()
	defs := calc.Definitions()
	funcs := calc.Functions()

	if len(defs) != len(funcs) {
		t.Fatalf("definitions (%d) and functions (%d) disagree", len(defs), len(funcs))
	}
	for _, def := range defs {
		if _, ok := funcs[def.Name]; !ok {
			t.Errorf("definition %q has no function", def.Name)
		}
	}
}
