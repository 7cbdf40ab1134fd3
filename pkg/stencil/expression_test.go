package stencil

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTokenizeExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []ExpressionToken
		wantErr bool
	}{
		{
			name: "dotted identifier",
			expr: "kunde.anrede",
			want: []ExpressionToken{
				{Type: ExprTokenIdentifier, Value: "kunde.anrede", Pos: 0},
				{Type: ExprTokenEOF, Pos: 12},
			},
		},
		{
			name: "indexed identifier",
			expr: "items.0.name",
			want: []ExpressionToken{
				{Type: ExprTokenIdentifier, Value: "items.0.name", Pos: 0},
				{Type: ExprTokenEOF, Pos: 12},
			},
		},
		{
			name: "comparison with string",
			expr: `a == "FRAU"`,
			want: []ExpressionToken{
				{Type: ExprTokenIdentifier, Value: "a", Pos: 0},
				{Type: ExprTokenOperator, Value: "==", Pos: 2},
				{Type: ExprTokenString, Value: "FRAU", Pos: 5},
				{Type: ExprTokenEOF, Pos: 11},
			},
		},
		{
			name: "escaped quote",
			expr: `"say \"hi\""`,
			want: []ExpressionToken{
				{Type: ExprTokenString, Value: `say "hi"`, Pos: 0},
				{Type: ExprTokenEOF, Pos: 12},
			},
		},
		{
			name: "single quotes",
			expr: `'x'`,
			want: []ExpressionToken{
				{Type: ExprTokenString, Value: "x", Pos: 0},
				{Type: ExprTokenEOF, Pos: 3},
			},
		},
		{
			name: "logical operators and parens",
			expr: "!(a&&b)||c",
			want: []ExpressionToken{
				{Type: ExprTokenOperator, Value: "!", Pos: 0},
				{Type: ExprTokenLeftParen, Value: "(", Pos: 1},
				{Type: ExprTokenIdentifier, Value: "a", Pos: 2},
				{Type: ExprTokenOperator, Value: "&&", Pos: 3},
				{Type: ExprTokenIdentifier, Value: "b", Pos: 5},
				{Type: ExprTokenRightParen, Value: ")", Pos: 6},
				{Type: ExprTokenOperator, Value: "||", Pos: 7},
				{Type: ExprTokenIdentifier, Value: "c", Pos: 9},
				{Type: ExprTokenEOF, Pos: 10},
			},
		},
		{
			name: "number with exponent",
			expr: "1.5e3",
			want: []ExpressionToken{
				{Type: ExprTokenNumber, Value: "1.5e3", Pos: 0},
				{Type: ExprTokenEOF, Pos: 5},
			},
		},
		{
			name:    "unterminated string",
			expr:    `a == "open`,
			wantErr: true,
		},
		{
			name:    "unexpected character",
			expr:    "a # b",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TokenizeExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TokenizeExpression() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsParseError(err) {
					t.Errorf("expected *ParseError, got %T", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TokenizeExpression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{name: "literal", expr: `"x"`, want: `Literal("x")`},
		{name: "boolean any case", expr: "TRUE", want: "Literal(true)"},
		{name: "null", expr: "null", want: "Literal(<nil>)"},
		{name: "variable", expr: "a.b", want: "Variable(a.b)"},
		{
			name: "and binds tighter than or",
			expr: "a || b && c",
			want: "BinaryOp(Variable(a) || BinaryOp(Variable(b) && Variable(c)))",
		},
		{
			name: "comparison binds tighter than equality",
			expr: "a < 1 == true",
			want: "BinaryOp(BinaryOp(Variable(a) < Literal(1)) == Literal(true))",
		},
		{
			name: "parentheses",
			expr: "(a || b) && c",
			want: "BinaryOp(BinaryOp(Variable(a) || Variable(b)) && Variable(c))",
		},
		{name: "unary chain", expr: "!!a", want: "UnaryOp(! UnaryOp(! Variable(a)))"},
		{name: "negative number", expr: "-5", want: "UnaryOp(- Literal(5))"},
		{name: "empty", expr: "   ", wantErr: true},
		{name: "missing operand", expr: "a ==", wantErr: true},
		{name: "unbalanced paren", expr: "(a", wantErr: true},
		{name: "trailing token", expr: "a b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExpression() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := node.String(); got != tt.want {
				t.Errorf("ParseExpression() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExpressionEvaluate(t *testing.T) {
	data := TemplateData{
		"n":     json.Number("3"),
		"s":     "abc",
		"flag":  true,
		"empty": "",
		"list":  []interface{}{json.Number("1")},
	}

	tests := []struct {
		name    string
		expr    string
		want    interface{}
		wantErr bool
	}{
		{name: "numeric equality", expr: "3 == 3.0", want: true},
		{name: "numeric string equals number", expr: `"3" == 3`, want: true},
		{name: "string inequality", expr: `"a" != "b"`, want: true},
		{name: "number ordering", expr: "n > 2", want: true},
		{name: "string ordering", expr: `s < "abd"`, want: true},
		{name: "unknown identifier is null", expr: "missing == null", want: true},
		{name: "short circuit and", expr: `false && (1 < "x")`, want: false},
		{name: "short circuit or", expr: `flag || (1 < "x")`, want: true},
		{name: "not of empty string", expr: "!empty", want: true},
		{name: "negation", expr: "-n < 0", want: true},
		{name: "ordering type mismatch", expr: `1 < "x"`, wantErr: true},
		{name: "negating a string", expr: `-s`, wantErr: true},
		{name: "array truthiness", expr: "list && true", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := ParseExpression(tt.expr)
			if err != nil {
				t.Fatalf("ParseExpression() error = %v", err)
			}
			got, err := node.Evaluate(data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{json.Number("0"), false},
		{json.Number("0.5"), true},
		{-1.0, true},
		{"", false},
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"no", true},
		{[]interface{}{}, false},
		{map[string]interface{}{"a": 1}, true},
	}

	for _, tt := range tests {
		if got := isTruthy(tt.value); got != tt.want {
			t.Errorf("isTruthy(%#v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
