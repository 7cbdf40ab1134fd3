package stencil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ExpressionNode represents a node in the condition AST
type ExpressionNode interface {
	String() string
	Evaluate(data TemplateData) (interface{}, error)
}

// LiteralNode represents a literal value (string, number, boolean, null)
type LiteralNode struct {
	Value interface{}
}

func (n *LiteralNode) String() string {
	if str, ok := n.Value.(string); ok {
		return fmt.Sprintf("Literal(%q)", str)
	}
	return fmt.Sprintf("Literal(%v)", n.Value)
}

func (n *LiteralNode) Evaluate(data TemplateData) (interface{}, error) {
	return n.Value, nil
}

// VariableNode represents a dotted payload reference left in the expression
// after literal substitution. Unknown paths evaluate to nil.
type VariableNode struct {
	Name string
}

func (n *VariableNode) String() string {
	return fmt.Sprintf("Variable(%s)", n.Name)
}

func (n *VariableNode) Evaluate(data TemplateData) (interface{}, error) {
	return EvaluateVariable(n.Name, data)
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Left     ExpressionNode
	Operator string
	Right    ExpressionNode
}

func (n *BinaryOpNode) String() string {
	return fmt.Sprintf("BinaryOp(%s %s %s)", n.Left.String(), n.Operator, n.Right.String())
}

func (n *BinaryOpNode) Evaluate(data TemplateData) (interface{}, error) {
	leftVal, err := n.Left.Evaluate(data)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit
	switch n.Operator {
	case "&&":
		if !isTruthy(leftVal) {
			return false, nil
		}
	case "||":
		if isTruthy(leftVal) {
			return true, nil
		}
	}

	rightVal, err := n.Right.Evaluate(data)
	if err != nil {
		return nil, err
	}

	return EvaluateBinaryOperation(leftVal, n.Operator, rightVal)
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Operator string
	Operand  ExpressionNode
}

func (n *UnaryOpNode) String() string {
	return fmt.Sprintf("UnaryOp(%s %s)", n.Operator, n.Operand.String())
}

func (n *UnaryOpNode) Evaluate(data TemplateData) (interface{}, error) {
	operandVal, err := n.Operand.Evaluate(data)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "!":
		return !isTruthy(operandVal), nil
	case "-":
		num, ok := toFloat64(operandVal)
		if !ok {
			return nil, fmt.Errorf("cannot negate %s", describeValue(operandVal))
		}
		return -num, nil
	default:
		return nil, fmt.Errorf("unknown unary operator: %s", n.Operator)
	}
}

type ExpressionToken struct {
	Type  ExpressionTokenType
	Value string
	Pos   int
}

type ExpressionTokenType int

const (
	ExprTokenIdentifier ExpressionTokenType = iota
	ExprTokenNumber
	ExprTokenString
	ExprTokenOperator
	ExprTokenLeftParen
	ExprTokenRightParen
	ExprTokenEOF
)

var (
	// Dotted identifiers; segments after the first may be array indices
	identifierRegex  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z0-9_]+)*`)
	numberRegex      = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`)
	stringRegex      = regexp.MustCompile(`^"([^"\\]|\\.)*"`)
	singleQuoteRegex = regexp.MustCompile(`^'([^'\\]|\\.)*'`)
	operatorRegex    = regexp.MustCompile(`^(&&|\|\||==|!=|<=|>=|<|>|!|-)`)
)

// TokenizeExpression tokenizes a preprocessed condition
func TokenizeExpression(expr string) ([]ExpressionToken, error) {
	var tokens []ExpressionToken
	pos := 0

	for pos < len(expr) {
		switch expr[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
			continue
		case '(':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenLeftParen, Value: "(", Pos: pos})
			pos++
			continue
		case ')':
			tokens = append(tokens, ExpressionToken{Type: ExprTokenRightParen, Value: ")", Pos: pos})
			pos++
			continue
		}

		remaining := expr[pos:]

		if match := identifierRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenIdentifier, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := numberRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenNumber, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if match := stringRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenString, Value: unescapeLiteral(match[1 : len(match)-1]), Pos: pos})
			pos += len(match)
			continue
		}

		if match := singleQuoteRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenString, Value: unescapeLiteral(match[1 : len(match)-1]), Pos: pos})
			pos += len(match)
			continue
		}

		if match := operatorRegex.FindString(remaining); match != "" {
			tokens = append(tokens, ExpressionToken{Type: ExprTokenOperator, Value: match, Pos: pos})
			pos += len(match)
			continue
		}

		if remaining[0] == '"' || remaining[0] == '\'' {
			return nil, NewParseError("unterminated string literal", remaining[:1], pos)
		}
		return nil, NewParseError("unexpected character", string([]rune(remaining)[0]), pos)
	}

	tokens = append(tokens, ExpressionToken{Type: ExprTokenEOF, Pos: pos})
	return tokens, nil
}

// unescapeLiteral resolves backslash escapes inside a quoted literal.
func unescapeLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// ParseExpression parses a complete condition expression
func ParseExpression(expr string) (ExpressionNode, error) {
	tokens, err := TokenizeExpression(expr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 {
		return nil, NewParseError("empty expression", "", 0)
	}

	parser := &ExpressionParser{tokens: tokens}
	node, err := parser.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := parser.current(); tok.Type != ExprTokenEOF {
		return nil, NewParseError("unexpected token after expression", tok.Value, tok.Pos)
	}
	return node, nil
}

// ExpressionParser is a recursive-descent parser over condition tokens.
//
//	or      := and ('||' and)*
//	and     := eq ('&&' eq)*
//	eq      := cmp (('==' | '!=') cmp)*
//	cmp     := unary (('<' | '<=' | '>' | '>=') unary)*
//	unary   := ('!' | '-') unary | primary
//	primary := number | string | true | false | null | identifier | '(' or ')'
type ExpressionParser struct {
	tokens []ExpressionToken
	pos    int
}

func (p *ExpressionParser) current() ExpressionToken {
	if p.pos >= len(p.tokens) {
		return ExpressionToken{Type: ExprTokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *ExpressionParser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *ExpressionParser) isOperator(ops ...string) bool {
	tok := p.current()
	if tok.Type != ExprTokenOperator {
		return false
	}
	for _, op := range ops {
		if tok.Value == op {
			return true
		}
	}
	return false
}

func (p *ExpressionParser) parseExpression() (ExpressionNode, error) {
	return p.parseLogicalOr()
}

func (p *ExpressionParser) parseLogicalOr() (ExpressionNode, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}

	for p.isOperator("||") {
		op := p.current().Value
		p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseLogicalAnd() (ExpressionNode, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}

	for p.isOperator("&&") {
		op := p.current().Value
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseEquality() (ExpressionNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.isOperator("==", "!=") {
		op := p.current().Value
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseComparison() (ExpressionNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.isOperator("<", "<=", ">", ">=") {
		op := p.current().Value
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *ExpressionParser) parseUnary() (ExpressionNode, error) {
	if p.isOperator("!", "-") {
		op := p.current().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOpNode{Operator: op, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *ExpressionParser) parsePrimary() (ExpressionNode, error) {
	token := p.current()

	switch token.Type {
	case ExprTokenNumber:
		p.advance()
		if _, err := strconv.ParseFloat(token.Value, 64); err != nil {
			return nil, NewParseError("invalid number", token.Value, token.Pos)
		}
		return &LiteralNode{Value: json.Number(token.Value)}, nil

	case ExprTokenString:
		p.advance()
		return &LiteralNode{Value: token.Value}, nil

	case ExprTokenIdentifier:
		p.advance()
		switch strings.ToLower(token.Value) {
		case "true":
			return &LiteralNode{Value: true}, nil
		case "false":
			return &LiteralNode{Value: false}, nil
		case "null":
			return &LiteralNode{Value: nil}, nil
		}
		return &VariableNode{Name: token.Value}, nil

	case ExprTokenLeftParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current().Type != ExprTokenRightParen {
			return nil, NewParseError("expected ')' after expression", p.current().Value, p.current().Pos)
		}
		p.advance()
		return expr, nil

	case ExprTokenEOF:
		return nil, NewParseError("unexpected end of expression", "", token.Pos)

	default:
		return nil, NewParseError("unexpected token", token.Value, token.Pos)
	}
}

// EvaluateBinaryOperation applies a comparison or logical operator.
func EvaluateBinaryOperation(left interface{}, operator string, right interface{}) (interface{}, error) {
	switch operator {
	case "==":
		return evaluateEquals(left, right), nil
	case "!=":
		return !evaluateEquals(left, right), nil
	case "<", "<=", ">", ">=":
		return evaluateOrdering(left, operator, right)
	case "&&":
		return isTruthy(left) && isTruthy(right), nil
	case "||":
		return isTruthy(left) || isTruthy(right), nil
	default:
		return nil, fmt.Errorf("unknown binary operator: %s", operator)
	}
}

func evaluateEquals(left, right interface{}) bool {
	if left == nil && right == nil {
		return true
	}
	if left == nil || right == nil {
		return false
	}

	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if leftOk && rightOk {
		return leftNum == rightNum
	}
	// A numeric string equals the number it spells
	if leftOk {
		if s, ok := right.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return leftNum == f
			}
		}
		return false
	}
	if rightOk {
		return evaluateEquals(right, left)
	}

	switch l := left.(type) {
	case string, bool:
		return left == right
	default:
		return FormatValue(l) == FormatValue(right)
	}
}

func evaluateOrdering(left interface{}, operator string, right interface{}) (interface{}, error) {
	leftNum, leftOk := toFloat64(left)
	rightNum, rightOk := toFloat64(right)
	if leftOk && rightOk {
		switch operator {
		case "<":
			return leftNum < rightNum, nil
		case "<=":
			return leftNum <= rightNum, nil
		case ">":
			return leftNum > rightNum, nil
		default:
			return leftNum >= rightNum, nil
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		c := strings.Compare(ls, rs)
		switch operator {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}

	return nil, fmt.Errorf("cannot compare %s %s %s", describeValue(left), operator, describeValue(right))
}

func describeValue(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}, TemplateData:
		return "object"
	case []interface{}:
		return "array"
	}
	if _, ok := toFloat64(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// isTruthy coerces a condition result: nil is false, numbers are true when
// non-zero, strings are true unless empty or "false"/"0" in any case, and
// objects and arrays are true when non-empty.
func isTruthy(val interface{}) bool {
	if val == nil {
		return false
	}

	switch v := val.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(v)
		return s != "" && !strings.EqualFold(s, "false") && s != "0"
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	case TemplateData:
		return len(v) > 0
	}
	if num, ok := toFloat64(val); ok {
		return num != 0
	}
	return true
}
