package stencil

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

var legacyKeywords = map[string]string{
	"AND":   "&&",
	"OR":    "||",
	"NOT":   "!",
	"EQ":    "==",
	"NEQ":   "!=",
	"TRUE":  "true",
	"FALSE": "false",
}

// vendorPrefix is the OpenOffice writer namespace some producers put in
// front of field names inside conditions.
const vendorPrefix = "ooow"

func isPathByte(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// scanQuoted returns the index just past the quoted literal starting at i.
// An unterminated literal runs to the end of s.
func scanQuoted(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(s)
}

// preprocessCondition rewrites a raw condition attribute into the expression
// syntax: it strips the vendor prefix, unescapes &quot;, maps the legacy
// keywords and bare "=" and "<>" operators, and leaves string literals and
// operators already in target form untouched.
func preprocessCondition(raw string) string {
	s := strings.ReplaceAll(raw, "&quot;", `"`)
	var sb strings.Builder
	sb.Grow(len(s) + 8)

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			j := scanQuoted(s, i)
			sb.WriteString(s[i:j])
			i = j

		case isPathByte(c):
			j := i
			for j < len(s) && isPathByte(s[j]) {
				j++
			}
			word := s[i:j]
			if word == vendorPrefix && j < len(s) && s[j] == ':' {
				i = j + 1
				continue
			}
			if kw, ok := legacyKeywords[strings.ToUpper(word)]; ok {
				sb.WriteString(kw)
			} else {
				sb.WriteString(word)
			}
			i = j

		case c == '<' && i+1 < len(s) && s[i+1] == '>':
			sb.WriteString("!=")
			i += 2

		case c == '=':
			switch {
			case i+1 < len(s) && s[i+1] == '=':
				sb.WriteString("==")
				i += 2
			case i > 0 && strings.IndexByte("!<>=", s[i-1]) >= 0:
				sb.WriteByte('=')
				i++
			default:
				sb.WriteString("==")
				i++
			}

		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// conditionLiteral renders a payload scalar as an expression literal.
func conditionLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case json.Number:
		return val.String()
	case string:
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
		return `"` + r.Replace(val) + `"`
	default:
		if _, ok := toFloat64(val); ok {
			return FormatValue(val)
		}
		return `"` + strings.ReplaceAll(FormatValue(val), `"`, `\"`) + `"`
	}
}

type conditionSegment struct {
	text    string
	literal bool
}

// splitLiterals cuts an expression into code and quoted-literal segments.
func splitLiterals(expr string) []conditionSegment {
	var segs []conditionSegment
	start := 0
	for i := 0; i < len(expr); {
		c := expr[i]
		if c != '"' && c != '\'' {
			i++
			continue
		}
		if i > start {
			segs = append(segs, conditionSegment{text: expr[start:i]})
		}
		j := scanQuoted(expr, i)
		segs = append(segs, conditionSegment{text: expr[i:j], literal: true})
		i, start = j, j
	}
	if start < len(expr) {
		segs = append(segs, conditionSegment{text: expr[start:]})
	}
	return segs
}

// substitutePath replaces every bounded occurrence of path in the code
// segments with lit. Inserted literals become literal segments themselves,
// so later (shorter) paths can never match inside them.
func substitutePath(segs []conditionSegment, path, lit string) []conditionSegment {
	out := make([]conditionSegment, 0, len(segs))
	for _, seg := range segs {
		if seg.literal || !strings.Contains(seg.text, path) {
			out = append(out, seg)
			continue
		}
		text := seg.text
		from := 0
		for {
			idx := strings.Index(text[from:], path)
			if idx < 0 {
				break
			}
			idx += from
			end := idx + len(path)
			boundedLeft := idx == 0 || !isPathByte(text[idx-1])
			boundedRight := end == len(text) || !isPathByte(text[end])
			if !boundedLeft || !boundedRight {
				from = idx + 1
				continue
			}
			if idx > 0 {
				out = append(out, conditionSegment{text: text[:idx]})
			}
			out = append(out, conditionSegment{text: lit, literal: true})
			text = text[end:]
			from = 0
		}
		if text != "" {
			out = append(out, conditionSegment{text: text})
		}
	}
	return out
}

// ConditionEvaluator evaluates visibility conditions against one payload.
// The payload is flattened once; leaf paths are kept longest first.
type ConditionEvaluator struct {
	data   TemplateData
	leaves []leafValue
}

// NewConditionEvaluator prepares an evaluator for data.
func NewConditionEvaluator(data TemplateData) *ConditionEvaluator {
	leaves := flattenLeaves(data)
	sort.SliceStable(leaves, func(i, j int) bool {
		if len(leaves[i].Path) != len(leaves[j].Path) {
			return len(leaves[i].Path) > len(leaves[j].Path)
		}
		return leaves[i].Path < leaves[j].Path
	})
	return &ConditionEvaluator{data: data, leaves: leaves}
}

// Substitute preprocesses raw and replaces every payload leaf path in it with
// its literal value.
func (ce *ConditionEvaluator) Substitute(raw string) string {
	segs := splitLiterals(preprocessCondition(raw))
	for _, leaf := range ce.leaves {
		segs = substitutePath(segs, leaf.Path, conditionLiteral(leaf.Value))
	}
	var sb strings.Builder
	for _, seg := range segs {
		sb.WriteString(seg.text)
	}
	return sb.String()
}

// Evaluate reports whether raw holds. A blank condition always holds.
// Failures carry the raw text: *ConditionSyntaxError when the expression does
// not parse, *ConditionEvaluationError when it fails while evaluating.
func (ce *ConditionEvaluator) Evaluate(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return true, nil
	}
	expr := ce.Substitute(raw)
	node, err := ParseExpression(expr)
	if err != nil {
		return false, NewConditionSyntaxError(raw, err)
	}
	result, err := node.Evaluate(ce.data)
	if err != nil {
		return false, NewConditionEvaluationError(raw, err)
	}
	return isTruthy(result), nil
}

// EvaluateCondition is a one-shot form of ConditionEvaluator.Evaluate.
func EvaluateCondition(raw string, data TemplateData) (bool, error) {
	return NewConditionEvaluator(data).Evaluate(raw)
}

// ValidateCondition checks that raw parses, without evaluating it.
func ValidateCondition(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := ParseExpression(preprocessCondition(raw)); err != nil {
		return NewConditionSyntaxError(raw, err)
	}
	return nil
}

func isConditional(k odf.Kind) bool {
	switch k {
	case odf.KindSection, odf.KindConditionalText, odf.KindParagraph, odf.KindSpan,
		odf.KindHiddenText, odf.KindHiddenParagraph:
		return true
	}
	return false
}

// conditionalElements lists the elements below root that carry a condition,
// in document order. Conditional text and hidden fields are always listed;
// other kinds only when their condition is non-blank.
func conditionalElements(t *odf.Tree, root odf.NodeID) []odf.NodeID {
	return t.FindAll(root, func(n odf.NodeID) bool {
		kind := t.Kind(n)
		if !isConditional(kind) {
			return false
		}
		switch kind {
		case odf.KindConditionalText, odf.KindHiddenText, odf.KindHiddenParagraph:
			return true
		}
		return strings.TrimSpace(t.AttrValue(n, odf.NSText, "condition")) != ""
	})
}

// resolveConditions evaluates and resolves every conditional element below
// root. It returns the number of elements resolved.
func resolveConditions(t *odf.Tree, root odf.NodeID, ce *ConditionEvaluator, logger *Logger) (int, error) {
	resolved := 0
	for _, id := range conditionalElements(t, root) {
		// An earlier resolution may have removed an ancestor
		if !t.IsAttached(id) {
			continue
		}
		raw := t.AttrValue(id, odf.NSText, "condition")
		holds, err := ce.Evaluate(raw)
		if err != nil {
			return resolved, err
		}
		kind := t.Kind(id)
		if logger.IsDebugMode() {
			logger.WithFields(Fields{"kind": kind.String(), "condition": raw, "result": holds}).Debug("resolved condition")
		}
		resolveElement(t, id, kind, holds)
		resolved++
	}
	return resolved, nil
}

func resolveElement(t *odf.Tree, id odf.NodeID, kind odf.Kind, holds bool) {
	switch kind {
	case odf.KindSection:
		if holds {
			t.Remove(id)
			return
		}
		t.RemoveAttr(id, odf.NSText, "condition")
		t.SetAttr(id, odf.NSText, "is-hidden", "true")

	case odf.KindConditionalText:
		value := t.AttrValue(id, odf.NSText, "string-value-if-false")
		if holds {
			value = t.AttrValue(id, odf.NSText, "string-value-if-true")
		}
		replaceWithText(t, id, value)

	case odf.KindHiddenText:
		if holds {
			t.Remove(id)
			return
		}
		replaceWithText(t, id, t.AttrValue(id, odf.NSText, "string-value"))

	case odf.KindHiddenParagraph:
		if holds {
			para := t.Ancestor(id, func(n odf.NodeID) bool { return t.Kind(n) == odf.KindParagraph })
			if para != odf.None {
				t.Remove(para)
				return
			}
		}
		t.Remove(id)

	case odf.KindParagraph, odf.KindSpan:
		t.RemoveAttr(id, odf.NSText, "condition")
	}
}

func replaceWithText(t *odf.Tree, id odf.NodeID, value string) {
	if value == "" {
		t.Remove(id)
		return
	}
	t.Replace(id, t.NewText(value))
}
