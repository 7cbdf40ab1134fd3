package stencil

import (
	"fmt"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

// FieldType is the value type a data style declares for a field.
type FieldType int

const (
	FieldUnknown FieldType = iota
	FieldDate
	FieldNumber
	FieldCurrency
)

func (f FieldType) String() string {
	switch f {
	case FieldDate:
		return "date"
	case FieldNumber:
		return "number"
	case FieldCurrency:
		return "currency"
	default:
		return "unknown"
	}
}

func dataStyleType(local string) FieldType {
	switch local {
	case "date-style", "time-style":
		return FieldDate
	case "number-style", "percentage-style":
		return FieldNumber
	case "currency-style":
		return FieldCurrency
	}
	return FieldUnknown
}

// dataStyle is a number:* style definition found in one of the document parts.
type dataStyle struct {
	typ  FieldType
	tree *odf.Tree
	id   odf.NodeID
}

// collectDataStyles indexes the data styles of both document parts by name.
// Definitions in content.xml win over those in styles.xml.
func collectDataStyles(doc *Document) map[string]dataStyle {
	styles := make(map[string]dataStyle)
	for _, t := range []*odf.Tree{doc.Styles, doc.Content} {
		if t == nil {
			continue
		}
		for _, id := range t.FindAll(t.Root(), func(n odf.NodeID) bool {
			space, _ := t.Name(n)
			return space == odf.NSNumber
		}) {
			_, local := t.Name(id)
			typ := dataStyleType(local)
			name := t.AttrValue(id, odf.NSStyle, "name")
			if typ == FieldUnknown || name == "" {
				continue
			}
			styles[name] = dataStyle{typ: typ, tree: t, id: id}
		}
	}
	return styles
}

// fieldFormatter renders field values according to their data styles.
type fieldFormatter struct {
	styles map[string]dataStyle
	warn   func(kind WarningKind, subject, message string)
}

// format returns the display text of the named field's value. Values that
// do not parse as their declared type are returned unchanged.
func (ff *fieldFormatter) format(field, dataStyleName string, value interface{}) string {
	raw := FormatValue(value)
	style, ok := ff.styles[dataStyleName]
	if !ok || raw == "" {
		return raw
	}

	switch style.typ {
	case FieldDate:
		if out, ok := formatDate(raw); ok {
			return out
		}
	case FieldNumber, FieldCurrency:
		if out, ok := formatNumber(raw, numberStyleOf(style.tree, style.id)); ok {
			return out
		}
	default:
		return raw
	}

	if ff.warn != nil {
		ff.warn(WarnFieldFormatFallback, field,
			fmt.Sprintf("value %q is not a valid %s for style %s", raw, style.typ, dataStyleName))
	}
	return raw
}

// replaceFields substitutes every field below root with a text:span holding
// its formatted value.
func (m *mergeRun) replaceFields(t *odf.Tree, root odf.NodeID, ff *fieldFormatter) int {
	replaced := 0
	for _, id := range t.FindAll(root, func(n odf.NodeID) bool { return t.Kind(n) == odf.KindUserField }) {
		if !t.IsAttached(id) {
			continue
		}
		name, hasName := t.Attr(id, odf.NSText, "name")
		var text string
		if hasName {
			value, _ := EvaluateVariable(name, m.data)
			text = ff.format(name, t.AttrValue(id, odf.NSStyle, "data-style-name"), value)
		}

		span := t.NewElement(odf.NSText, "span")
		if text != "" {
			t.AppendChild(span, t.NewText(text))
		}
		t.Replace(id, span)
		replaced++
	}
	return replaced
}
