package stencil

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

const (
	defaultNumberLanguage = "de"
	defaultNumberCountry  = "DE"
)

// numberStyle is the output pattern declared by a number, percentage or
// currency style.
type numberStyle struct {
	Language         string
	Country          string
	DecimalPlaces    int
	MinDecimalPlaces int
	MinIntegerDigits int
	Grouping         bool
	Suffix           string
}

// numberStyleOf reads the output pattern of the data style at id.
func numberStyleOf(t *odf.Tree, id odf.NodeID) numberStyle {
	ns := numberStyle{
		Language:         t.AttrValue(id, odf.NSNumber, "language"),
		Country:          t.AttrValue(id, odf.NSNumber, "country"),
		MinIntegerDigits: 1,
	}
	minDecimalSet := false
	var suffix strings.Builder

	for _, c := range t.Children(id) {
		if !t.IsElement(c) {
			continue
		}
		space, local := t.Name(c)
		if space != odf.NSNumber {
			continue
		}
		switch local {
		case "number":
			ns.DecimalPlaces = atoiDefault(t.AttrValue(c, odf.NSNumber, "decimal-places"), 0)
			if v, ok := t.Attr(c, odf.NSNumber, "min-decimal-places"); ok {
				ns.MinDecimalPlaces = atoiDefault(v, 0)
				minDecimalSet = true
			}
			ns.MinIntegerDigits = max(1, atoiDefault(t.AttrValue(c, odf.NSNumber, "min-integer-digits"), 1))
			ns.Grouping = t.AttrValue(c, odf.NSNumber, "grouping") == "true"
		case "text":
			suffix.WriteString(t.Text(c))
		case "currency-symbol":
			if ns.Language == "" {
				ns.Language = t.AttrValue(c, odf.NSNumber, "language")
			}
			if ns.Country == "" {
				ns.Country = t.AttrValue(c, odf.NSNumber, "country")
			}
			if !strings.HasSuffix(suffix.String(), " ") {
				suffix.WriteByte(' ')
			}
			suffix.WriteString(t.Text(c))
		}
	}

	if !minDecimalSet {
		ns.MinDecimalPlaces = ns.DecimalPlaces
	}
	if ns.Language == "" {
		ns.Language = defaultNumberLanguage
	}
	if ns.Country == "" {
		ns.Country = defaultNumberCountry
	}
	ns.Suffix = suffix.String()
	return ns
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Tag returns the locale of the style.
func (ns numberStyle) Tag() language.Tag {
	tag, err := language.Parse(ns.Language + "-" + ns.Country)
	if err != nil {
		tag, err = language.Parse(ns.Language)
		if err != nil {
			return language.German
		}
	}
	return tag
}

// fractionDigits returns the minimum and maximum number of fraction digits.
func (ns numberStyle) fractionDigits() (int, int) {
	minFrac := 0
	if ns.DecimalPlaces > 0 {
		minFrac = max(1, ns.MinDecimalPlaces)
	}
	return minFrac, max(ns.DecimalPlaces, minFrac)
}

// formatNumber renders raw in the locale and pattern of ns.
func formatNumber(raw string, ns numberStyle) (string, bool) {
	f, ok := parseLocaleNumber(raw)
	if !ok {
		return "", false
	}
	minFrac, maxFrac := ns.fractionDigits()
	opts := []number.Option{
		number.MinIntegerDigits(ns.MinIntegerDigits),
		number.MinFractionDigits(minFrac),
		number.MaxFractionDigits(maxFrac),
	}
	if !ns.Grouping {
		opts = append(opts, number.NoSeparator())
	}
	p := message.NewPrinter(ns.Tag())
	return p.Sprint(number.Decimal(f, opts...)) + ns.Suffix, true
}

// parseLocaleNumber reads a decimal number written either with a point or a
// comma as the decimal mark, with optional grouping.
func parseLocaleNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}

	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.ReplaceAll(s, " ", "")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
