package odf

// OpenDocument namespace URIs used by the merge engine.
const (
	NSOffice = "urn:oasis:names:tc:opendocument:xmlns:office:1.0"
	NSStyle  = "urn:oasis:names:tc:opendocument:xmlns:style:1.0"
	NSText   = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
	NSTable  = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"
	NSDraw   = "urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"
	NSFo     = "urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"
	NSSvg    = "urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"
	NSNumber = "urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0"
	NSXlink  = "http://www.w3.org/1999/xlink"
	NSXML    = "http://www.w3.org/XML/1998/namespace"
	NSXmlns  = "http://www.w3.org/2000/xmlns/"
)

// knownPrefixes holds the conventional prefix for each namespace. It is used
// when a tree has to declare a namespace it did not carry before.
var knownPrefixes = map[string]string{
	NSOffice: "office",
	NSStyle:  "style",
	NSText:   "text",
	NSTable:  "table",
	NSDraw:   "draw",
	NSFo:     "fo",
	NSSvg:    "svg",
	NSNumber: "number",
	NSXlink:  "xlink",
}

// Kind is the closed set of element variants the merge pipeline dispatches on.
type Kind int

const (
	KindOther Kind = iota
	KindSection
	KindConditionalText
	KindTableRow
	KindSpan
	KindParagraph
	KindHiddenText
	KindHiddenParagraph
	KindUserField
	KindSectionSource
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindSection:
		return "section"
	case KindConditionalText:
		return "conditional-text"
	case KindTableRow:
		return "table-row"
	case KindSpan:
		return "span"
	case KindParagraph:
		return "paragraph"
	case KindHiddenText:
		return "hidden-text"
	case KindHiddenParagraph:
		return "hidden-paragraph"
	case KindUserField:
		return "user-field"
	case KindSectionSource:
		return "section-source"
	case KindTable:
		return "table"
	default:
		return "other"
	}
}

func classify(space, local string) Kind {
	switch space {
	case NSText:
		switch local {
		case "section":
			return KindSection
		case "conditional-text":
			return KindConditionalText
		case "span":
			return KindSpan
		case "p", "h":
			return KindParagraph
		case "hidden-text":
			return KindHiddenText
		case "hidden-paragraph":
			return KindHiddenParagraph
		case "user-field-get", "variable-get":
			return KindUserField
		case "section-source":
			return KindSectionSource
		}
	case NSTable:
		switch local {
		case "table-row":
			return KindTableRow
		case "table":
			return KindTable
		}
	}
	return KindOther
}
