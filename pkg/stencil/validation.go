package stencil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
	"github.com/benjaminschreck/odtstencil/pkg/stencil/render"
)

const (
	validationParserVersion = "odt-v1"
	jsonSchemaDraft07       = "http://json-schema.org/draft-07/schema#"
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)*$`)

// IssueSeverity indicates validation issue severity.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "error"
	IssueSeverityWarning IssueSeverity = "warning"
)

// IssueCode identifies the kind of a validation issue.
type IssueCode string

const (
	IssueCodeInvalidFieldName    IssueCode = "INVALID_FIELD_NAME"
	IssueCodeInvalidCondition    IssueCode = "INVALID_CONDITION"
	IssueCodeInvalidODTStructure IssueCode = "INVALID_ODT_STRUCTURE"
)

// ValidateOptions controls template validation.
type ValidateOptions struct {
	// SampleData, when set, supplies the array paths used to report
	// repeatable regions and array-typed schema properties.
	SampleData TemplateData
	// MaxIssues caps the number of returned issues. 0 means unlimited.
	MaxIssues int
}

// TemplateLocation identifies an element in a document part.
type TemplateLocation struct {
	Part  string `json:"part"`
	Path  string `json:"path"`
	Index int    `json:"index"`
}

// ValidationIssue is one problem found in a template.
type ValidationIssue struct {
	ID       string           `json:"id"`
	Severity IssueSeverity    `json:"severity"`
	Code     IssueCode        `json:"code"`
	Message  string           `json:"message"`
	Subject  string           `json:"subject,omitempty"`
	Location TemplateLocation `json:"location"`
}

// FieldRef is a field found in the template.
type FieldRef struct {
	Name      string           `json:"name"`
	DataStyle string           `json:"dataStyle,omitempty"`
	Type      string           `json:"type"`
	Location  TemplateLocation `json:"location"`
}

// ConditionRef is a condition found in the template.
type ConditionRef struct {
	Kind      string           `json:"kind"`
	Condition string           `json:"condition"`
	Valid     bool             `json:"valid"`
	Location  TemplateLocation `json:"location"`
}

// IncludeRef is a text block reference found in the template.
type IncludeRef struct {
	Name       string            `json:"name"`
	BlockName  string            `json:"blockName"`
	Href       string            `json:"href,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// RegionRef is a repeatable region bound to an array of the sample data.
type RegionRef struct {
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	ArrayPath string `json:"arrayPath"`
}

// SchemaNode is a JSON schema (draft-07) fragment.
type SchemaNode struct {
	Schema     string                 `json:"$schema,omitempty"`
	Type       string                 `json:"type"`
	Properties map[string]*SchemaNode `json:"properties,omitempty"`
	Items      *SchemaNode            `json:"items,omitempty"`
}

// ValidationSummary contains validation counters.
type ValidationSummary struct {
	FieldCount      int  `json:"fieldCount"`
	ConditionCount  int  `json:"conditionCount"`
	IncludeCount    int  `json:"includeCount"`
	ErrorCount      int  `json:"errorCount"`
	WarningCount    int  `json:"warningCount"`
	ReturnedIssues  int  `json:"returnedIssues"`
	IssuesTruncated bool `json:"issuesTruncated"`
}

// ValidationMetadata identifies the validated document and parser.
type ValidationMetadata struct {
	Location      string `json:"location,omitempty"`
	ContentHash   string `json:"contentHash"`
	ParserVersion string `json:"parserVersion"`
}

// ValidationResult is the outcome of ValidateTemplate.
type ValidationResult struct {
	IsValid    bool               `json:"isValid"`
	Summary    ValidationSummary  `json:"summary"`
	Issues     []ValidationIssue  `json:"issues"`
	Fields     []FieldRef         `json:"fields"`
	Conditions []ConditionRef     `json:"conditions"`
	Includes   []IncludeRef       `json:"includes"`
	Regions    []RegionRef        `json:"regions,omitempty"`
	Schema     *SchemaNode        `json:"schema"`
	Metadata   ValidationMetadata `json:"metadata"`
}

// ValidateTemplate inspects doc without changing it. It reports every
// field, condition and include, checks field names and condition syntax,
// and derives a JSON schema for the data the template expects.
func ValidateTemplate(doc *Document, opts ValidateOptions) *ValidationResult {
	res := &ValidationResult{
		Issues:     []ValidationIssue{},
		Fields:     []FieldRef{},
		Conditions: []ConditionRef{},
		Includes:   []IncludeRef{},
		Metadata:   newValidationMetadata(doc),
	}

	var arrayPaths []string
	if opts.SampleData != nil {
		if data, err := normalizeData(opts.SampleData); err == nil {
			arrayPaths = collectArrayPaths(data)
		}
	}

	body := odf.None
	if doc != nil && doc.Content != nil {
		body = doc.Body()
	}
	if body == odf.None {
		res.addIssue(IssueSeverityError, IssueCodeInvalidODTStructure, "document has no office:text body", "",
			TemplateLocation{Part: partContent, Path: "office:document-content"})
	} else {
		for _, inc := range findIncludes(doc.Content, body) {
			res.Includes = append(res.Includes, IncludeRef{
				Name:       inc.name,
				BlockName:  render.BlockName(inc.name),
				Href:       inc.href,
				Parameters: render.ParseBlockParams(inc.name),
			})
		}
		if len(arrayPaths) > 0 {
			res.Regions = validationRegions(doc.Content, body, arrayPaths)
		}
	}

	var styles map[string]dataStyle
	if doc != nil && doc.Content != nil {
		styles = collectDataStyles(doc)
		for _, r := range validationRegionsOf(doc) {
			res.scanRegion(r, styles)
		}
	}

	names := make([]string, 0, len(res.Fields))
	for _, f := range res.Fields {
		names = append(names, f.Name)
	}
	res.Schema = buildSchema(names, arrayPaths)

	res.finish(opts.MaxIssues)
	return res
}

type validationRegion struct {
	part string
	mergeRegion
}

func validationRegionsOf(doc *Document) []validationRegion {
	var out []validationRegion
	for _, r := range mergeRegions(doc) {
		part := partContent
		if r.tree == doc.Styles {
			part = partStyles
		}
		out = append(out, validationRegion{part: part, mergeRegion: r})
	}
	return out
}

func (res *ValidationResult) scanRegion(r validationRegion, styles map[string]dataStyle) {
	t := r.tree
	index := 0
	t.Walk(r.root, func(n odf.NodeID) bool {
		if !t.IsElement(n) {
			return false
		}
		index++
		loc := TemplateLocation{Part: r.part, Path: elementPath(t, n), Index: index}
		kind := t.Kind(n)

		if kind == odf.KindUserField {
			name := t.AttrValue(n, odf.NSText, "name")
			style := t.AttrValue(n, odf.NSStyle, "data-style-name")
			typ := FieldUnknown
			if ds, ok := styles[style]; ok {
				typ = ds.typ
			}
			res.Fields = append(res.Fields, FieldRef{Name: name, DataStyle: style, Type: typ.String(), Location: loc})
			if !fieldNamePattern.MatchString(name) {
				res.addIssue(IssueSeverityWarning, IssueCodeInvalidFieldName,
					fmt.Sprintf("field name %q is not a dotted identifier path", name), name, loc)
			}
		}

		if isConditional(kind) {
			if cond, ok := t.Attr(n, odf.NSText, "condition"); ok {
				ref := ConditionRef{Kind: kind.String(), Condition: cond, Valid: true, Location: loc}
				if err := ValidateCondition(cond); err != nil {
					ref.Valid = false
					res.addIssue(IssueSeverityError, IssueCodeInvalidCondition, err.Error(), cond, loc)
				}
				res.Conditions = append(res.Conditions, ref)
			}
		}
		return true
	})
}

// validationRegions reports the regions that would bind to arrayPaths. Only
// top-level bindings are reported since nested ones depend on expansion.
func validationRegions(t *odf.Tree, body odf.NodeID, arrayPaths []string) []RegionRef {
	var out []RegionRef
	for _, c := range t.FindAll(body, func(n odf.NodeID) bool { return isRepeatable(t, n) }) {
		path, ok := bindRegion(t, c, arrayPaths)
		if !ok {
			continue
		}
		out = append(out, RegionRef{
			Kind:      t.Kind(c).String(),
			Name:      t.AttrValue(c, odf.NSText, "name"),
			ArrayPath: path,
		})
	}
	return out
}

// elementPath returns the qualified names from the root down to id.
func elementPath(t *odf.Tree, id odf.NodeID) string {
	var parts []string
	for n := id; n != odf.None; n = t.Parent(n) {
		parts = append(parts, t.QName(n))
	}
	path := ""
	for i := len(parts) - 1; i >= 0; i-- {
		path += "/" + parts[i]
	}
	return path
}

func (res *ValidationResult) addIssue(sev IssueSeverity, code IssueCode, message, subject string, loc TemplateLocation) {
	res.Issues = append(res.Issues, ValidationIssue{
		Severity: sev,
		Code:     code,
		Message:  message,
		Subject:  subject,
		Location: loc,
	})
}

func (res *ValidationResult) finish(maxIssues int) {
	sort.SliceStable(res.Issues, func(i, j int) bool {
		a, b := res.Issues[i], res.Issues[j]
		if a.Severity != b.Severity {
			return a.Severity == IssueSeverityError
		}
		if a.Location.Part != b.Location.Part {
			return a.Location.Part < b.Location.Part
		}
		return a.Location.Index < b.Location.Index
	})
	for i := range res.Issues {
		res.Issues[i].ID = fmt.Sprintf("%s-%d", res.Issues[i].Code, i+1)
		if res.Issues[i].Severity == IssueSeverityError {
			res.Summary.ErrorCount++
		} else {
			res.Summary.WarningCount++
		}
	}
	if maxIssues > 0 && len(res.Issues) > maxIssues {
		res.Issues = res.Issues[:maxIssues]
		res.Summary.IssuesTruncated = true
	}
	res.Summary.ReturnedIssues = len(res.Issues)
	res.Summary.FieldCount = len(res.Fields)
	res.Summary.ConditionCount = len(res.Conditions)
	res.Summary.IncludeCount = len(res.Includes)
	res.IsValid = res.Summary.ErrorCount == 0
}

func newValidationMetadata(doc *Document) ValidationMetadata {
	md := ValidationMetadata{ParserVersion: validationParserVersion}
	if doc == nil {
		return md
	}
	md.Location = doc.Location
	if doc.Content != nil {
		sum := sha256.Sum256(doc.Content.Bytes())
		md.ContentHash = hex.EncodeToString(sum[:])
	}
	return md
}

// buildSchema derives an object schema from dotted field names. Paths in
// arrayPaths become arrays of objects; every other leaf is a string.
func buildSchema(fields, arrayPaths []string) *SchemaNode {
	arrays := make(map[string]bool, len(arrayPaths))
	for _, p := range arrayPaths {
		arrays[p] = true
	}
	root := &SchemaNode{Schema: jsonSchemaDraft07, Type: "object", Properties: map[string]*SchemaNode{}}

	for _, name := range fields {
		if !fieldNamePattern.MatchString(name) {
			continue
		}
		segs := render.SplitPath(name)
		node := root
		path := ""
		for i, seg := range segs {
			path = render.JoinPath(path, seg)
			last := i == len(segs)-1

			child, ok := node.Properties[seg]
			if !ok {
				child = &SchemaNode{Type: "string"}
				node.Properties[seg] = child
			}
			if arrays[path] {
				if child.Type != "array" {
					child.Type = "array"
					child.Properties = nil
					child.Items = &SchemaNode{Type: "object", Properties: map[string]*SchemaNode{}}
				}
				node = child.Items
				continue
			}
			if last {
				break
			}
			if child.Type != "object" {
				child.Type = "object"
				child.Properties = map[string]*SchemaNode{}
			}
			node = child
		}
	}
	return root
}
