package stencil

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestValidateTemplate(t *testing.T) {
	body := `<text:p text:condition="kunde.anrede EQ &quot;FRAU&quot;">` + field("kunde.name") + `</text:p>` +
		`<text:section text:name="Adresse(empf=kunde)"><text:section-source xlink:href="blocks/adresse.odt"/></text:section>` +
		`<table:table>` + row(field("items.sku"), styledField("items.preis", "N104P0")) + `</table:table>` +
		`<text:p><text:conditional-text text:condition="a ==" text:string-value-if-true="x"/>` + field("9bad") + `</text:p>`
	masters := `<style:master-page style:name="Standard"><style:header><text:p>` + field("firma") + `</text:p></style:header></style:master-page>`
	doc := loadTestDoc(t, testContent(euroStyle, body), testStyles("", masters))

	res := ValidateTemplate(doc, ValidateOptions{SampleData: testData(t, `{"items":[{"sku":"a"}]}`)})

	if res.IsValid {
		t.Error("expected invalid template")
	}
	if res.Summary.FieldCount != 5 || res.Summary.ConditionCount != 2 || res.Summary.IncludeCount != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Summary.ErrorCount != 1 || res.Summary.WarningCount != 1 || res.Summary.ReturnedIssues != 2 {
		t.Errorf("issue counts = %+v", res.Summary)
	}

	if got := res.Issues[0]; got.Code != IssueCodeInvalidCondition || got.ID != "INVALID_CONDITION-1" || got.Subject != "a ==" {
		t.Errorf("first issue = %+v", got)
	}
	if got := res.Issues[1]; got.Code != IssueCodeInvalidFieldName || got.Severity != IssueSeverityWarning || got.Subject != "9bad" {
		t.Errorf("second issue = %+v", got)
	}

	var preis FieldRef
	for _, f := range res.Fields {
		if f.Name == "items.preis" {
			preis = f
		}
	}
	if preis.Type != "currency" || preis.DataStyle != "N104P0" || preis.Location.Part != partContent {
		t.Errorf("items.preis = %+v", preis)
	}
	if last := res.Fields[len(res.Fields)-1]; last.Name != "firma" || last.Location.Part != partStyles {
		t.Errorf("master page field = %+v", last)
	}

	inc := res.Includes[0]
	if inc.BlockName != "Adresse" || inc.Href != "blocks/adresse.odt" || !reflect.DeepEqual(inc.Parameters, map[string]string{"empf": "kunde"}) {
		t.Errorf("include = %+v", inc)
	}

	if len(res.Regions) != 1 || res.Regions[0].ArrayPath != "items" || res.Regions[0].Kind != "table-row" {
		t.Errorf("regions = %+v", res.Regions)
	}

	if !strings.HasPrefix(res.Conditions[0].Location.Path, "/office:document-content/office:body/office:text/text:p") {
		t.Errorf("condition path = %q", res.Conditions[0].Location.Path)
	}
	if res.Metadata.ParserVersion != "odt-v1" || len(res.Metadata.ContentHash) != 64 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestValidateTemplateDoesNotModify(t *testing.T) {
	doc := loadTestDoc(t, testContent("", `<text:section text:condition="x"><text:p>`+field("x")+`</text:p></text:section>`), "")
	before := string(doc.Content.Bytes())
	ValidateTemplate(doc, ValidateOptions{})
	if after := string(doc.Content.Bytes()); after != before {
		t.Errorf("content changed:\n%s\n%s", before, after)
	}
	if _, err := testEngine().Merge(doc, TemplateData{}); err != nil {
		t.Errorf("Merge() after validation error = %v", err)
	}
}

func TestValidateTemplateMaxIssues(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 5; i++ {
		body.WriteString(`<text:p text:condition="(">` + field("_x") + `</text:p>`)
	}
	doc := loadTestDoc(t, testContent("", body.String()), "")

	res := ValidateTemplate(doc, ValidateOptions{MaxIssues: 3})
	if len(res.Issues) != 3 || !res.Summary.IssuesTruncated || res.Summary.ReturnedIssues != 3 {
		t.Fatalf("summary = %+v, issues = %d", res.Summary, len(res.Issues))
	}
	if res.Summary.ErrorCount != 5 || res.Summary.WarningCount != 5 {
		t.Errorf("counts = %+v", res.Summary)
	}
	for _, issue := range res.Issues {
		if issue.Severity != IssueSeverityError {
			t.Errorf("errors should sort before warnings, got %+v", issue)
		}
	}
}

func TestValidateTemplateMissingBody(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?><office:document-content ` + testNamespaces + `/>`
	doc := loadTestDoc(t, content, "")

	res := ValidateTemplate(doc, ValidateOptions{})
	if res.IsValid || len(res.Issues) != 1 || res.Issues[0].Code != IssueCodeInvalidODTStructure {
		t.Errorf("result = %+v", res)
	}
}

func TestBuildSchema(t *testing.T) {
	schema := buildSchema(
		[]string{"kunde.name", "kunde.adresse.ort", "items.sku", "items.tags", "datum", "9bad"},
		[]string{"items", "items.tags"},
	)

	raw, err := json.Marshal(schema)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{` +
		`"datum":{"type":"string"},` +
		`"items":{"type":"array","items":{"type":"object","properties":{"sku":{"type":"string"},"tags":{"type":"array","items":{"type":"object"}}}}},` +
		`"kunde":{"type":"object","properties":{"adresse":{"type":"object","properties":{"ort":{"type":"string"}}},"name":{"type":"string"}}}}}`
	if string(raw) != want {
		t.Errorf("schema =\n%s\nwant\n%s", raw, want)
	}
}
