package stencil

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, data TemplateData)
	}{
		{
			name:  "numbers stay verbatim",
			input: `{"amount": -98765.4321, "count": 10}`,
			check: func(t *testing.T, data TemplateData) {
				if got := data["amount"]; got != json.Number("-98765.4321") {
					t.Errorf("amount = %#v, want json.Number", got)
				}
			},
		},
		{
			name:  "null document is empty",
			input: `null`,
			check: func(t *testing.T, data TemplateData) {
				if len(data) != 0 {
					t.Errorf("expected empty data, got %v", data)
				}
			},
		},
		{name: "array root", input: `[1,2]`, wantErr: true},
		{name: "malformed", input: `{"a":`, wantErr: true},
		{name: "trailing content", input: `{} {}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseData(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, data)
			}
		})
	}
}

func TestEvaluateVariable(t *testing.T) {
	data := TemplateData{
		"customer": map[string]interface{}{
			"address": map[string]interface{}{"street": "Hauptstr. 1"},
		},
		"items": []interface{}{
			map[string]interface{}{"name": "Widget"},
		},
	}

	tests := []struct {
		path string
		want interface{}
	}{
		{"customer.address.street", "Hauptstr. 1"},
		{"items.0.name", "Widget"},
		{"items.1.name", nil},
		{"items.name", nil},
		{"customer.missing", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := EvaluateVariable(tt.path, data)
			if err != nil {
				t.Fatalf("EvaluateVariable() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateVariable(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, ""},
		{"string", "text", "text"},
		{"number", json.Number("1.50"), "1.50"},
		{"true", true, "TRUE"},
		{"false", false, "FALSE"},
		{"int", 42, "42"},
		{"object", map[string]interface{}{"b": json.Number("1"), "a": "x"}, `{"a":"x","b":1}`},
		{"array", []interface{}{"a", json.Number("2")}, `["a",2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.value); got != tt.want {
				t.Errorf("FormatValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenLeaves(t *testing.T) {
	data := testData(t, `{"b":{"c":1},"a":[{"x":true},{"x":null}],"s":"v"}`)

	var got []string
	for _, leaf := range flattenLeaves(data) {
		got = append(got, leaf.Path+"="+FormatValue(leaf.Value))
	}
	want := []string{"a.0.x=TRUE", "a.1.x=", "b.c=1", "s=v"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flattenLeaves() = %v, want %v", got, want)
	}
}

func TestCollectArrayPaths(t *testing.T) {
	data := testData(t, `{
		"orders": [
			{"items": [{"name": "a"}]},
			{"items": []}
		],
		"tags": ["x"],
		"meta": {"list": []}
	}`)

	got := collectArrayPaths(data)
	want := []string{"meta.list", "orders", "orders.items", "orders.0.items", "orders.1.items", "tags"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectArrayPaths() = %v, want %v", got, want)
	}
}

func TestNormalizeData(t *testing.T) {
	data, err := normalizeData(TemplateData{
		"n":     3,
		"items": []map[string]interface{}{{"price": 1.5}},
	})
	if err != nil {
		t.Fatalf("normalizeData() error = %v", err)
	}
	if got := data["n"]; got != json.Number("3") {
		t.Errorf("n = %#v, want json.Number(3)", got)
	}
	if got, _ := EvaluateVariable("items.0.price", data); got != json.Number("1.5") {
		t.Errorf("items.0.price = %#v, want json.Number(1.5)", got)
	}
}
