package stencil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/render"
)

// TemplateData is the JSON payload merged into a template. Values follow the
// shapes produced by encoding/json with UseNumber: string, json.Number, bool,
// nil, map[string]interface{} and []interface{}.
type TemplateData map[string]interface{}

// ParseData decodes a JSON object into TemplateData, keeping numbers verbatim.
func ParseData(r io.Reader) (TemplateData, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if dec.More() {
		return nil, errors.New("failed to decode data: trailing content after JSON value")
	}
	switch v := root.(type) {
	case map[string]interface{}:
		return TemplateData(v), nil
	case nil:
		return TemplateData{}, nil
	default:
		return nil, fmt.Errorf("failed to decode data: expected a JSON object, got %T", root)
	}
}

// ParseDataBytes is ParseData over a byte slice.
func ParseDataBytes(data []byte) (TemplateData, error) {
	return ParseData(bytes.NewReader(data))
}

// normalizeData converts caller-built data (ints, typed slices, nested
// TemplateData) into the canonical JSON shapes by a round trip through
// encoding/json.
func normalizeData(data TemplateData) (TemplateData, error) {
	if data == nil {
		return TemplateData{}, nil
	}
	raw, err := json.Marshal(map[string]interface{}(data))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize data: %w", err)
	}
	return ParseDataBytes(raw)
}

// EvaluateVariable resolves a dotted path such as "items.0.price" against data.
// Numeric segments index into arrays. Missing paths resolve to nil.
func EvaluateVariable(path string, data TemplateData) (interface{}, error) {
	path = strings.TrimSpace(path)
	if data == nil || path == "" {
		return nil, nil
	}
	value, _ := lookupPath(map[string]interface{}(data), path)
	return value, nil
}

func lookupPath(root interface{}, path string) (interface{}, bool) {
	current := root
	for _, seg := range render.SplitPath(path) {
		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case TemplateData:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			if !render.IsIndexSegment(seg) {
				return nil, false
			}
			idx, _ := strconv.Atoi(seg)
			if idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// FormatValue renders a payload value as field text: strings verbatim,
// booleans as TRUE/FALSE, numbers as written in the payload, objects and
// arrays as compact JSON, and nil as the empty string.
func FormatValue(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', 10, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', 15, 64)
	case map[string]interface{}, TemplateData, []interface{}:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// leafValue is one scalar in a flattened payload.
type leafValue struct {
	Path  string
	Value interface{}
}

// flattenLeaves lists every scalar in data with its dotted path. Array
// elements are addressed by index ("items.0.name"). Keys are visited in
// sorted order so the result is deterministic.
func flattenLeaves(data TemplateData) []leafValue {
	var out []leafValue
	var walk func(path string, v interface{})
	walk = func(path string, v interface{}) {
		switch node := v.(type) {
		case map[string]interface{}:
			for _, k := range sortedKeys(node) {
				walk(render.JoinPath(path, k), node[k])
			}
		case TemplateData:
			walk(path, map[string]interface{}(node))
		case []interface{}:
			for i, elem := range node {
				walk(render.JoinPath(path, strconv.Itoa(i)), elem)
			}
		default:
			if path != "" {
				out = append(out, leafValue{Path: path, Value: node})
			}
		}
	}
	walk("", map[string]interface{}(data))
	return out
}

// collectArrayPaths records the dotted path of every array in data. Arrays
// nested in array elements are recorded twice: under the unindexed pattern
// ("items.tags") that template fields use before expansion, and under each
// concrete indexed path ("items.0.tags") that fields carry after the outer
// region has been expanded.
func collectArrayPaths(data TemplateData) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	var walk func(pattern, concrete string, v interface{})
	walk = func(pattern, concrete string, v interface{}) {
		switch node := v.(type) {
		case map[string]interface{}:
			for _, k := range sortedKeys(node) {
				walk(render.JoinPath(pattern, k), render.JoinPath(concrete, k), node[k])
			}
		case TemplateData:
			walk(pattern, concrete, map[string]interface{}(node))
		case []interface{}:
			add(pattern)
			add(concrete)
			for i, elem := range node {
				walk(pattern, render.JoinPath(concrete, strconv.Itoa(i)), elem)
			}
		}
	}
	walk("", "", map[string]interface{}(data))
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
