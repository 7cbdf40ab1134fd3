package render

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	leadingIndexRegex = regexp.MustCompile(`^\d+(\.|$)`)
	blockParamsRegex  = regexp.MustCompile(`^\s*[^()]+\((.*)\)\s*$`)
)

// IsIndexSegment reports whether a dotted-path segment is an array index.
func IsIndexSegment(seg string) bool {
	if seg == "" {
		return false
	}
	_, err := strconv.Atoi(seg)
	return err == nil && seg[0] != '-' && seg[0] != '+'
}

// StartsWithIndex reports whether a dotted path begins with a numeric segment.
func StartsWithIndex(path string) bool {
	return leadingIndexRegex.MatchString(path)
}

// MatchArrayPath reports whether a field name is bound to arrayPath: it is
// the path itself, or lies below it without already being index-qualified.
func MatchArrayPath(field, arrayPath string) bool {
	if arrayPath == "" {
		return false
	}
	if field == arrayPath {
		return true
	}
	if !strings.HasPrefix(field, arrayPath+".") {
		return false
	}
	return !StartsWithIndex(field[len(arrayPath)+1:])
}

// IndexLoopReference rewrites a field below arrayPath to address element idx.
// Fields outside arrayPath and fields that are already indexed are returned
// unchanged.
func IndexLoopReference(field, arrayPath string, idx int) string {
	prefix := arrayPath + "."
	if !strings.HasPrefix(field, prefix) {
		return field
	}
	rest := field[len(prefix):]
	if StartsWithIndex(rest) {
		return field
	}
	return prefix + strconv.Itoa(idx) + "." + rest
}

// ParseBlockParams extracts the target=source mapping from an include name
// such as "Address(kunde=customer, anschrift=customer.address)". Names
// without a parameter list yield an empty mapping.
func ParseBlockParams(name string) map[string]string {
	mapping := make(map[string]string)
	m := blockParamsRegex.FindStringSubmatch(name)
	if m == nil {
		return mapping
	}
	for _, pair := range strings.Split(m[1], ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		mapping[key] = value
	}
	return mapping
}

// BlockName returns the bare block name of an include, without parameters.
func BlockName(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// SanitizeBlockName returns the bare block name escaped for use as a single
// URL path segment.
func SanitizeBlockName(name string) string {
	return url.PathEscape(BlockName(name))
}

// RewriteByPrefixMapping maps a field name through a target->source
// mapping. The longest target that equals the field or is followed by a dot
// wins. Unmatched fields are returned unchanged.
func RewriteByPrefixMapping(field string, mapping map[string]string) string {
	if len(mapping) == 0 || field == "" {
		return field
	}
	targets := make([]string, 0, len(mapping))
	for target := range mapping {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool {
		if len(targets[i]) != len(targets[j]) {
			return len(targets[i]) > len(targets[j])
		}
		return targets[i] < targets[j]
	})
	for _, target := range targets {
		if field == target {
			return mapping[target]
		}
		if strings.HasPrefix(field, target+".") {
			return mapping[target] + field[len(target):]
		}
	}
	return field
}

// SplitPath splits a dotted path into segments. The empty path has none.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// JoinPath appends a segment to a dotted path.
func JoinPath(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}
