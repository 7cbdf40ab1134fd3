package stencil

import (
	"fmt"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
	"github.com/benjaminschreck/odtstencil/pkg/stencil/render"
)

// isRepeatable reports whether id can be a repeatable region.
func isRepeatable(t *odf.Tree, id odf.NodeID) bool {
	switch t.Kind(id) {
	case odf.KindSection, odf.KindTableRow:
		return true
	}
	return false
}

// candidateFields lists the fields that can bind container. A section
// counts every descendant field. A row skips fields inside tables nested in
// its cells, so an inner table's array does not bind the outer row.
func candidateFields(t *odf.Tree, container odf.NodeID) []odf.NodeID {
	isField := func(n odf.NodeID) bool { return t.Kind(n) == odf.KindUserField }
	if t.Kind(container) != odf.KindTableRow {
		return t.FindAll(container, isField)
	}
	var out []odf.NodeID
	t.Walk(container, func(n odf.NodeID) bool {
		if n != container && t.Kind(n) == odf.KindTable {
			return false
		}
		if isField(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// bindRegion returns the array path a container repeats over: the shortest
// array path matched by the first field that matches any.
func bindRegion(t *odf.Tree, container odf.NodeID, arrayPaths []string) (string, bool) {
	for _, f := range candidateFields(t, container) {
		name := t.AttrValue(f, odf.NSText, "name")
		best := ""
		for _, p := range arrayPaths {
			if render.MatchArrayPath(name, p) && (best == "" || len(p) < len(best)) {
				best = p
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}

// expandRepetitions expands every repeatable region below root, one at a
// time in document order, rescanning after each expansion so that regions
// nested in the copies bind to their now index-qualified paths. Copies are
// never bound again.
func (m *mergeRun) expandRepetitions(t *odf.Tree, root odf.NodeID, arrayPaths []string) (int, error) {
	if len(arrayPaths) == 0 {
		return 0, nil
	}
	instances := make(map[odf.NodeID]bool)
	expanded := 0

scan:
	for {
		for _, c := range t.FindAll(root, func(n odf.NodeID) bool { return isRepeatable(t, n) }) {
			if instances[c] {
				continue
			}
			path, ok := bindRegion(t, c, arrayPaths)
			if !ok {
				continue
			}
			n := m.expandRegion(t, c, path, instances)
			expanded++
			m.logger.WithFields(Fields{"kind": t.Kind(c).String(), "path": path, "copies": n}).Debug("expanded repeatable region")
			continue scan
		}
		return expanded, nil
	}
}

// expandRegion inserts one copy of container per element of the array at
// path, directly after it in order, then removes container. It returns the
// number of copies.
func (m *mergeRun) expandRegion(t *odf.Tree, container odf.NodeID, path string, instances map[odf.NodeID]bool) int {
	value, _ := lookupPath(map[string]interface{}(m.data), path)
	items, _ := value.([]interface{})

	prev := container
	for i := range items {
		clone := t.Clone(container)
		t.Walk(clone, func(n odf.NodeID) bool {
			if !t.IsElement(n) {
				return false
			}
			switch t.Kind(n) {
			case odf.KindUserField:
				name := t.AttrValue(n, odf.NSText, "name")
				if renamed := render.IndexLoopReference(name, path, i); renamed != name {
					t.SetAttr(n, odf.NSText, "name", renamed)
				}
			case odf.KindSection:
				t.SetAttr(n, odf.NSText, "name", m.nextSectionName())
			}
			return true
		})
		t.InsertAfter(prev, clone)
		instances[clone] = true
		prev = clone
	}
	t.Remove(container)
	return len(items)
}

// nextSectionName returns a section name unique within this merge.
func (m *mergeRun) nextSectionName() string {
	m.sectionSeq++
	return fmt.Sprintf("gen_%s_%d", m.token, m.sectionSeq)
}
