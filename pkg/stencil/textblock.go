package stencil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
	"github.com/benjaminschreck/odtstencil/pkg/stencil/render"
)

// include is a text block reference: a text:section-source inside a
// text:section. The section's name carries the block name and parameters.
type include struct {
	section odf.NodeID
	source  odf.NodeID
	name    string
	href    string
}

// Declaration containers of a block body that must not be copied into the
// host document.
var skippedBlockElements = []attrRef{
	{odf.NSText, "sequence-decls"},
	{odf.NSText, "variable-decls"},
	{odf.NSText, "user-field-decls"},
	{odf.NSOffice, "forms"},
}

// findIncludes lists the text block references below root in document order.
func findIncludes(t *odf.Tree, root odf.NodeID) []include {
	var out []include
	for _, src := range t.FindAll(root, func(n odf.NodeID) bool { return t.Kind(n) == odf.KindSectionSource }) {
		section := t.Parent(src)
		if section == odf.None || t.Kind(section) != odf.KindSection {
			continue
		}
		out = append(out, include{
			section: section,
			source:  src,
			name:    t.AttrValue(section, odf.NSText, "name"),
			href:    t.AttrValue(src, odf.NSXlink, "href"),
		})
	}
	return out
}

// expandTextBlocks replaces every resolvable include in doc with the body
// of the referenced block. Blocks are expanded recursively before they are
// merged. stack holds the locations currently being expanded.
func (m *mergeRun) expandTextBlocks(doc *Document, stack []string) (int, error) {
	body := doc.Body()
	if body == odf.None {
		return 0, nil
	}

	expanded := 0
	for _, inc := range findIncludes(doc.Content, body) {
		u, ok := m.resolver.resolve(inc.name, inc.href, doc.Location)
		if !ok {
			subject := inc.href
			if subject == "" {
				subject = inc.name
			}
			m.warn(WarnUnresolvedInclude, subject, fmt.Sprintf("text block %q could not be resolved and was left unexpanded", inc.name))
			continue
		}

		loc := canonicalLocation(locationOf(u))
		for _, active := range stack {
			if active == loc {
				return expanded, NewIncludeError(inc.name, loc, "include cycle", nil)
			}
		}
		if len(stack) > m.cfg.MaxIncludeDepth {
			return expanded, NewIncludeError(inc.name, loc,
				fmt.Sprintf("nesting exceeds maximum depth %d", m.cfg.MaxIncludeDepth), nil)
		}

		raw, err := m.resolver.fetch(u)
		if err != nil {
			return expanded, NewDocumentLoadError(loc, "", err)
		}
		block, err := LoadBytes(raw, loc)
		if err != nil {
			return expanded, err
		}
		if block.Body() == odf.None {
			return expanded, NewDocumentLoadError(loc, partContent, fmt.Errorf("missing office:text body"))
		}

		nested, err := m.expandTextBlocks(block, append(stack, loc))
		expanded += nested
		if err != nil {
			return expanded, err
		}

		m.importBlock(doc, inc, block)
		expanded++
		m.logger.WithFields(Fields{"block": inc.name, "location": loc, "depth": len(stack)}).Debug("expanded text block")
	}
	return expanded, nil
}

// importBlock merges the styles of block into doc and replaces the include
// section's content with the block body, rewritten through the include's
// parameter mapping and the style rename map.
func (m *mergeRun) importBlock(doc *Document, inc include, block *Document) {
	prefix := "TB_" + m.engine.newToken() + "_"
	styles := MergeStyles(doc, block, prefix)
	if styles.Renamed > 0 {
		m.logger.WithFields(Fields{"block": inc.name, "renamed": styles.Renamed, "reused": styles.Reused}).Debug("renamed clashing block styles")
	}
	if len(styles.Skipped) > 0 {
		m.warn(WarnStylesSkipped, inc.name, fmt.Sprintf("template has no styles.xml, block styles not imported: %s", strings.Join(styles.Skipped, ", ")))
	}
	mapping := render.ParseBlockParams(inc.name)

	t, src := doc.Content, block.Content
	t.RemoveChildren(inc.section)
	for _, c := range src.Children(block.Body()) {
		if !src.IsElement(c) || isSkippedBlockElement(src, c) {
			continue
		}
		id := t.Import(src, c)
		rewriteFieldNames(t, id, mapping)
		rewriteStyleReferences(t, id, styles.Renames)
		t.AppendChild(inc.section, id)
	}
}

func isSkippedBlockElement(t *odf.Tree, id odf.NodeID) bool {
	for _, s := range skippedBlockElements {
		if t.Is(id, s.space, s.local) {
			return true
		}
	}
	return false
}

// rewriteFieldNames renames the fields in the subtree at root through a
// target=source parameter mapping. Tables nested below root keep their own
// field names.
func rewriteFieldNames(t *odf.Tree, root odf.NodeID, mapping map[string]string) int {
	if len(mapping) == 0 {
		return 0
	}
	rewritten := 0
	t.Walk(root, func(n odf.NodeID) bool {
		if !t.IsElement(n) {
			return false
		}
		switch t.Kind(n) {
		case odf.KindTable:
			return n == root
		case odf.KindUserField:
			name := t.AttrValue(n, odf.NSText, "name")
			if renamed := render.RewriteByPrefixMapping(name, mapping); renamed != name {
				t.SetAttr(n, odf.NSText, "name", renamed)
				rewritten++
			}
		}
		return true
	})
	return rewritten
}

// canonicalLocation makes file locations absolute so that cycle detection
// sees one spelling per file.
func canonicalLocation(loc string) string {
	if loc == "" {
		return ""
	}
	if u, err := url.Parse(loc); err == nil && len(u.Scheme) > 1 {
		return loc
	}
	if abs, err := filepath.Abs(loc); err == nil {
		return filepath.Clean(abs)
	}
	return loc
}
