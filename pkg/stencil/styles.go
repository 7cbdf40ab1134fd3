package stencil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

type styleBlock struct {
	inStyles bool
	local    string
}

// styleBlocks are merged in this order: content.xml blocks first, then styles.xml.
var styleBlocks = []styleBlock{
	{inStyles: false, local: "font-face-decls"},
	{inStyles: false, local: "automatic-styles"},
	{inStyles: true, local: "font-face-decls"},
	{inStyles: true, local: "automatic-styles"},
	{inStyles: true, local: "styles"},
}

// Child order of office:document-content and office:document-styles, used
// when a block has to be created in the host.
var (
	contentBlockOrder = []string{"scripts", "font-face-decls", "automatic-styles", "body"}
	stylesBlockOrder  = []string{"font-face-decls", "styles", "automatic-styles", "master-styles"}
)

type attrRef struct {
	space string
	local string
}

// styleNameAttrs are tried in order to find the name of a style-like element.
var styleNameAttrs = []attrRef{
	{odf.NSStyle, "name"},
	{odf.NSText, "name"},
	{odf.NSDraw, "name"},
	{odf.NSSvg, "name"},
}

// styleReferenceAttrs are the attributes that refer to a style or font by name.
var styleReferenceAttrs = []attrRef{
	{odf.NSText, "style-name"},
	{odf.NSText, "list-style-name"},
	{odf.NSDraw, "style-name"},
	{odf.NSDraw, "text-style-name"},
	{odf.NSStyle, "parent-style-name"},
	{odf.NSStyle, "next-style-name"},
	{odf.NSStyle, "list-style-name"},
	{odf.NSStyle, "page-layout-name"},
	{odf.NSStyle, "data-style-name"},
	{odf.NSStyle, "font-name"},
	{odf.NSStyle, "font-name-asian"},
	{odf.NSStyle, "font-name-complex"},
	{odf.NSTable, "style-name"},
	{odf.NSTable, "default-cell-style-name"},
}

// StyleMergeResult describes one style merge.
type StyleMergeResult struct {
	// Renames maps a source style name to the name it was imported under.
	Renames  map[string]string
	Imported int
	Reused   int
	Renamed  int
	// Skipped names the source styles.xml styles that were not imported
	// because the host has no styles.xml.
	Skipped []string
}

// MergeStyles copies the font declarations, automatic styles and named
// styles of src into host. A style whose name is new to the host is imported
// as-is; one whose name exists with an identical fingerprint is reused; one
// whose name exists with different content is imported as prefix+name. Every
// imported style then has its references rewritten through the rename map.
// The caller applies Renames to the imported body content.
func MergeStyles(host, src *Document, prefix string) *StyleMergeResult {
	res := &StyleMergeResult{Renames: make(map[string]string)}
	var imported []importedStyle

	for _, block := range styleBlocks {
		hostTree, srcTree := host.Content, src.Content
		order := contentBlockOrder
		if block.inStyles {
			hostTree, srcTree = host.Styles, src.Styles
			order = stylesBlockOrder
		}
		if srcTree == nil {
			continue
		}
		srcBlock := srcTree.FirstChild(srcTree.Root(), odf.NSOffice, block.local)
		if srcBlock == odf.None {
			continue
		}
		if hostTree == nil {
			for _, c := range srcTree.Children(srcBlock) {
				if !srcTree.IsElement(c) {
					continue
				}
				if name, _, ok := styleName(srcTree, c); ok {
					res.Skipped = append(res.Skipped, name)
				}
			}
			continue
		}
		hostBlock := ensureBlock(hostTree, block.local, order)
		imported = append(imported, mergeStyleBlock(hostTree, hostBlock, srcTree, srcBlock, prefix, res)...)
	}

	for _, is := range imported {
		rewriteStyleReferences(is.tree, is.id, res.Renames)
	}
	return res
}

type importedStyle struct {
	tree *odf.Tree
	id   odf.NodeID
}

func mergeStyleBlock(hostTree *odf.Tree, hostBlock odf.NodeID, srcTree *odf.Tree, srcBlock odf.NodeID, prefix string, res *StyleMergeResult) []importedStyle {
	existing := make(map[string]string)
	for _, c := range hostTree.Children(hostBlock) {
		if !hostTree.IsElement(c) {
			continue
		}
		if name, _, ok := styleName(hostTree, c); ok {
			existing[name] = styleFingerprint(hostTree, c)
		}
	}

	var out []importedStyle
	for _, c := range srcTree.Children(srcBlock) {
		if !srcTree.IsElement(c) {
			continue
		}
		name, nameAttr, ok := styleName(srcTree, c)
		if !ok {
			id := hostTree.Import(srcTree, c)
			hostTree.AppendChild(hostBlock, id)
			out = append(out, importedStyle{hostTree, id})
			res.Imported++
			continue
		}

		fp := styleFingerprint(srcTree, c)
		hostFp, clash := existing[name]
		switch {
		case !clash:
			id := hostTree.Import(srcTree, c)
			hostTree.AppendChild(hostBlock, id)
			existing[name] = fp
			out = append(out, importedStyle{hostTree, id})
			res.Imported++

		case hostFp == fp:
			res.Reused++

		default:
			newName, known := res.Renames[name]
			if !known {
				newName = prefix + name
				res.Renames[name] = newName
			}
			if renamedFp, ok := existing[newName]; ok && renamedFp == fp {
				res.Reused++
				continue
			}
			id := hostTree.Import(srcTree, c)
			hostTree.SetAttr(id, nameAttr.space, nameAttr.local, newName)
			rewriteStyleReferences(hostTree, id, res.Renames)
			hostTree.AppendChild(hostBlock, id)
			existing[newName] = fp
			out = append(out, importedStyle{hostTree, id})
			res.Renamed++
		}
	}
	return out
}

// ensureBlock returns the named office:* block under the root of t, creating
// it at its schema position when missing.
func ensureBlock(t *odf.Tree, local string, order []string) odf.NodeID {
	if id := t.FirstChild(t.Root(), odf.NSOffice, local); id != odf.None {
		return id
	}
	block := t.NewElement(odf.NSOffice, local)

	rank := func(name string) int {
		for i, o := range order {
			if o == name {
				return i
			}
		}
		return -1
	}
	want := rank(local)
	for _, c := range t.Children(t.Root()) {
		space, name := t.Name(c)
		if space == odf.NSOffice && rank(name) > want {
			t.InsertBefore(t.Root(), block, c)
			return block
		}
	}
	t.AppendChild(t.Root(), block)
	return block
}

// styleName returns the name of a style-like element and the attribute it
// was read from.
func styleName(t *odf.Tree, id odf.NodeID) (string, attrRef, bool) {
	for _, a := range styleNameAttrs {
		if v, ok := t.Attr(id, a.space, a.local); ok && v != "" {
			return v, a, true
		}
	}
	return "", attrRef{}, false
}

// styleFingerprint hashes the structure of a style element: names,
// attributes (sorted, the element's own name excluded) and trimmed text of
// the whole subtree.
func styleFingerprint(t *odf.Tree, id odf.NodeID) string {
	h := sha256.New()
	_, nameAttr, _ := styleName(t, id)
	writeFingerprint(h, t, id, nameAttr)
	return hex.EncodeToString(h.Sum(nil))
}

func writeFingerprint(h hash.Hash, t *odf.Tree, id odf.NodeID, skip attrRef) {
	if t.IsText(id) {
		if s := strings.TrimSpace(t.Text(id)); s != "" {
			fmt.Fprintf(h, "#%s", s)
		}
		return
	}
	space, local := t.Name(id)
	fmt.Fprintf(h, "<%s|%s>", space, local)

	attrs := t.Attrs(id)
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Space != attrs[j].Space {
			return attrs[i].Space < attrs[j].Space
		}
		return attrs[i].Local < attrs[j].Local
	})
	for _, a := range attrs {
		if a.Space == odf.NSXmlns || (a.Space == skip.space && a.Local == skip.local) {
			continue
		}
		fmt.Fprintf(h, "@%s|%s=%s", a.Space, a.Local, a.Value)
	}
	for _, c := range t.Children(id) {
		writeFingerprint(h, t, c, attrRef{})
	}
	fmt.Fprint(h, "</>")
}

// rewriteStyleReferences applies renames to every style-referencing
// attribute in the subtree at id, id included.
func rewriteStyleReferences(t *odf.Tree, id odf.NodeID, renames map[string]string) {
	if len(renames) == 0 {
		return
	}
	t.Walk(id, func(n odf.NodeID) bool {
		if !t.IsElement(n) {
			return false
		}
		for _, ref := range styleReferenceAttrs {
			if v, ok := t.Attr(n, ref.space, ref.local); ok {
				if renamed, ok := renames[v]; ok {
					t.SetAttr(n, ref.space, ref.local, renamed)
				}
			}
		}
		return true
	})
}
