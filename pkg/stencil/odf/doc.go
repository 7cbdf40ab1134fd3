// Package odf provides the document tree used by the ODT merge engine.
//
// An OpenDocument text file is a ZIP archive whose content.xml and styles.xml
// parts are namespaced XML. This package parses such a part into an arena
// Tree: every node lives in one slice and is addressed by a NodeID, and the
// parent relation is stored as an index rather than a pointer. Removing,
// replacing or cloning an element is therefore a plain slice mutation.
//
// # Structure Organization
//
//   - names.go: namespace URIs and the closed element Kind variant
//   - tree.go: the arena, navigation, attribute access and mutation
//   - parse.go: namespace-aware parsing that keeps source prefixes
//   - write.go: serialization back to XML
//
// # Usage
//
//	tree, err := odf.Parse(r)
//	if err != nil {
//	    return err
//	}
//	for _, id := range tree.FindAll(tree.Root(), func(n odf.NodeID) bool {
//	    return tree.Kind(n) == odf.KindUserField
//	}) {
//	    span := tree.NewElement(odf.NSText, "span")
//	    tree.SetText(span, "value")
//	    tree.Replace(id, span)
//	}
//	_, err = tree.WriteTo(w)
//
// # XML Namespaces
//
// Elements and attributes are matched by namespace URI, never by prefix, so a
// document that binds text: to an unusual prefix still works. Prefixes are
// preserved for output; nodes imported from another tree are remapped to the
// prefixes of the receiving tree.
package odf
