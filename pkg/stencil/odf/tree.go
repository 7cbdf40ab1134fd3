package odf

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside the arena of a Tree.
type NodeID int

// None is the zero reference: no parent, no match.
const None NodeID = -1

type nodeType uint8

const (
	elementNode nodeType = iota
	textNode
)

// Attr is a namespace-resolved attribute. Prefix is the one used in the
// source document and is what gets written back out.
type Attr struct {
	Prefix string
	Space  string
	Local  string
	Value  string
}

type node struct {
	typ      nodeType
	prefix   string
	space    string
	local    string
	attrs    []Attr
	text     string
	parent   NodeID
	children []NodeID
}

// Tree is an arena of XML nodes. Nodes never move; removal only unlinks a
// node from its parent, so detached subtrees stay readable but are no
// longer reachable from the root.
type Tree struct {
	nodes []node
	root  NodeID
	// prefixes maps namespace URI to the prefix declared on the root.
	prefixes map[string]string
}

func newTree() *Tree {
	return &Tree{root: None, prefixes: make(map[string]string)}
}

func (t *Tree) alloc(n node) NodeID {
	n.parent = None
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Root returns the document element.
func (t *Tree) Root() NodeID {
	return t.root
}

// Len reports the number of nodes ever allocated, detached ones included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// IsElement reports whether id is an element (as opposed to character data).
func (t *Tree) IsElement(id NodeID) bool {
	return t.valid(id) && t.nodes[id].typ == elementNode
}

// Name returns the namespace URI and local name of an element.
func (t *Tree) Name(id NodeID) (space, local string) {
	if !t.valid(id) {
		return "", ""
	}
	n := &t.nodes[id]
	return n.space, n.local
}

// QName returns the prefixed name as written in the document.
func (t *Tree) QName(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	n := &t.nodes[id]
	if n.prefix == "" {
		return n.local
	}
	return n.prefix + ":" + n.local
}

// Is reports whether id is an element with the given namespace and local name.
func (t *Tree) Is(id NodeID, space, local string) bool {
	if !t.IsElement(id) {
		return false
	}
	n := &t.nodes[id]
	return n.space == space && n.local == local
}

// Kind classifies an element into the variant set used by the merge pipeline.
func (t *Tree) Kind(id NodeID) Kind {
	if !t.IsElement(id) {
		return KindOther
	}
	n := &t.nodes[id]
	return classify(n.space, n.local)
}

// Parent returns the parent of id, or None for the root and detached nodes.
func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return None
	}
	return t.nodes[id].parent
}

// Children returns a copy of the child list of id.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	out := make([]NodeID, len(t.nodes[id].children))
	copy(out, t.nodes[id].children)
	return out
}

// FirstChild returns the first child element with the given name.
func (t *Tree) FirstChild(id NodeID, space, local string) NodeID {
	if !t.valid(id) {
		return None
	}
	for _, c := range t.nodes[id].children {
		if t.Is(c, space, local) {
			return c
		}
	}
	return None
}

// Ancestor returns the nearest ancestor of id matching pred.
func (t *Tree) Ancestor(id NodeID, pred func(NodeID) bool) NodeID {
	for p := t.Parent(id); p != None; p = t.Parent(p) {
		if pred(p) {
			return p
		}
	}
	return None
}

// IsAttached reports whether id is reachable from the root.
func (t *Tree) IsAttached(id NodeID) bool {
	if !t.valid(id) {
		return false
	}
	for cur := id; cur != None; cur = t.nodes[cur].parent {
		if cur == t.root {
			return true
		}
	}
	return false
}

// Walk visits id and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !t.valid(id) {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range t.Children(id) {
		t.Walk(c, fn)
	}
}

// FindAll returns every descendant element of id (id excluded) matching pred,
// in document order.
func (t *Tree) FindAll(id NodeID, pred func(NodeID) bool) []NodeID {
	var out []NodeID
	t.Walk(id, func(n NodeID) bool {
		if n != id && t.IsElement(n) && pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Attrs returns a copy of the attributes of id in document order.
func (t *Tree) Attrs(id NodeID) []Attr {
	if !t.valid(id) {
		return nil
	}
	out := make([]Attr, len(t.nodes[id].attrs))
	copy(out, t.nodes[id].attrs)
	return out
}

// Attr looks up an attribute by namespace and local name.
func (t *Tree) Attr(id NodeID, space, local string) (string, bool) {
	if !t.IsElement(id) {
		return "", false
	}
	for _, a := range t.nodes[id].attrs {
		if a.Space == space && a.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue is Attr without the presence flag.
func (t *Tree) AttrValue(id NodeID, space, local string) string {
	v, _ := t.Attr(id, space, local)
	return v
}

// SetAttr sets or adds an attribute. New attributes use the tree's prefix for
// the namespace, declaring it on the root if needed.
func (t *Tree) SetAttr(id NodeID, space, local, value string) {
	if !t.IsElement(id) {
		return
	}
	n := &t.nodes[id]
	for i := range n.attrs {
		if n.attrs[i].Space == space && n.attrs[i].Local == local {
			n.attrs[i].Value = value
			return
		}
	}
	prefix := ""
	if space != "" {
		prefix = t.prefixFor(space, "")
	}
	n = &t.nodes[id]
	n.attrs = append(n.attrs, Attr{Prefix: prefix, Space: space, Local: local, Value: value})
}

// RemoveAttr deletes an attribute if present.
func (t *Tree) RemoveAttr(id NodeID, space, local string) {
	if !t.IsElement(id) {
		return
	}
	n := &t.nodes[id]
	for i := range n.attrs {
		if n.attrs[i].Space == space && n.attrs[i].Local == local {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// Text returns the concatenated character data below id.
func (t *Tree) Text(id NodeID) string {
	var sb strings.Builder
	t.Walk(id, func(n NodeID) bool {
		if t.nodes[n].typ == textNode {
			sb.WriteString(t.nodes[n].text)
		}
		return true
	})
	return sb.String()
}

// IsText reports whether id is a character data node.
func (t *Tree) IsText(id NodeID) bool {
	return t.valid(id) && t.nodes[id].typ == textNode
}

// SetText replaces all children of id with a single text node.
func (t *Tree) SetText(id NodeID, s string) {
	t.RemoveChildren(id)
	if s != "" {
		t.AppendChild(id, t.NewText(s))
	}
}

// NewElement allocates a detached element.
func (t *Tree) NewElement(space, local string) NodeID {
	prefix := ""
	if space != "" {
		prefix = t.prefixFor(space, "")
	}
	return t.alloc(node{typ: elementNode, prefix: prefix, space: space, local: local})
}

// NewText allocates a detached text node.
func (t *Tree) NewText(s string) NodeID {
	return t.alloc(node{typ: textNode, text: s})
}

// AppendChild attaches child as the last child of parent.
func (t *Tree) AppendChild(parent, child NodeID) {
	t.InsertBefore(parent, child, None)
}

// InsertBefore attaches child under parent before ref. A ref of None appends.
func (t *Tree) InsertBefore(parent, child, ref NodeID) {
	if !t.valid(parent) || !t.valid(child) {
		return
	}
	t.Remove(child)
	p := &t.nodes[parent]
	idx := len(p.children)
	if ref != None {
		for i, c := range p.children {
			if c == ref {
				idx = i
				break
			}
		}
	}
	p.children = append(p.children, None)
	copy(p.children[idx+1:], p.children[idx:])
	p.children[idx] = child
	t.nodes[child].parent = parent
}

// InsertAfter attaches node as the next sibling of ref.
func (t *Tree) InsertAfter(ref, child NodeID) {
	parent := t.Parent(ref)
	if parent == None {
		return
	}
	siblings := t.nodes[parent].children
	next := None
	for i, c := range siblings {
		if c == ref && i+1 < len(siblings) {
			next = siblings[i+1]
			break
		}
	}
	if next == child {
		return
	}
	t.InsertBefore(parent, child, next)
}

// Remove unlinks id from its parent. The subtree stays allocated.
func (t *Tree) Remove(id NodeID) {
	if !t.valid(id) {
		return
	}
	parent := t.nodes[id].parent
	if parent == None {
		return
	}
	p := &t.nodes[parent]
	for i, c := range p.children {
		if c == id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	t.nodes[id].parent = None
}

// Replace puts repl where old was and detaches old.
func (t *Tree) Replace(old, repl NodeID) {
	parent := t.Parent(old)
	if parent == None {
		return
	}
	t.InsertBefore(parent, repl, old)
	t.Remove(old)
}

// RemoveChildren detaches every child of id.
func (t *Tree) RemoveChildren(id NodeID) {
	if !t.valid(id) {
		return
	}
	for _, c := range t.nodes[id].children {
		t.nodes[c].parent = None
	}
	t.nodes[id].children = nil
}

// Clone deep-copies the subtree at id and returns the detached copy.
func (t *Tree) Clone(id NodeID) NodeID {
	if !t.valid(id) {
		return None
	}
	src := t.nodes[id]
	cp := node{typ: src.typ, prefix: src.prefix, space: src.space, local: src.local, text: src.text}
	if len(src.attrs) > 0 {
		cp.attrs = make([]Attr, len(src.attrs))
		copy(cp.attrs, src.attrs)
	}
	nid := t.alloc(cp)
	for _, c := range src.children {
		cc := t.Clone(c)
		t.nodes[cc].parent = nid
		t.nodes[nid].children = append(t.nodes[nid].children, cc)
	}
	return nid
}

// Import deep-copies a subtree from another tree into t and returns the
// detached copy. Prefixes are remapped to the bindings of t; namespace
// declarations inside the copied subtree are dropped and re-established on
// the root of t as needed.
func (t *Tree) Import(src *Tree, id NodeID) NodeID {
	if src == nil || !src.valid(id) {
		return None
	}
	s := src.nodes[id]
	cp := node{typ: s.typ, space: s.space, local: s.local, text: s.text}
	if s.typ == elementNode {
		cp.prefix = s.prefix
		if s.space != "" {
			cp.prefix = t.prefixFor(s.space, s.prefix)
		}
		for _, a := range s.attrs {
			if a.Space == NSXmlns {
				continue
			}
			if a.Space != "" && a.Space != NSXML {
				a.Prefix = t.prefixFor(a.Space, a.Prefix)
			}
			cp.attrs = append(cp.attrs, a)
		}
	}
	nid := t.alloc(cp)
	for _, c := range s.children {
		cc := t.Import(src, c)
		t.nodes[cc].parent = nid
		t.nodes[nid].children = append(t.nodes[nid].children, cc)
	}
	return nid
}

// prefixFor returns the prefix bound to space on the root, declaring one when
// the namespace is new to this tree. hint is the preferred prefix.
func (t *Tree) prefixFor(space, hint string) string {
	if p, ok := t.prefixes[space]; ok {
		return p
	}
	if space == NSXML {
		return "xml"
	}
	candidate := knownPrefixes[space]
	if candidate == "" {
		candidate = hint
	}
	if candidate == "" || t.prefixTaken(candidate) {
		base := candidate
		if base == "" {
			base = "ns"
		}
		for i := 1; ; i++ {
			c := fmt.Sprintf("%s%d", base, i)
			if !t.prefixTaken(c) {
				candidate = c
				break
			}
		}
	}
	t.prefixes[space] = candidate
	if t.valid(t.root) {
		r := &t.nodes[t.root]
		r.attrs = append(r.attrs, Attr{Prefix: "xmlns", Space: NSXmlns, Local: candidate, Value: space})
	}
	return candidate
}

func (t *Tree) prefixTaken(prefix string) bool {
	for _, p := range t.prefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

// Prefix returns the prefix declared for a namespace on the root, if any.
func (t *Tree) Prefix(space string) (string, bool) {
	p, ok := t.prefixes[space]
	return p, ok
}
