package odf

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)
)

// WriteTo serializes the tree reachable from the root, preceded by an XML
// declaration.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.WriteString(xmlHeader)
	if t.valid(t.root) {
		t.writeNode(cw, t.root)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Bytes returns the serialized tree.
func (t *Tree) Bytes() []byte {
	var buf bytes.Buffer
	t.WriteTo(&buf)
	return buf.Bytes()
}

// Markup serializes the subtree at id without a declaration. Mostly useful
// for tests and debug logging.
func (t *Tree) Markup(id NodeID) string {
	var buf bytes.Buffer
	cw := &countingWriter{w: bufio.NewWriter(&buf)}
	if t.valid(id) {
		t.writeNode(cw, id)
	}
	cw.w.Flush()
	return buf.String()
}

func (t *Tree) writeNode(w *countingWriter, id NodeID) {
	n := &t.nodes[id]
	if n.typ == textNode {
		w.WriteString(textEscaper.Replace(n.text))
		return
	}
	name := n.local
	if n.prefix != "" {
		name = n.prefix + ":" + n.local
	}
	w.WriteString("<")
	w.WriteString(name)
	for _, a := range n.attrs {
		w.WriteString(" ")
		if a.Prefix != "" {
			w.WriteString(a.Prefix)
			w.WriteString(":")
		}
		w.WriteString(a.Local)
		w.WriteString(`="`)
		w.WriteString(attrEscaper.Replace(a.Value))
		w.WriteString(`"`)
	}
	if len(n.children) == 0 {
		w.WriteString("/>")
		return
	}
	w.WriteString(">")
	for _, c := range n.children {
		t.writeNode(w, c)
	}
	w.WriteString("</")
	w.WriteString(name)
	w.WriteString(">")
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) WriteString(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}
