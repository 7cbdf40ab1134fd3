package odf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Parse reads an XML part into a Tree. Element and attribute prefixes are
// kept as written and resolved against the in-scope declarations.
func Parse(r io.Reader) (*Tree, error) {
	t := newTree()
	dec := xml.NewDecoder(r)
	dec.Strict = true

	type scope struct {
		bindings map[string]string
	}
	scopes := []scope{{bindings: map[string]string{"xml": NSXML}}}
	lookup := func(prefix string) (string, bool) {
		for i := len(scopes) - 1; i >= 0; i-- {
			if uri, ok := scopes[i].bindings[prefix]; ok {
				return uri, true
			}
		}
		return "", false
	}

	stack := []NodeID{}
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		switch tk := tok.(type) {
		case xml.StartElement:
			sc := scope{bindings: map[string]string{}}
			for _, a := range tk.Attr {
				switch {
				case a.Name.Space == "xmlns":
					sc.bindings[a.Name.Local] = a.Value
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					sc.bindings[""] = a.Value
				}
			}
			scopes = append(scopes, sc)

			n := node{typ: elementNode, prefix: tk.Name.Space, local: tk.Name.Local}
			if uri, ok := lookup(tk.Name.Space); ok {
				n.space = uri
			} else if tk.Name.Space != "" {
				return nil, fmt.Errorf("failed to parse xml: undeclared prefix %q on <%s:%s>", tk.Name.Space, tk.Name.Space, tk.Name.Local)
			}
			for _, a := range tk.Attr {
				attr := Attr{Prefix: a.Name.Space, Local: a.Name.Local, Value: a.Value}
				switch {
				case a.Name.Space == "xmlns", a.Name.Space == "" && a.Name.Local == "xmlns":
					attr.Space = NSXmlns
				case a.Name.Space != "":
					uri, ok := lookup(a.Name.Space)
					if !ok {
						return nil, fmt.Errorf("failed to parse xml: undeclared prefix %q on attribute %s", a.Name.Space, a.Name.Local)
					}
					attr.Space = uri
				}
				n.attrs = append(n.attrs, attr)
			}

			id := t.alloc(n)
			if len(stack) == 0 {
				if t.root != None {
					return nil, errors.New("failed to parse xml: multiple root elements")
				}
				t.root = id
				for prefix, uri := range sc.bindings {
					if prefix != "" {
						t.prefixes[uri] = prefix
					}
				}
			} else {
				parent := stack[len(stack)-1]
				t.nodes[id].parent = parent
				t.nodes[parent].children = append(t.nodes[parent].children, id)
			}
			stack = append(stack, id)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("failed to parse xml: unexpected </%s>", tk.Name.Local)
			}
			top := &t.nodes[stack[len(stack)-1]]
			if top.prefix != tk.Name.Space || top.local != tk.Name.Local {
				line, _ := dec.InputPos()
				return nil, fmt.Errorf("failed to parse xml: line %d: </%s> closes <%s>", line, rawName(tk.Name), rawName(xml.Name{Space: top.prefix, Local: top.local}))
			}
			stack = stack[:len(stack)-1]
			scopes = scopes[:len(scopes)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			id := t.alloc(node{typ: textNode, text: string(tk)})
			t.nodes[id].parent = parent
			t.nodes[parent].children = append(t.nodes[parent].children, id)
		}
	}

	if t.root == None {
		return nil, errors.New("failed to parse xml: no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("failed to parse xml: unclosed elements")
	}
	return t, nil
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// ParseBytes is a convenience wrapper around Parse.
func ParseBytes(data []byte) (*Tree, error) {
	return Parse(bytes.NewReader(data))
}
