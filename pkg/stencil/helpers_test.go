package stencil

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

const testNamespaces = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"` +
	` xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0"` +
	` xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"` +
	` xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"` +
	` xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0"` +
	` xmlns:number="urn:oasis:names:tc:opendocument:xmlns:datastyle:1.0"` +
	` xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"` +
	` xmlns:xlink="http://www.w3.org/1999/xlink"`

// testContentWithFonts is testContent with a font-face-decls block.
func testContentWithFonts(fonts, autoStyles, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content ` + testNamespaces + ` office:version="1.3">` +
		`<office:font-face-decls>` + fonts + `</office:font-face-decls>` +
		`<office:automatic-styles>` + autoStyles + `</office:automatic-styles>` +
		`<office:body><office:text>` + body + `</office:text></office:body>` +
		`</office:document-content>`
}

// testContent returns a content.xml with the given automatic styles and body.
func testContent(autoStyles, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content ` + testNamespaces + ` office:version="1.3">` +
		`<office:automatic-styles>` + autoStyles + `</office:automatic-styles>` +
		`<office:body><office:text>` + body + `</office:text></office:body>` +
		`</office:document-content>`
}

// testStyles returns a styles.xml with the given named styles and master pages.
func testStyles(styles, masters string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-styles ` + testNamespaces + ` office:version="1.3">` +
		`<office:styles>` + styles + `</office:styles>` +
		`<office:master-styles>` + masters + `</office:master-styles>` +
		`</office:document-styles>`
}

// buildODT writes an ODT archive. styles may be empty to omit styles.xml.
func buildODT(t *testing.T, content, styles string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, body string, method uint16) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	write("mimetype", defaultMimetype, zip.Store)
	write("content.xml", content, zip.Deflate)
	if styles != "" {
		write("styles.xml", styles, zip.Deflate)
	}
	for name, body := range extra {
		write(name, body, zip.Deflate)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func loadTestDoc(t *testing.T, content, styles string) *Document {
	t.Helper()
	doc, err := LoadBytes(buildODT(t, content, styles, nil), "")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	return doc
}

// writeTestODT writes an ODT with the given body below dir and returns its path.
func writeTestODT(t *testing.T, dir, name, autoStyles, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buildODT(t, testContent(autoStyles, body), "", nil), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testData(t *testing.T, js string) TemplateData {
	t.Helper()
	data, err := ParseDataBytes([]byte(js))
	if err != nil {
		t.Fatalf("ParseDataBytes() error = %v", err)
	}
	return data
}

// testEngine returns an engine with a silent logger and predictable tokens.
func testEngine(opts ...Option) *Engine {
	base := []Option{
		WithLogger(NewLogger(io.Discard, LogOff)),
		WithTokenSource(func() string { return "tok" }),
	}
	return New(append(base, opts...)...)
}

// mergeBody merges data into a document with the given body and returns the
// merged body markup, reloaded from the output archive.
func mergeBody(t *testing.T, body, js string) string {
	t.Helper()
	doc := loadTestDoc(t, testContent("", body), "")
	res, err := testEngine().Merge(doc, testData(t, js))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	return outputBody(t, res.Output)
}

func outputBody(t *testing.T, output []byte) string {
	t.Helper()
	out, err := LoadBytes(output, "")
	if err != nil {
		t.Fatalf("failed to reload output: %v", err)
	}
	return innerMarkup(out.Content, out.Body())
}

func innerMarkup(tree *odf.Tree, id odf.NodeID) string {
	var sb strings.Builder
	for _, c := range tree.Children(id) {
		sb.WriteString(tree.Markup(c))
	}
	return sb.String()
}

func field(name string) string {
	return `<text:user-field-get text:name="` + name + `"/>`
}
