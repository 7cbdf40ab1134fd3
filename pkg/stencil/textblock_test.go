package stencil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func includeSection(name, href string) string {
	return `<text:section text:name="` + name + `"><text:section-source xlink:href="` + href + `" xlink:type="simple"/><text:p>stale</text:p></text:section>`
}

func mergeFile(t *testing.T, e *Engine, path, js string) (*MergeResult, error) {
	t.Helper()
	doc, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return e.Merge(doc, testData(t, js))
}

func TestExpandTextBlocksFileMode(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string) string
		data  string
		check func(t *testing.T, body string, res *MergeResult)
	}{
		{
			name: "relative href with parameters",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "blocks/adresse.odt", "",
					`<text:sequence-decls><text:sequence-decl text:name="Table"/></text:sequence-decls>`+
						`<text:p>`+field("empf.name")+`, `+field("empf.ort")+`</text:p>`)
				return writeTestODT(t, dir, "template.odt", "",
					includeSection("Adresse(empf=kunde, empf.ort=stadt)", "blocks/adresse.odt"))
			},
			data: `{"kunde":{"name":"Muster"},"stadt":"Bonn"}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				want := `<text:section text:name="Adresse(empf=kunde, empf.ort=stadt)"><text:p><text:span>Muster</text:span>, <text:span>Bonn</text:span></text:p></text:section>`
				if body != want {
					t.Errorf("body =\n%s\nwant\n%s", body, want)
				}
				if res.Stats.IncludesExpanded != 1 {
					t.Errorf("IncludesExpanded = %d, want 1", res.Stats.IncludesExpanded)
				}
			},
		},
		{
			name: "found by name in an ancestor directory",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "a/gruss.odt", "", `<text:p>Mit freundlichen Grüßen</text:p>`)
				return writeTestODT(t, dir, "a/b/template.odt", "", includeSection("Gruss", "bausteine/gruss.odt"))
			},
			data: `{}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				if !strings.Contains(body, "<text:p>Mit freundlichen Grüßen</text:p>") {
					t.Errorf("block not imported: %s", body)
				}
			},
		},
		{
			name: "block styles.xml without host styles.xml",
			setup: func(t *testing.T, dir string) string {
				block := buildODT(t, testContent("", `<text:p text:style-name="Fett">fett</text:p>`),
					testStyles(`<style:style style:name="Fett" style:family="paragraph"/>`, ""), nil)
				if err := os.WriteFile(filepath.Join(dir, "fett.odt"), block, 0o644); err != nil {
					t.Fatal(err)
				}
				return writeTestODT(t, dir, "template.odt", "", includeSection("Fettdruck", "fett.odt"))
			},
			data: `{}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				if !strings.Contains(body, `<text:p text:style-name="Fett">fett</text:p>`) {
					t.Errorf("block not imported: %s", body)
				}
				if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnStylesSkipped || res.Warnings[0].Subject != "Fettdruck" {
					t.Fatalf("Warnings = %v", res.Warnings)
				}
				if !strings.Contains(res.Warnings[0].Message, "Fett") {
					t.Errorf("warning message = %q", res.Warnings[0].Message)
				}
			},
		},
		{
			name: "escaped href",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "my block.odt", "", `<text:p>spaced</text:p>`)
				return writeTestODT(t, dir, "template.odt", "", includeSection("B", "my%20block.odt"))
			},
			data: `{}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				if !strings.Contains(body, "spaced") {
					t.Errorf("block not imported: %s", body)
				}
			},
		},
		{
			name: "unresolved include is skipped with a warning",
			setup: func(t *testing.T, dir string) string {
				return writeTestODT(t, dir, "template.odt", "", includeSection("Missing", "nowhere.odt"))
			},
			data: `{}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				if !strings.Contains(body, "text:section-source") || !strings.Contains(body, "stale") {
					t.Errorf("unresolved include should be left as is: %s", body)
				}
				if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarnUnresolvedInclude || res.Warnings[0].Subject != "nowhere.odt" {
					t.Errorf("Warnings = %v", res.Warnings)
				}
			},
		},
		{
			name: "nested blocks resolve against their own location",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "blocks/inner.odt", "", `<text:p>`+field("wert")+`</text:p>`)
				writeTestODT(t, dir, "blocks/outer.odt", "", `<text:p>outer</text:p>`+includeSection("Inner(wert=x)", "inner.odt"))
				return writeTestODT(t, dir, "template.odt", "", includeSection("Outer", "blocks/outer.odt"))
			},
			data: `{"x":"42"}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				want := `<text:section text:name="Outer"><text:p>outer</text:p><text:section text:name="Inner(wert=x)"><text:p><text:span>42</text:span></text:p></text:section></text:section>`
				if body != want {
					t.Errorf("body =\n%s\nwant\n%s", body, want)
				}
				if res.Stats.IncludesExpanded != 2 {
					t.Errorf("IncludesExpanded = %d, want 2", res.Stats.IncludesExpanded)
				}
			},
		},
		{
			name: "clashing block styles are renamed",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "block.odt", redT1, `<text:p><text:span text:style-name="T1">rot</text:span></text:p>`)
				return writeTestODT(t, dir, "template.odt", blackT1, `<text:p><text:span text:style-name="T1">schwarz</text:span></text:p>`+includeSection("B", "block.odt"))
			},
			data: `{}`,
			check: func(t *testing.T, body string, res *MergeResult) {
				if !strings.Contains(body, `<text:span text:style-name="TB_tok_T1">rot</text:span>`) {
					t.Errorf("block span not renamed: %s", body)
				}
				if !strings.Contains(body, `<text:span text:style-name="T1">schwarz</text:span>`) {
					t.Errorf("host span changed: %s", body)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := tt.setup(t, dir)
			res, err := mergeFile(t, testEngine(), path, tt.data)
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			tt.check(t, outputBody(t, res.Output), res)
		})
	}
}

func TestExpandTextBlocksErrors(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		setup    func(t *testing.T, dir string) string
		wantKind func(error) bool
	}{
		{
			name: "self include",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "loop.odt", "", includeSection("Loop", "loop.odt"))
				return writeTestODT(t, dir, "template.odt", "", includeSection("Loop", "loop.odt"))
			},
			wantKind: IsIncludeError,
		},
		{
			name: "indirect cycle",
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "a.odt", "", includeSection("B", "b.odt"))
				writeTestODT(t, dir, "b.odt", "", includeSection("A", "a.odt"))
				return writeTestODT(t, dir, "template.odt", "", includeSection("A", "a.odt"))
			},
			wantKind: IsIncludeError,
		},
		{
			name:  "depth limit",
			depth: 1,
			setup: func(t *testing.T, dir string) string {
				writeTestODT(t, dir, "b.odt", "", `<text:p>b</text:p>`)
				writeTestODT(t, dir, "a.odt", "", includeSection("B", "b.odt"))
				return writeTestODT(t, dir, "template.odt", "", includeSection("A", "a.odt"))
			},
			wantKind: IsIncludeError,
		},
		{
			name: "block is not an archive",
			setup: func(t *testing.T, dir string) string {
				if err := os.WriteFile(filepath.Join(dir, "broken.odt"), []byte("not a zip"), 0o644); err != nil {
					t.Fatal(err)
				}
				return writeTestODT(t, dir, "template.odt", "", includeSection("X", "broken.odt"))
			},
			wantKind: IsDocumentLoadError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.depth > 0 {
				cfg.MaxIncludeDepth = tt.depth
			}
			dir := t.TempDir()
			_, err := mergeFile(t, testEngine(WithConfig(cfg)), tt.setup(t, dir), `{}`)
			if err == nil {
				t.Fatal("Merge() expected error")
			}
			if !tt.wantKind(err) {
				t.Errorf("unexpected error kind: %v", err)
			}
			if !strings.Contains(err.Error(), "expand text blocks") {
				t.Errorf("error %q does not name the stage", err)
			}
		})
	}
}

func TestExpandTextBlocksServerMode(t *testing.T) {
	block := buildODT(t, testContent("", `<text:p>`+field("p.name")+`</text:p>`), "", nil)
	var (
		mu        sync.Mutex
		requested []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/blocks/Gruss Block" {
			http.NotFound(w, r)
			return
		}
		w.Write(block)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.TextBlocks.Mode = TextBlockServer
	cfg.TextBlocks.ServerURL = srv.URL + "/blocks/"
	cfg.TextBlocks.HTTPTimeout = 5 * time.Second
	e := testEngine(WithConfig(cfg))

	doc := loadTestDoc(t, testContent("", includeSection("Gruss Block(p=person)", "ignored.odt")), "")
	res, err := e.Merge(doc, testData(t, `{"person":{"name":"Ada"}}`))
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := outputBody(t, res.Output); !strings.Contains(got, "<text:span>Ada</text:span>") {
		t.Errorf("body = %s", got)
	}
	mu.Lock()
	if len(requested) != 1 {
		t.Errorf("requests = %v", requested)
	}
	mu.Unlock()

	doc = loadTestDoc(t, testContent("", includeSection("Unknown", "")), "")
	if _, err := e.Merge(doc, TemplateData{}); !IsDocumentLoadError(err) {
		t.Errorf("missing server block: error = %v, want DocumentLoadError", err)
	}
}

func TestWithBlockFetcher(t *testing.T) {
	block := buildODT(t, testContent("", `<text:p>from memory</text:p>`), "", nil)
	var fetched []string
	e := testEngine(WithBlockFetcher("mem", BlockFetcherFunc(func(u *url.URL) ([]byte, error) {
		fetched = append(fetched, u.String())
		return block, nil
	})))

	doc := loadTestDoc(t, testContent("", includeSection("M", "mem://store/block.odt")), "")
	res, err := e.Merge(doc, TemplateData{})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := outputBody(t, res.Output); !strings.Contains(got, "from memory") {
		t.Errorf("body = %s", got)
	}
	if len(fetched) != 1 || fetched[0] != "mem://store/block.odt" {
		t.Errorf("fetched = %v", fetched)
	}
}

func TestRewriteFieldNames(t *testing.T) {
	doc := loadTestDoc(t, testContent("",
		`<text:section><text:p>`+field("a.x")+`</text:p>`+
			`<table:table><table:table-row><table:table-cell><text:p>`+field("a.y")+`</text:p></table:table-cell></table:table-row></table:table></text:section>`+
			`<table:table><table:table-row><table:table-cell><text:p>`+field("a.z")+`</text:p></table:table-cell></table:table-row></table:table>`), "")

	mapping := map[string]string{"a": "b"}
	for _, c := range doc.Content.Children(doc.Body()) {
		rewriteFieldNames(doc.Content, c, mapping)
	}

	body := innerMarkup(doc.Content, doc.Body())
	for _, want := range []string{`text:name="b.x"`, `text:name="a.y"`, `text:name="b.z"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body lacks %s:\n%s", want, body)
		}
	}
}

func TestResolveFileHref(t *testing.T) {
	dir := t.TempDir()
	writeTestODT(t, dir, "root.odt", "", "")
	base := filepath.Join(dir, "x", "y", "template.odt")

	tests := []struct {
		name   string
		href   string
		base   string
		want   string
		wantOK bool
	}{
		{name: "blank", href: "  ", base: base},
		{name: "absolute url", href: "https://example.com/b.odt", base: base, want: "https://example.com/b.odt", wantOK: true},
		{name: "ancestor search", href: "../deep/root.odt", base: base, want: "root.odt", wantOK: true},
		{name: "relative to remote base", href: "b.odt", base: "https://example.com/t/template.odt", want: "https://example.com/t/b.odt", wantOK: true},
		{name: "not found", href: "other.odt", base: base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := resolveFileHref(tt.href, tt.base)
			if ok != tt.wantOK {
				t.Fatalf("resolveFileHref() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !strings.HasSuffix(u.String(), tt.want) {
				t.Errorf("resolveFileHref() = %s, want suffix %s", u, tt.want)
			}
		})
	}
}
