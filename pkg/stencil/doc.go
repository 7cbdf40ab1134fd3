// Package stencil merges JSON data into OpenDocument text (ODT) templates.
//
// A template is an ordinary .odt file authored in a word processor. Data is
// bound through native document constructs rather than a text syntax:
//
//   - user fields (text:user-field-get, text:variable-get) whose name is a
//     dotted path into the data, e.g. customer.address.street
//   - conditions on sections, paragraphs, spans, conditional text and hidden
//     text, written as boolean expressions over the same paths
//   - sections and table rows whose fields reference an array, which are
//     repeated once per array element
//   - linked sections (text blocks) that pull in other documents, optionally
//     renaming their fields with Name(target=source, ...)
//
// # Quick Start
//
//	doc, err := stencil.Open("letter.odt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	data, err := stencil.ParseDataBytes([]byte(`{"kunde":{"anrede":"FRAU","name":"Muster"}}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := stencil.Merge(doc, data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range result.Warnings {
//	    log.Println(w)
//	}
//	os.WriteFile("letter-out.odt", result.Output, 0644)
//
// # Pipeline
//
// Merge runs four stages over the document, in this order:
//
//  1. Text blocks are resolved and imported. Their styles are merged into
//     the host by content fingerprint; clashing names are renamed.
//  2. Conditions are evaluated and resolved.
//  3. Repeatable regions are expanded, rewriting items.name to items.0.name,
//     items.1.name and so on in each copy.
//  4. Fields are replaced by their values, formatted according to the
//     field's date, number or currency data style.
//
// A failing stage aborts the merge. Unresolvable text blocks and values that
// do not parse as their declared type are reported as Warnings instead.
//
// # Section conditions
//
// A section whose condition holds is removed; a section whose condition does
// not hold is kept and marked hidden. This matches the meaning of
// text:condition on sections in existing templates, where the condition
// describes when the section is hidden.
//
// # Configuration
//
// Text block resolution is configured with Config and passed to New:
//
//	cfg := stencil.DefaultConfig()
//	cfg.TextBlocks.Mode = stencil.TextBlockServer
//	cfg.TextBlocks.ServerURL = "https://blocks.example.com/api/blocks"
//	engine := stencil.New(stencil.WithConfig(cfg))
//
// ConfigFromEnvironment and LoadConfigFile build a Config from STENCIL_*
// environment variables or a YAML file.
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - odf: an arena-backed XML tree with namespace-aware parsing and
//     serialization, plus the ODF element kinds the engine dispatches on
//   - render: pure helpers for dotted field paths and text block names
package stencil
