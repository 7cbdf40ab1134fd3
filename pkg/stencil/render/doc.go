// Package render provides helper functions for dotted field paths.
//
// Template fields, array bindings and text block parameters all address the
// merge data with dotted paths such as "kunde.adresse.ort" or
// "items.0.preis". This package holds the pure string operations on those
// paths so that they can be tested without loading a document.
//
// # Key Functions
//
// MatchArrayPath: Reports whether a field belongs to a repeatable region bound
// to an array. A field that is already index-qualified below the array does
// not match.
//
// IndexLoopReference: Rewrites a field inside a repeated copy to address
// one array element.
//
// ParseBlockParams and RewriteByPrefixMapping: Read the parameter list of a
// text block include, "Adresse(empf=kunde)", and map the block's field names
// onto the host's data.
//
// # Design Principles
//
// The functions do not maintain state and do not import the stencil package,
// which imports this one.
//
// Example of indexing a field:
//
//	render.IndexLoopReference("items.preis", "items", 2)
//	// Result: "items.2.preis"
package render
