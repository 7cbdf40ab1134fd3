package stencil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

const (
	partMimetype = "mimetype"
	partContent  = "content.xml"
	partStyles   = "styles.xml"

	defaultMimetype = "application/vnd.oasis.opendocument.text"
)

// OdtReader handles reading ODT archives
type OdtReader struct {
	reader *zip.Reader
	Parts  map[string]*zip.File
}

// NewOdtReader creates a new ODT reader
func NewOdtReader(r io.ReaderAt, size int64) (*OdtReader, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip file: %w", err)
	}

	or := &OdtReader{
		reader: zipReader,
		Parts:  make(map[string]*zip.File),
	}

	for _, file := range zipReader.File {
		or.Parts[file.Name] = file
	}

	if _, ok := or.Parts[partContent]; !ok {
		return nil, fmt.Errorf("not a valid ODT file: missing %s", partContent)
	}

	return or, nil
}

// GetPart retrieves the content of a specific part
func (or *OdtReader) GetPart(partName string) ([]byte, error) {
	file, ok := or.Parts[partName]
	if !ok {
		return nil, fmt.Errorf("part %s not found", partName)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", partName, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", partName, err)
	}

	return content, nil
}

// HasPart reports whether the archive contains partName
func (or *OdtReader) HasPart(partName string) bool {
	_, ok := or.Parts[partName]
	return ok
}

// ListParts returns the part names in archive order
func (or *OdtReader) ListParts() []string {
	parts := make([]string, 0, len(or.reader.File))
	for _, f := range or.reader.File {
		parts = append(parts, f.Name)
	}
	return parts
}

// OdtReaderFromFile creates an OdtReader from a file path
func OdtReaderFromFile(path string) (*OdtReader, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return NewOdtReader(bytes.NewReader(content), int64(len(content)))
}

// Document is a loaded ODT: the parsed content and styles trees plus every
// other archive part, kept for pass-through on save.
type Document struct {
	// Location is where the template came from, a path or URL. File-mode
	// includes resolve relative to it; it may be empty.
	Location string

	Content *odf.Tree
	// Styles is nil when the archive has no styles.xml.
	Styles *odf.Tree

	reader   *OdtReader
	mimetype []byte
	merged   bool
}

// Open loads an ODT document from a file path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentLoadError(path, "", err)
	}
	return Load(bytes.NewReader(data), int64(len(data)), path)
}

// LoadBytes loads an ODT document held in memory.
func LoadBytes(data []byte, location string) (*Document, error) {
	return Load(bytes.NewReader(data), int64(len(data)), location)
}

// Load parses an ODT archive. location is recorded on the Document and used
// as the base for relative text block references.
func Load(r io.ReaderAt, size int64, location string) (*Document, error) {
	or, err := NewOdtReader(r, size)
	if err != nil {
		return nil, NewDocumentLoadError(location, "", err)
	}

	doc := &Document{Location: location, reader: or}

	content, err := parsePart(or, partContent)
	if err != nil {
		return nil, NewDocumentLoadError(location, partContent, err)
	}
	doc.Content = content

	if or.HasPart(partStyles) {
		styles, err := parsePart(or, partStyles)
		if err != nil {
			return nil, NewDocumentLoadError(location, partStyles, err)
		}
		doc.Styles = styles
	}

	if or.HasPart(partMimetype) {
		mt, err := or.GetPart(partMimetype)
		if err != nil {
			return nil, NewDocumentLoadError(location, partMimetype, err)
		}
		doc.mimetype = bytes.TrimSpace(mt)
	}

	return doc, nil
}

func parsePart(or *OdtReader, name string) (*odf.Tree, error) {
	data, err := or.GetPart(name)
	if err != nil {
		return nil, err
	}
	return odf.ParseBytes(data)
}

// Mimetype returns the declared media type of the document.
func (d *Document) Mimetype() string {
	if len(d.mimetype) == 0 {
		return defaultMimetype
	}
	return string(d.mimetype)
}

// Body returns the office:text element of the content tree, or odf.None.
func (d *Document) Body() odf.NodeID {
	return documentBody(d.Content)
}

func documentBody(t *odf.Tree) odf.NodeID {
	body := t.FirstChild(t.Root(), odf.NSOffice, "body")
	if body == odf.None {
		return odf.None
	}
	return t.FirstChild(body, odf.NSOffice, "text")
}

// Save writes the document as an ODT archive. The mimetype entry comes first
// and is stored uncompressed; the XML trees are re-serialized and every other
// part is copied unchanged.
func (d *Document) Save(w io.Writer) error {
	zw := zip.NewWriter(w)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: partMimetype, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", partMimetype, err)
	}
	if _, err := io.WriteString(mw, d.Mimetype()); err != nil {
		return fmt.Errorf("failed to write %s: %w", partMimetype, err)
	}

	if err := writeTree(zw, partContent, d.Content); err != nil {
		return err
	}
	if d.Styles != nil {
		if err := writeTree(zw, partStyles, d.Styles); err != nil {
			return err
		}
	}

	if d.reader != nil {
		for _, f := range d.reader.reader.File {
			switch f.Name {
			case partMimetype, partContent, partStyles:
				continue
			}
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("failed to copy part %s: %w", f.Name, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func writeTree(zw *zip.Writer, name string, t *odf.Tree) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := t.WriteTo(fw); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Parts lists every archive part name, sorted.
func (d *Document) Parts() []string {
	if d.reader == nil {
		return nil
	}
	parts := d.reader.ListParts()
	sort.Strings(parts)
	return parts
}
