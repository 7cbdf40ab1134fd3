package stencil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benjaminschreck/odtstencil/pkg/stencil/odf"
)

// Engine merges JSON data into ODT templates.
// Use New() to create an engine. An Engine may be shared by goroutines as
// long as each merge works on its own Document.
type Engine struct {
	config   *Config
	logger   *Logger
	tokens   func() string
	fetchers map[string]BlockFetcher
	resolver *blockResolver
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// WithConfig returns an option that sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		if config != nil {
			e.config = config
		}
	}
}

// WithLogger returns an option that sets the engine logger.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTokenSource returns an option that sets the source of the unique
// tokens used in renamed style names and generated section names.
func WithTokenSource(tokens func() string) Option {
	return func(e *Engine) {
		if tokens != nil {
			e.tokens = tokens
		}
	}
}

// WithBlockFetcher returns an option that loads text blocks whose URL has
// the given scheme with f, replacing the built-in fetcher for it.
func WithBlockFetcher(scheme string, f BlockFetcher) Option {
	return func(e *Engine) {
		e.fetchers[strings.ToLower(scheme)] = f
	}
}

// New creates an engine. Without options it uses DefaultConfig and the
// package logger.
func New(opts ...Option) *Engine {
	e := &Engine{
		config:   DefaultConfig(),
		tokens:   randomToken,
		fetchers: make(map[string]BlockFetcher),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = GetLogger()
	}
	e.resolver = newBlockResolver(e.config, e.fetchers)
	return e
}

// randomToken returns the first 8 hex digits of a random UUID.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (e *Engine) newToken() string {
	return e.tokens()
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// MergeStats counts what a merge changed.
type MergeStats struct {
	IncludesExpanded   int           `json:"includesExpanded"`
	ConditionsResolved int           `json:"conditionsResolved"`
	RegionsExpanded    int           `json:"regionsExpanded"`
	FieldsReplaced     int           `json:"fieldsReplaced"`
	Duration           time.Duration `json:"duration"`
}

// MergeResult is the outcome of a successful merge.
type MergeResult struct {
	// Output is the merged ODT archive. It is nil for MergeTo.
	Output   []byte
	Warnings []Warning
	Stats    MergeStats
}

// HasWarnings reports whether the merge produced any warning.
func (r *MergeResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// mergeRun is the state of one merge invocation.
type mergeRun struct {
	engine   *Engine
	cfg      *Config
	logger   *Logger
	resolver *blockResolver
	data     TemplateData
	token    string

	sectionSeq int
	warnings   []Warning
}

func (m *mergeRun) warn(kind WarningKind, subject, message string) {
	m.warnings = append(m.warnings, Warning{Kind: kind, Subject: subject, Message: message})
	m.logger.WithFields(Fields{"kind": string(kind), "subject": subject}).Warn("%s", message)
}

// Merge merges data into doc and returns the serialized archive. Stages run
// in a fixed order: text blocks, conditions, repetitions, fields. Any stage
// failure aborts the merge and no output is returned. doc is modified in
// place and cannot be merged again.
func (e *Engine) Merge(doc *Document, data TemplateData) (*MergeResult, error) {
	var buf bytes.Buffer
	result, err := e.MergeTo(doc, data, &buf)
	if err != nil {
		return nil, err
	}
	result.Output = buf.Bytes()
	return result, nil
}

// MergeTo is Merge streaming the archive to w. On error, w may have
// received partial output.
func (e *Engine) MergeTo(doc *Document, data TemplateData, w io.Writer) (result *MergeResult, err error) {
	if doc == nil || doc.Content == nil {
		return nil, errors.New("stencil: nil document")
	}
	if doc.merged {
		return nil, ErrDocumentMerged
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	doc.merged = true

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, RecoverError(r)
		}
	}()

	normalized, err := normalizeData(data)
	if err != nil {
		return nil, err
	}
	run := &mergeRun{
		engine:   e,
		cfg:      e.config,
		logger:   e.logger.WithField("template", doc.Location),
		resolver: e.resolver,
		data:     normalized,
		token:    e.newToken(),
	}
	stats, err := run.run(doc, w)
	if err != nil {
		return nil, err
	}
	return &MergeResult{Warnings: run.warnings, Stats: stats}, nil
}

func (m *mergeRun) run(doc *Document, w io.Writer) (MergeStats, error) {
	var stats MergeStats
	start := time.Now()
	ctx := map[string]interface{}{"template": doc.Location}

	stage := time.Now()
	n, err := m.expandTextBlocks(doc, []string{canonicalLocation(doc.Location)})
	if err != nil {
		return stats, WithContext(err, "expand text blocks", ctx)
	}
	stats.IncludesExpanded = n
	m.logger.WithFields(Fields{"includes": n, "elapsed": time.Since(stage)}).Debug("text blocks expanded")

	regions := mergeRegions(doc)

	stage = time.Now()
	ce := NewConditionEvaluator(m.data)
	for _, r := range regions {
		n, err := resolveConditions(r.tree, r.root, ce, m.logger)
		stats.ConditionsResolved += n
		if err != nil {
			return stats, WithContext(err, "resolve conditions", ctx)
		}
	}
	m.logger.WithFields(Fields{"conditions": stats.ConditionsResolved, "elapsed": time.Since(stage)}).Debug("conditions resolved")

	stage = time.Now()
	if body := doc.Body(); body != odf.None {
		n, err := m.expandRepetitions(doc.Content, body, collectArrayPaths(m.data))
		if err != nil {
			return stats, WithContext(err, "expand repetitions", ctx)
		}
		stats.RegionsExpanded = n
	}
	m.logger.WithFields(Fields{"regions": stats.RegionsExpanded, "elapsed": time.Since(stage)}).Debug("repetitions expanded")

	stage = time.Now()
	ff := &fieldFormatter{styles: collectDataStyles(doc), warn: m.warn}
	for _, r := range regions {
		stats.FieldsReplaced += m.replaceFields(r.tree, r.root, ff)
	}
	m.logger.WithFields(Fields{"fields": stats.FieldsReplaced, "elapsed": time.Since(stage)}).Debug("fields replaced")

	if err := doc.Save(w); err != nil {
		return stats, WithContext(err, "serialize", ctx)
	}
	stats.Duration = time.Since(start)
	m.logger.WithFields(Fields{"elapsed": stats.Duration, "warnings": len(m.warnings)}).Debug("merge finished")
	return stats, nil
}

type mergeRegion struct {
	tree *odf.Tree
	root odf.NodeID
}

// mergeRegions lists the subtrees that carry conditions and fields: the
// document body and the master pages with their headers and footers.
func mergeRegions(doc *Document) []mergeRegion {
	var out []mergeRegion
	if body := doc.Body(); body != odf.None {
		out = append(out, mergeRegion{doc.Content, body})
	}
	if doc.Styles != nil {
		if ms := doc.Styles.FirstChild(doc.Styles.Root(), odf.NSOffice, "master-styles"); ms != odf.None {
			out = append(out, mergeRegion{doc.Styles, ms})
		}
	}
	return out
}

// MergeFile opens the template at path and merges data into it.
func (e *Engine) MergeFile(path string, data TemplateData) (*MergeResult, error) {
	doc, err := Open(path)
	if err != nil {
		return nil, err
	}
	return e.Merge(doc, data)
}

// DefaultEngine is the engine used by the package-level functions.
var DefaultEngine = New()

// Merge merges data into doc using the default engine.
func Merge(doc *Document, data TemplateData) (*MergeResult, error) {
	return DefaultEngine.Merge(doc, data)
}

// MergeTo streams the merge of data into doc to w using the default engine.
func MergeTo(doc *Document, data TemplateData, w io.Writer) (*MergeResult, error) {
	return DefaultEngine.MergeTo(doc, data, w)
}

// MergeFile merges data into the template at path using the default engine.
func MergeFile(path string, data TemplateData) (*MergeResult, error) {
	return DefaultEngine.MergeFile(path, data)
}
