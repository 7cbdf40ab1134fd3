package stencil

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDocumentMerged is returned when a Document is merged a second time.
// Merging mutates the document tree in place, so each Document serves one merge.
var ErrDocumentMerged = errors.New("document has already been merged")

// DocumentLoadError represents an archive or XML part that could not be read
type DocumentLoadError struct {
	Location string
	Part     string
	Cause    error
}

func (e *DocumentLoadError) Error() string {
	target := e.Location
	if e.Part != "" {
		if target != "" {
			target += "!"
		}
		target += e.Part
	}
	if target != "" && e.Cause != nil {
		return fmt.Sprintf("document load error for '%s': %v", target, e.Cause)
	} else if target != "" {
		return fmt.Sprintf("document load error for '%s'", target)
	} else if e.Cause != nil {
		return fmt.Sprintf("document load error: %v", e.Cause)
	}
	return "document load error"
}

func (e *DocumentLoadError) Unwrap() error {
	return e.Cause
}

// NewDocumentLoadError creates a new document load error
func NewDocumentLoadError(location, part string, cause error) error {
	return &DocumentLoadError{
		Location: location,
		Part:     part,
		Cause:    cause,
	}
}

// ParseError represents an error during condition tokenizing or parsing
type ParseError struct {
	Message  string
	Token    string
	Position int
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse error at position %d near '%s': %s", e.Position, e.Token, e.Message)
	}
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

// NewParseError creates a new parse error
func NewParseError(message, token string, position int) error {
	return &ParseError{
		Message:  message,
		Token:    token,
		Position: position,
	}
}

// ConditionSyntaxError is returned when a condition attribute cannot be parsed.
// Condition holds the raw attribute text as found in the document.
type ConditionSyntaxError struct {
	Condition string
	Cause     error
}

func (e *ConditionSyntaxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("condition syntax error in '%s': %v", e.Condition, e.Cause)
	}
	return fmt.Sprintf("condition syntax error in '%s'", e.Condition)
}

func (e *ConditionSyntaxError) Unwrap() error {
	return e.Cause
}

// NewConditionSyntaxError creates a new condition syntax error
func NewConditionSyntaxError(condition string, cause error) error {
	return &ConditionSyntaxError{
		Condition: condition,
		Cause:     cause,
	}
}

// ConditionEvaluationError is returned when a condition parses but fails at
// evaluation time, e.g. ordering a string against a number.
type ConditionEvaluationError struct {
	Condition string
	Cause     error
}

func (e *ConditionEvaluationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("condition evaluation error for '%s': %v", e.Condition, e.Cause)
	}
	return fmt.Sprintf("condition evaluation error for '%s'", e.Condition)
}

func (e *ConditionEvaluationError) Unwrap() error {
	return e.Cause
}

// NewConditionEvaluationError creates a new condition evaluation error
func NewConditionEvaluationError(condition string, cause error) error {
	return &ConditionEvaluationError{
		Condition: condition,
		Cause:     cause,
	}
}

// IncludeError represents a text block that resolved but could not be merged:
// an include cycle, too deep nesting, or a fragment without a body.
type IncludeError struct {
	Name     string
	Location string
	Message  string
	Cause    error
}

func (e *IncludeError) Error() string {
	var sb strings.Builder
	sb.WriteString("include error")
	if e.Name != "" {
		fmt.Fprintf(&sb, " for '%s'", e.Name)
	}
	if e.Location != "" {
		fmt.Fprintf(&sb, " (%s)", e.Location)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *IncludeError) Unwrap() error {
	return e.Cause
}

// NewIncludeError creates a new include error
func NewIncludeError(name, location, message string, cause error) error {
	return &IncludeError{
		Name:     name,
		Location: location,
		Message:  message,
		Cause:    cause,
	}
}

// WarningKind classifies non-fatal merge events.
type WarningKind string

const (
	// WarnUnresolvedInclude: an include reference had no resolvable source
	// and was left unexpanded.
	WarnUnresolvedInclude WarningKind = "UnresolvedInclude"
	// WarnFieldFormatFallback: a field value did not parse as its declared
	// type and was rendered as raw text.
	WarnFieldFormatFallback WarningKind = "FieldFormatFallback"
	// WarnStylesSkipped: a text block's styles.xml styles could not be
	// imported because the template has no styles.xml.
	WarnStylesSkipped WarningKind = "StylesSkipped"
)

// Warning is a non-fatal event reported alongside a successful merge.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Subject, w.Message)
}

// MultiError collects multiple errors
type MultiError struct {
	errors []error
}

// NewMultiError creates a new multi-error collector
func NewMultiError() *MultiError {
	return &MultiError{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collection (ignores nil errors)
func (m *MultiError) Add(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

// Len returns the number of errors
func (m *MultiError) Len() int {
	return len(m.errors)
}

// Err returns the multi-error or nil if empty
func (m *MultiError) Err() error {
	if len(m.errors) == 0 {
		return nil
	}
	if len(m.errors) == 1 {
		return m.errors[0]
	}
	return m
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.errors
}

func (m *MultiError) Error() string {
	if len(m.errors) == 0 {
		return "no errors"
	}

	if len(m.errors) == 1 {
		return m.errors[0].Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d errors occurred:", len(m.errors)))
	for i, err := range m.errors {
		parts = append(parts, fmt.Sprintf("  [%d] %v", i+1, err))
	}
	return strings.Join(parts, "\n")
}

// ContextError adds context to an existing error
type ContextError struct {
	Operation string
	Context   map[string]interface{}
	Cause     error
}

func (e *ContextError) Error() string {
	var contextParts []string
	for k, v := range e.Context {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(contextParts)

	if len(contextParts) > 0 {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, strings.Join(contextParts, ", "), e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithContext wraps an error with additional context
func WithContext(err error, operation string, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ContextError{
		Operation: operation,
		Context:   context,
		Cause:     err,
	}
}

// RecoverError converts a panic recovery value to an error
func RecoverError(r interface{}) error {
	switch v := r.(type) {
	case error:
		return fmt.Errorf("panic recovered: %w", v)
	case string:
		return fmt.Errorf("panic recovered: %s", v)
	default:
		return fmt.Errorf("panic recovered: %v", v)
	}
}

// IsDocumentLoadError checks if an error is, or wraps, a document load error
func IsDocumentLoadError(err error) bool {
	var target *DocumentLoadError
	return errors.As(err, &target)
}

// IsParseError checks if an error is, or wraps, a parse error
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsConditionSyntaxError checks if an error is, or wraps, a condition syntax error
func IsConditionSyntaxError(err error) bool {
	var target *ConditionSyntaxError
	return errors.As(err, &target)
}

// IsConditionEvaluationError checks if an error is, or wraps, a condition evaluation error
func IsConditionEvaluationError(err error) bool {
	var target *ConditionEvaluationError
	return errors.As(err, &target)
}

// IsConditionError reports either kind of condition failure
func IsConditionError(err error) bool {
	return IsConditionSyntaxError(err) || IsConditionEvaluationError(err)
}

// IsIncludeError checks if an error is, or wraps, an include error
func IsIncludeError(err error) bool {
	var target *IncludeError
	return errors.As(err, &target)
}
