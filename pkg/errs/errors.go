// Package errs defines the error kinds reported while loading templates and
// configuration documents.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a load failure.
type Kind string

const (
	// KindTemplateSyntax indicates a malformed template document.
	KindTemplateSyntax Kind = "TemplateSyntaxError"

	// KindTemplateNotFound indicates a referenced template file that exists neither
	// on disk nor among the bundled templates.
	KindTemplateNotFound Kind = "TemplateNotFound"

	// KindDuplicateDefinition indicates a type name registered twice.
	KindDuplicateDefinition Kind = "DuplicateDefinition"

	// KindUndefinedTag indicates a declaration whose type cannot be resolved.
	KindUndefinedTag Kind = "UndefinedTag"

	// KindUnknownDataType indicates a type name that is neither a primitive nor a
	// registered definition.
	KindUnknownDataType Kind = "UnknownDataType"

	// KindUnknownOption indicates a key that is not an option of the enclosing object.
	KindUnknownOption Kind = "UnknownOption"

	// KindMissingRequiredOption indicates a required option absent from an object.
	KindMissingRequiredOption Kind = "MissingRequiredOption"

	// KindTypeMismatch indicates a value rejected by its primitive type.
	KindTypeMismatch Kind = "TypeMismatch"

	// KindValidationFailed indicates a validator expression returned false or failed.
	KindValidationFailed Kind = "ValidationFailed"

	// KindConversionFailed indicates a converter expression or primitive conversion failed.
	KindConversionFailed Kind = "ConversionFailed"

	// KindMalformedList indicates a sequence element that is not a single-entry map.
	KindMalformedList Kind = "MalformedList"

	// KindImmutableConfiguration indicates a mutation attempt on a built tree.
	KindImmutableConfiguration Kind = "ImmutableConfiguration"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrTemplateSyntax         = &Error{Kind: KindTemplateSyntax}
	ErrTemplateNotFound       = &Error{Kind: KindTemplateNotFound}
	ErrDuplicateDefinition    = &Error{Kind: KindDuplicateDefinition}
	ErrUndefinedTag           = &Error{Kind: KindUndefinedTag}
	ErrUnknownDataType        = &Error{Kind: KindUnknownDataType}
	ErrUnknownOption          = &Error{Kind: KindUnknownOption}
	ErrMissingRequiredOption  = &Error{Kind: KindMissingRequiredOption}
	ErrTypeMismatch           = &Error{Kind: KindTypeMismatch}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrConversionFailed       = &Error{Kind: KindConversionFailed}
	ErrMalformedList          = &Error{Kind: KindMalformedList}
	ErrImmutableConfiguration = &Error{Kind: KindImmutableConfiguration}
)

// Error is a classified load error with source location.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// File is the document the error refers to, if known.
	File string `json:"file,omitempty"`

	// Line is the 1-based line the error refers to, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Path lists the enclosing declaration identifiers, outermost first.
	Path []string `json:"path,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if len(e.Path) > 0 {
		b.WriteString(strings.Join(e.Path, "."))
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if loc := e.location(); loc != "" {
		fmt.Fprintf(&b, " (%s)", loc)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) location() string {
	switch {
	case e.Line > 0 && e.File != "":
		return fmt.Sprintf("at line %d, in '%s'", e.Line, e.File)
	case e.Line > 0:
		return fmt.Sprintf("at line %d", e.Line)
	case e.File != "":
		return fmt.Sprintf("in '%s'", e.File)
	}
	return ""
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// At sets the source location of the error.
func (e *Error) At(file string, line int) *Error {
	e.File = file
	e.Line = line
	return e
}

// WithCause sets the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Wrap attaches the identifier of the enclosing declaration to err. Errors of
// this package are annotated in place so that the kind and cause chain are
// preserved; foreign errors are returned wrapped with the identifier.
func Wrap(identifier string, err error) error {
	if err == nil || identifier == "" {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		e.Path = append([]string{identifier}, e.Path...)
		return err
	}
	return fmt.Errorf("%s: %w", identifier, err)
}

// KindOf returns the kind of the innermost *Error in the chain, or "" when err
// does not carry one.
func KindOf(err error) Kind {
	var kind Kind
	for err != nil {
		if e, ok := err.(*Error); ok {
			kind = e.Kind
		}
		err = errors.Unwrap(err)
	}
	return kind
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
