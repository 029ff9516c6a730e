package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

var tracer = otel.Tracer("github.com/hyperconf/hyperconf/pkg/config")

// Options are the user-facing load settings.
type Options struct {
	// Strict requires every declaration to resolve to a known type.
	Strict bool `json:"strict"`

	// MaxFileSize limits the size of configuration files in bytes; 0 means
	// no limit.
	MaxFileSize int64 `json:"max_file_size" validate:"gte=0"`
}

// DefaultOptions returns lenient loading without a size limit.
func DefaultOptions() Options {
	return Options{}
}

// Loader builds configuration trees against a template registry. A Loader
// inherits the registry's concurrency rules: one load at a time.
type Loader struct {
	registry  *templates.Registry
	opts      Options
	validator *validator.Validate

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStrict sets strict mode.
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) {
		l.opts.Strict = strict
	}
}

// WithOptions replaces all load settings.
func WithOptions(opts Options) LoaderOption {
	return func(l *Loader) {
		l.opts = opts
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger.With().Str("component", "config-loader").Logger()
	}
}

// WithMetrics records loads in m.
func WithMetrics(m *telemetry.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithEvents publishes load outcomes to ep.
func WithEvents(ep *telemetry.EventPublisher) LoaderOption {
	return func(l *Loader) {
		l.events = ep
	}
}

// NewLoader creates a loader bound to reg.
func NewLoader(reg *templates.Registry, opts ...LoaderOption) (*Loader, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	l := &Loader{
		registry:  reg,
		opts:      DefaultOptions(),
		validator: validator.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.validator.Struct(l.opts); err != nil {
		return nil, fmt.Errorf("invalid loader options: %w", err)
	}
	return l, nil
}

// Registry returns the template registry.
func (l *Loader) Registry() *templates.Registry {
	return l.registry
}

// Options returns the load settings.
func (l *Loader) Options() Options {
	return l.opts
}

// LoadFile reads and builds the configuration file at path. Templates named
// by relative use paths are searched next to the file first.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Node, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := l.read(abs)
	if err != nil {
		l.fail(abs, err)
		return nil, err
	}

	m, err := document.ParseMapping(data, abs)
	if err != nil {
		err = errs.New(errs.KindTemplateSyntax, "invalid configuration document").
			At(abs, 0).WithCause(err)
		l.fail(abs, err)
		return nil, err
	}
	return l.LoadDocument(ctx, m, abs)
}

func (l *Loader) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	if l.opts.MaxFileSize > 0 && info.Size() > l.opts.MaxFileSize {
		return nil, fmt.Errorf("configuration %s is %d bytes, limit is %d",
			path, info.Size(), l.opts.MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return data, nil
}

// LoadString builds a configuration from text. Relative use paths resolve
// against the working directory.
func (l *Loader) LoadString(ctx context.Context, text string) (*Node, error) {
	m, err := document.ParseMapping([]byte(text), "")
	if err != nil {
		err = errs.New(errs.KindTemplateSyntax, "invalid configuration document").WithCause(err)
		l.fail("", err)
		return nil, err
	}
	return l.LoadDocument(ctx, m, "")
}

// LoadDocument builds a configuration from an already parsed document.
// Any error aborts the load; no partial tree is returned.
func (l *Loader) LoadDocument(ctx context.Context, m *document.Mapping, file string) (*Node, error) {
	ctx, span := tracer.Start(ctx, "config.load", trace.WithAttributes(
		telemetry.AttrFile.String(file),
		telemetry.AttrStrict.Bool(l.opts.Strict),
	))
	defer span.End()

	start := time.Now()
	logger := l.logger.With().Str("file", file).Bool("strict", l.opts.Strict).Logger()
	logger.Debug().Msg("loading configuration")

	b := &builder{reg: l.registry, strict: l.opts.Strict, file: file}
	root, err := b.root(ctx, m)
	duration := time.Since(start)
	l.metrics.RecordLoad(l.opts.Strict, err, duration)

	if err != nil {
		telemetry.RecordError(span, err)
		span.SetAttributes(telemetry.AttrErrorKind.String(string(errs.KindOf(err))))
		l.fail(file, err)
		return nil, err
	}

	telemetry.RecordSuccess(span)
	span.SetAttributes(telemetry.AttrDefinitions.Int(l.registry.Len()))
	logger.Debug().
		Int("declarations", b.count).
		Dur("duration", duration).
		Msg("configuration loaded")
	_ = l.events.PublishConfigLoaded(file, b.count, duration)
	return root, nil
}

func (l *Loader) fail(file string, err error) {
	kind := string(errs.KindOf(err))
	l.metrics.RecordError(kind)
	l.logger.Warn().
		Err(err).
		Str("file", file).
		Str("kind", kind).
		Msg("configuration rejected")
	_ = l.events.PublishConfigFailed(file, kind, err.Error())
}
