package templates

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/expr"
	"github.com/hyperconf/hyperconf/pkg/telemetry"
	"github.com/hyperconf/hyperconf/pkg/types"
)

//go:embed builtins/*.yaml
var bundledFS embed.FS

// BundledPrefix marks the canonical path of a bundled template.
const BundledPrefix = "bundled:"

// DefaultExtension is appended to template paths without an extension.
const DefaultExtension = ".yaml"

// Bundled returns the templates shipped with the package.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundledFS, "builtins")
	if err != nil {
		return bundledFS
	}
	return sub
}

var tracer = otel.Tracer("github.com/hyperconf/hyperconf/pkg/templates")

// TemplateInfo describes a loaded template file.
type TemplateInfo struct {
	Name        string
	Description string
	File        string
	Definitions []string
}

// Registry is the symbol table of type definitions. It is not safe for
// concurrent use; callers serialize loads or use one registry per task.
type Registry struct {
	catalog     *types.Catalog
	evaluator   *expr.Evaluator
	schema      *metaSchema
	definitions map[string]*Definition
	order       []string
	loadedFiles map[string]bool
	templates   []TemplateInfo

	bundled     fs.FS
	searchPaths []string
	extension   string

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "template-registry").Logger()
	}
}

// WithMetrics records template loads in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithEvents publishes template loads to ep.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(r *Registry) {
		r.events = ep
	}
}

// WithBundledTemplates replaces the bundled template set. A nil fs disables
// bundled lookups.
func WithBundledTemplates(fsys fs.FS) Option {
	return func(r *Registry) {
		r.bundled = fsys
	}
}

// WithSearchPaths adds directories searched for relative template paths
// after the referencing file's directory and the working directory.
func WithSearchPaths(dirs ...string) Option {
	return func(r *Registry) {
		r.searchPaths = append(r.searchPaths, dirs...)
	}
}

// WithExtension sets the extension appended to template paths without one.
func WithExtension(ext string) Option {
	return func(r *Registry) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.extension = ext
	}
}

// WithEvaluator sets the expression evaluator.
func WithEvaluator(e *expr.Evaluator) Option {
	return func(r *Registry) {
		r.evaluator = e
	}
}

// WithCatalog sets the primitive type catalog.
func WithCatalog(c *types.Catalog) Option {
	return func(r *Registry) {
		r.catalog = c
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) (*Registry, error) {
	schema, err := newMetaSchema()
	if err != nil {
		return nil, err
	}

	r := &Registry{
		catalog:     types.NewCatalog(),
		evaluator:   expr.NewEvaluator(),
		schema:      schema,
		definitions: make(map[string]*Definition),
		loadedFiles: make(map[string]bool),
		bundled:     Bundled(),
		extension:   DefaultExtension,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Catalog returns the primitive type catalog.
func (r *Registry) Catalog() *types.Catalog {
	return r.catalog
}

// Register adds one definition. It fails with DuplicateDefinition when the
// name is taken.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}
	return r.registerAll([]*Definition{def})
}

// registerAll adds defs after checking that none of them is already
// registered, so a failing batch leaves the registry unchanged.
func (r *Registry) registerAll(defs []*Definition) error {
	for _, def := range defs {
		if existing, ok := r.definitions[def.Name]; ok {
			return duplicateError(existing, def)
		}
		if err := r.compile(def); err != nil {
			return err
		}
	}
	for _, def := range defs {
		r.definitions[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	r.metrics.SetDefinitionCount(len(r.definitions))
	return nil
}

func duplicateError(existing, def *Definition) error {
	return errs.Newf(errs.KindDuplicateDefinition,
		"type '%s' defined at %s is already defined at %s",
		def.Name, def.Location(), existing.Location()).At(def.File, def.Line)
}

func (r *Registry) compile(def *Definition) error {
	if err := def.compile(r.evaluator); err != nil {
		return errs.New(errs.KindTemplateSyntax, err.Error()).At(def.File, def.Line)
	}
	for _, opt := range def.Options {
		if err := opt.compile(r.evaluator); err != nil {
			return errs.New(errs.KindTemplateSyntax, err.Error()).At(opt.File, opt.Line)
		}
	}
	return nil
}

// Lookup returns a registered definition.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.definitions[name]
	return def, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.definitions[name]
	return ok
}

// IsKnownType reports whether name is registered or names a primitive.
func (r *Registry) IsKnownType(name string) bool {
	return r.Contains(name) || r.catalog.IsSupported(name)
}

// Resolve returns the definition for a type name. Primitives that were not
// registered resolve to a transient alias of themselves.
func (r *Registry) Resolve(name string) (*Definition, error) {
	if def, ok := r.definitions[name]; ok {
		return def, nil
	}
	if r.catalog.IsSupported(name) {
		return &Definition{Name: name, BaseType: name}, nil
	}
	return nil, errs.Newf(errs.KindUnknownDataType, "unknown type '%s'", name)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	return len(r.definitions)
}

// Templates returns the loaded template files in load order.
func (r *Registry) Templates() []TemplateInfo {
	out := make([]TemplateInfo, len(r.templates))
	copy(out, r.templates)
	return out
}

// LoadedFiles returns the canonical paths of loaded template files, sorted.
func (r *Registry) LoadedFiles() []string {
	out := make([]string, 0, len(r.loadedFiles))
	for f := range r.loadedFiles {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Clear removes all definitions and forgets loaded files.
func (r *Registry) Clear() {
	r.definitions = make(map[string]*Definition)
	r.order = nil
	r.loadedFiles = make(map[string]bool)
	r.templates = nil
	r.metrics.SetDefinitionCount(0)
}

// LoadFile loads a template file referenced from originFile at originLine.
// A path without extension gets the default one. Relative paths are searched
// in the directory of originFile, the working directory, the search paths,
// and finally the bundled templates. Loading a canonical path a second time
// is a no-op; a path whose load failed is not remembered.
func (r *Registry) LoadFile(ctx context.Context, templatePath, originFile string, originLine int) error {
	ctx, span := tracer.Start(ctx, "templates.load_file")
	defer span.End()
	span.SetAttributes(attribute.String("hyperconf.template", templatePath))

	err := r.loadFile(ctx, templatePath, originFile, originLine)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Registry) loadFile(ctx context.Context, templatePath, originFile string, originLine int) error {
	if strings.TrimSpace(templatePath) == "" {
		return errs.New(errs.KindTemplateSyntax, "the 'use' directive must specify a file path").
			At(originFile, originLine)
	}

	src, err := r.locate(templatePath, originFile)
	if err != nil {
		return errs.Newf(errs.KindTemplateNotFound,
			"Failed to load template '%s': could not find a file or a bundled template with that name",
			templatePath).At(originFile, originLine).WithCause(err)
	}

	if r.loadedFiles[src.canonical] {
		r.logger.Debug().
			Str("path", templatePath).
			Str("canonical", src.canonical).
			Msg("template already loaded")
		return nil
	}
	// Marked before parsing so use cycles terminate; forgotten again on
	// failure so a later load of the same path reports the error again.
	r.loadedFiles[src.canonical] = true
	loaded := false
	defer func() {
		if !loaded {
			delete(r.loadedFiles, src.canonical)
		}
	}()

	data, err := src.read()
	if err != nil {
		return errs.Newf(errs.KindTemplateNotFound, "Failed to load template '%s'", templatePath).
			At(originFile, originLine).WithCause(err)
	}

	m, err := document.ParseMapping(data, src.canonical)
	if err != nil {
		return errs.Newf(errs.KindTemplateSyntax, "invalid template document '%s'", src.canonical).
			At(originFile, originLine).WithCause(err)
	}

	defs, err := r.parse(ctx, m, src.canonical)
	if err != nil {
		return err
	}
	loaded = true

	r.logger.Debug().
		Str("path", templatePath).
		Str("canonical", src.canonical).
		Int("definitions", len(defs)).
		Msg("template loaded")
	r.metrics.RecordTemplateFile(src.kind, len(defs))
	_ = r.events.PublishTemplateLoaded(src.canonical, len(defs))
	return nil
}

// LoadString parses template definitions from text.
func (r *Registry) LoadString(ctx context.Context, text string) ([]*Definition, error) {
	m, err := document.ParseMapping([]byte(text), "")
	if err != nil {
		return nil, errs.New(errs.KindTemplateSyntax, "invalid template document").WithCause(err)
	}
	defs, err := r.ParseDocument(ctx, m, "")
	if err != nil {
		return nil, err
	}
	r.metrics.RecordTemplateFile("string", len(defs))
	return defs, nil
}

// templateSource is a located template file.
type templateSource struct {
	canonical string
	kind      string
	read      func() ([]byte, error)
}

func (r *Registry) locate(templatePath, originFile string) (*templateSource, error) {
	if filepath.Ext(templatePath) == "" {
		templatePath += r.extension
	}

	var candidates []string
	if filepath.IsAbs(templatePath) {
		candidates = append(candidates, templatePath)
	} else {
		if originFile != "" && !strings.HasPrefix(originFile, BundledPrefix) {
			candidates = append(candidates, filepath.Join(filepath.Dir(originFile), templatePath))
		}
		candidates = append(candidates, templatePath)
		for _, dir := range r.searchPaths {
			candidates = append(candidates, filepath.Join(dir, templatePath))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = filepath.Clean(candidate)
		}
		return &templateSource{
			canonical: abs,
			kind:      "file",
			read:      func() ([]byte, error) { return os.ReadFile(abs) },
		}, nil
	}

	if r.bundled != nil {
		name := path.Base(filepath.ToSlash(templatePath))
		if _, err := fs.Stat(r.bundled, name); err == nil {
			return &templateSource{
				canonical: BundledPrefix + name,
				kind:      "bundled",
				read:      func() ([]byte, error) { return fs.ReadFile(r.bundled, name) },
			}, nil
		}
	}

	return nil, fmt.Errorf("searched %s: %w", strings.Join(candidates, ", "), fs.ErrNotExist)
}

// BundledNames lists the bundled template names without extension.
func (r *Registry) BundledNames() []string {
	if r.bundled == nil {
		return nil
	}
	entries, err := fs.ReadDir(r.bundled, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	return names
}
