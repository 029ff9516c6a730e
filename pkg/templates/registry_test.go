package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/hyperconf/hyperconf/pkg/errs"
)

func TestRegistry_LoadFileIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "defs.yaml", "ref1: str\nref2: int\n")

	r := newTestRegistry(t)
	ctx := context.Background()
	text := "use: " + filepath.Join(dir, "defs") + "\n"

	if _, err := r.LoadString(ctx, text); err != nil {
		t.Fatalf("first load error = %v", err)
	}
	if _, err := r.LoadString(ctx, text); err != nil {
		t.Fatalf("second load error = %v", err)
	}
	if err := r.LoadFile(ctx, filepath.Join(dir, "defs.yaml"), "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if got := len(r.LoadedFiles()); got != 1 {
		t.Errorf("LoadedFiles() = %d entries, want 1", got)
	}
}

func TestRegistry_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.yaml", "x: str\n")
	second := writeFile(t, dir, "second.yaml", "\n\nx: int\n")

	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.LoadFile(ctx, first, "", 0); err != nil {
		t.Fatalf("LoadFile(first) error = %v", err)
	}
	err := r.LoadFile(ctx, second, "", 0)
	if !errors.Is(err, errs.ErrDuplicateDefinition) {
		t.Fatalf("expected DuplicateDefinition, got %v", err)
	}

	msg := err.Error()
	if !strings.Contains(msg, first+":1") || !strings.Contains(msg, second+":3") {
		t.Errorf("error should name both locations: %s", msg)
	}
}

func TestRegistry_RelativeUse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/base.yaml", "base_type: int\n")
	writeFile(t, dir, "lib/derived.yaml", "use: base\nderived_type: base_type\n")
	writeFile(t, dir, "other/extra.yml", "extra_type: str\n")

	r := newTestRegistry(t, WithSearchPaths(filepath.Join(dir, "other")))
	ctx := context.Background()

	if err := r.LoadFile(ctx, filepath.Join(dir, "lib", "derived"), "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !r.Contains("base_type") || !r.Contains("derived_type") {
		t.Errorf("relative use not resolved, names = %v", r.Names())
	}

	if err := r.LoadFile(ctx, "extra.yml", "", 0); err != nil {
		t.Fatalf("LoadFile(search path) error = %v", err)
	}
	if !r.Contains("extra_type") {
		t.Error("search path not used")
	}
}

func TestRegistry_UseCycle(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "use: b\nx: str\n")
	writeFile(t, dir, "b.yaml", "use: a\ny: int\n")

	r := newTestRegistry(t)
	if err := r.LoadFile(context.Background(), a, "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !r.Contains("x") || !r.Contains("y") {
		t.Errorf("names = %v", r.Names())
	}
}

func TestRegistry_Bundled(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.LoadFile(ctx, "builtins", "", 0); err != nil {
		t.Fatalf("LoadFile(builtins) error = %v", err)
	}
	for _, name := range []string{"str", "int", "float", "bool", "classname", "list[int]", "list[classname]"} {
		if !r.Contains(name) {
			t.Errorf("builtins should register %s", name)
		}
	}
	if files := r.LoadedFiles(); len(files) != 1 || files[0] != BundledPrefix+"builtins.yaml" {
		t.Errorf("LoadedFiles() = %v", files)
	}

	if _, err := r.LoadString(ctx, "use: common\nsmall: pos_int\n"); err != nil {
		t.Fatalf("use common error = %v", err)
	}
	if !r.Contains("port") || !r.Contains("small") {
		t.Errorf("common not loaded, names = %v", r.Names())
	}

	names := r.BundledNames()
	if strings.Join(names, ",") != "builtins,common" {
		t.Errorf("BundledNames() = %v", names)
	}
}

func TestRegistry_BundledOverride(t *testing.T) {
	fsys := fstest.MapFS{
		"shared.yaml": &fstest.MapFile{Data: []byte("shared_type: float\n")},
	}
	r := newTestRegistry(t, WithBundledTemplates(fsys))
	ctx := context.Background()

	if err := r.LoadFile(ctx, "shared", "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := r.LoadFile(ctx, "builtins", "", 0); !errors.Is(err, errs.ErrTemplateNotFound) {
		t.Errorf("expected TemplateNotFound, got %v", err)
	}

	none := newTestRegistry(t, WithBundledTemplates(nil))
	if err := none.LoadFile(ctx, "builtins", "", 0); !errors.Is(err, errs.ErrTemplateNotFound) {
		t.Errorf("expected TemplateNotFound without bundled templates, got %v", err)
	}
}

func TestRegistry_Extension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "defs.tmpl", "t: str\n")

	r := newTestRegistry(t, WithExtension("tmpl"))
	if err := r.LoadFile(context.Background(), filepath.Join(dir, "defs"), "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !r.Contains("t") {
		t.Error("t not registered")
	}
}

func TestRegistry_NotFoundLocation(t *testing.T) {
	r := newTestRegistry(t)
	err := r.LoadFile(context.Background(), "missing", "app.yaml", 7)

	var e *errs.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errs.Error, got %v", err)
	}
	if e.Kind != errs.KindTemplateNotFound || e.File != "app.yaml" || e.Line != 7 {
		t.Errorf("unexpected error: %+v", e)
	}
}

func TestRegistry_InvalidTemplateFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "broken.yaml", "a: [b\n")

	r := newTestRegistry(t)
	err := r.LoadFile(context.Background(), p, "", 0)
	if !errors.Is(err, errs.ErrTemplateSyntax) {
		t.Errorf("expected TemplateSyntaxError, got %v", err)
	}
}

func TestRegistry_FailedLoadNotRemembered(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "bad.yaml", "ship:\n  captain:\n    nested:\n      too: deep\n")

	r := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.LoadFile(ctx, p, "", 0); !errors.Is(err, errs.ErrTemplateSyntax) {
			t.Fatalf("load %d: expected TemplateSyntaxError, got %v", i+1, err)
		}
	}
	if files := r.LoadedFiles(); len(files) != 0 {
		t.Errorf("LoadedFiles() = %v, want none", files)
	}
}

func TestRegistry_RegisterLookupClear(t *testing.T) {
	r := newTestRegistry(t)

	def := &Definition{Name: "answer", BaseType: "int", Validator: "value == 42"}
	if err := r.Register(def); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(&Definition{Name: "answer", BaseType: "str"}); !errors.Is(err, errs.ErrDuplicateDefinition) {
		t.Errorf("expected DuplicateDefinition, got %v", err)
	}
	if err := r.Register(&Definition{Name: "bad", BaseType: "int", Validator: "value ="}); !errors.Is(err, errs.ErrTemplateSyntax) {
		t.Errorf("expected TemplateSyntaxError, got %v", err)
	}

	got, ok := r.Lookup("answer")
	if !ok || got != def {
		t.Fatalf("Lookup() = %v, %v", got, ok)
	}

	r.Clear()
	if r.Contains("answer") || r.Len() != 0 || len(r.LoadedFiles()) != 0 || len(r.Templates()) != 0 {
		t.Error("Clear() should reset definitions, loaded files and templates")
	}
}

func TestRegistry_ResolvePrimitive(t *testing.T) {
	r := newTestRegistry(t)

	def, err := r.Resolve("list[float]")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if def.Name != "list[float]" || r.Contains("list[float]") {
		t.Errorf("primitive should resolve without registering, got %v", def)
	}
	if _, err := r.Resolve("nothing"); !errors.Is(err, errs.ErrUnknownDataType) {
		t.Errorf("expected UnknownDataType, got %v", err)
	}
}

func TestRegistry_Describe(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadString(context.Background(), `
pos:
  type: int
  validator: "value >= 0"
small_pos:
  type: pos
  validator: "value < 10"
ship:
  captain: str
warship: ship
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	small, _ := r.Lookup("small_pos")
	shape, err := r.Describe(small)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if shape.IsComposite() || shape.Primitive.Name() != "int" || len(shape.chain) != 2 {
		t.Errorf("unexpected shape: primitive=%v chain=%d", shape.Primitive, len(shape.chain))
	}

	warship, _ := r.Lookup("warship")
	shape, err = r.Describe(warship)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if !shape.IsComposite() || shape.TypeName() != "ship" || shape.Definition != warship {
		t.Errorf("warship should describe ship options, got %s", shape.TypeName())
	}
	if info := shape.TypeInfo(); info.Name != "warship" || info.BaseType != Composite || len(info.Options) != 1 {
		t.Errorf("TypeInfo() = %+v", info)
	}
}

func TestRegistry_TemplateDirRelativeToCwd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cwd_defs.yaml", "cwd_type: str\n")

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(wd) }()

	r := newTestRegistry(t)
	if err := r.LoadFile(context.Background(), "cwd_defs", "", 0); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !r.Contains("cwd_type") {
		t.Error("cwd_type not registered")
	}
}
