package expr

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// builtins returns the helper whitelist available to every expression.
func builtins() starlark.StringDict {
	return starlark.StringDict{
		"re_match":     starlark.NewBuiltin("re_match", builtinReMatch),
		"re_search":    starlark.NewBuiltin("re_search", builtinReSearch),
		"re_fullmatch": starlark.NewBuiltin("re_fullmatch", builtinReFullMatch),
		"math":         math.Module,
		"path": &starlarkstruct.Module{
			Name: "path",
			Members: starlark.StringDict{
				"base":   starlark.NewBuiltin("path.base", pathFunc(filepath.Base)),
				"dir":    starlark.NewBuiltin("path.dir", pathFunc(filepath.Dir)),
				"ext":    starlark.NewBuiltin("path.ext", pathFunc(filepath.Ext)),
				"clean":  starlark.NewBuiltin("path.clean", pathFunc(filepath.Clean)),
				"stem":   starlark.NewBuiltin("path.stem", pathFunc(stem)),
				"join":   starlark.NewBuiltin("path.join", builtinPathJoin),
				"is_abs": starlark.NewBuiltin("path.is_abs", builtinPathIsAbs),
			},
		},
	}
}

// regexCache holds compiled patterns keyed by their anchored source.
var regexCache sync.Map

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

func regexBuiltin(anchor func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var pattern, s string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "pattern", &pattern, "string", &s); err != nil {
			return nil, err
		}
		re, err := compilePattern(anchor(pattern))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid pattern %q: %w", b.Name(), pattern, err)
		}
		return starlark.Bool(re.MatchString(s)), nil
	}
}

// builtinReMatch matches at the start of the string.
var builtinReMatch = regexBuiltin(func(p string) string { return `^(?:` + p + `)` })

// builtinReSearch matches anywhere in the string.
var builtinReSearch = regexBuiltin(func(p string) string { return p })

// builtinReFullMatch matches the whole string.
var builtinReFullMatch = regexBuiltin(func(p string) string { return `^(?:` + p + `)$` })

func pathFunc(fn func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var p string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
			return nil, err
		}
		return starlark.String(fn(p)), nil
	}
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func builtinPathJoin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		s, ok := starlark.AsString(arg)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is not a string", b.Name(), i+1)
		}
		parts[i] = s
	}
	return starlark.String(filepath.Join(parts...)), nil
}

func builtinPathIsAbs(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var p string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &p); err != nil {
		return nil, err
	}
	return starlark.Bool(filepath.IsAbs(p)), nil
}
