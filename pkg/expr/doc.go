// Package expr compiles the validator and converter expressions attached to
// template definitions.
//
// An expression is a single Starlark expression over exactly two bindings:
//
//	value    the candidate value (converted to its primitive Go type first)
//	typedef  a struct describing the governing definition
//	         (name, type, required, options)
//
// Expressions are compiled once into a closure and evaluated in a sandbox
// that exposes only the Starlark universe plus a fixed set of helpers:
//
//	re_match(pattern, s)      pattern matches at the start of s
//	re_search(pattern, s)     pattern matches anywhere in s
//	re_fullmatch(pattern, s)  pattern matches all of s
//	math.*                    the Starlark math module (sqrt, floor, pow, ...)
//	path.base/dir/ext/stem/join/clean/is_abs
//
// Statements, assignments, loads and printing are unavailable, and every
// evaluation runs under an execution step budget.
//
// A validator yields a boolean or a (boolean, message) tuple; a converter
// yields the replacement value.
//
//	pos_int:
//	  type: int
//	  validator: "value >= 0"
//	port:
//	  type: int
//	  validator: "(0 < value and value < 65536, 'port out of range')"
//	upper:
//	  type: str
//	  converter: "value.upper()"
package expr
