// Package types provides the primitive value types that template definitions
// build on: str, int, float, bool, classname and the homogeneous list[T].
//
// Each type validates a raw scalar decoded from a document and converts it to
// its Go representation:
//
//	str        string
//	int        int64
//	float      float64
//	bool       bool
//	classname  string (dotted identifier, e.g. "pkg.module.Class")
//	list[T]    []interface{} of converted T values, parsed from "a, b, c"
//
// Types are looked up through a Catalog. list[T] types are created on demand
// for any scalar T known to the catalog; nested lists are not supported.
package types
