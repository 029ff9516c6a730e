// Package config builds read-only configuration trees from YAML documents
// typed by the templates of a templates.Registry.
//
// Every key of a configuration document is a declaration of the form
// identifier[=type]. The governing type is taken from the explicit suffix,
// from the identifier when it names a registered type, or from the options of
// the enclosing object. Lenient loads fall back to the scalar's own kind and
// keep unresolved mappings untyped; strict loads reject them.
//
//	use: ships
//	ncc1701=ship:
//	  captain: Kirk
//	  crew: 430
//
// A Loader walks the document depth first, loading templates named by use
// entries on the way, and returns a Node:
//
//	reg, _ := templates.NewRegistry()
//	loader, _ := config.NewLoader(reg, config.WithStrict(true))
//	root, err := loader.LoadFile(ctx, "fleet.yaml")
//	captain, _ := root.Lookup("ncc1701.captain").AsString()
//
// Nodes cannot be modified; Set and Delete fail with ImmutableConfiguration.
package config
