// Package templates implements the template definition language: the type
// registry, the template parser, the declaration resolver and the
// validation and conversion engine.
//
// A template maps type names to either a type name (an alias) or a body:
//
//	name: ships
//	use: common
//
//	rank: str
//	ship:
//	  captain: str            # optional option of type str
//	  crew:
//	    type: pos_int         # required by default
//	  shields:
//	    type: float
//	    required: false
//	    validator: "value <= 1.0"
//	  escorts:
//	    type: escort
//	    allow_many: true
//
// Bodies may carry the reserved attributes type, required, validator,
// converter and allow_many. Any other key of a body declares an option;
// options may only carry reserved attributes, so definitions are one level
// deep. A top-level use entry loads other template files first, resolved
// relative to the referencing file, the working directory, the configured
// search paths and finally the bundled templates (builtins, common).
//
// A Registry is an explicit symbol table: create one per independent load,
// or call Clear between loads.
package templates
