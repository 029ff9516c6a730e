// Package policy evaluates Open Policy Agent (OPA) Rego policies against
// loaded configuration trees.
//
// Templates decide whether a configuration is well-typed; policies decide
// whether it is acceptable. Each policy is a Rego module whose deny rule
// yields violations, either as plain messages or as objects:
//
//	package hyperconf.ports
//
//	import rego.v1
//
//	deny contains violation if {
//	    some decl in input.declarations
//	    decl.type == "port"
//	    decl.value < 1024
//	    violation := {
//	        "message": sprintf("'%s' uses a privileged port", [decl.path]),
//	        "path": decl.path,
//	        "line": decl.line,
//	        "severity": "error",
//	    }
//	}
//
// # Input
//
// Policies see the tree twice: input.config holds it as nested data and
// input.declarations lists every declaration depth first with its dotted
// path, identifier, governing type, kind (scalar, node or list), scalar
// value and source line. input.file names the configuration file.
//
// # Usage
//
//	eng, err := policy.NewEngine(ctx, policy.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadDir(ctx, "policies"); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, root)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// Violations of severity error or critical make the result disallowed;
// info and warning findings are reported as warnings.
//
// # Built-in Policies
//
//   - plaintext-secrets: secret-looking scalars must reference ${VAR}
//   - untyped-declarations: objects and lists no template describes
//   - empty-configuration: documents without declarations
//
// Built-ins can be disabled per engine with WithoutBuiltins or per policy
// with DisablePolicy.
package policy
