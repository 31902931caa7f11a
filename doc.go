// Package dualc compiles declarative operation descriptors into execution
// plans for a 96-state algebraic engine and runs them on one of two
// interchangeable backends.
//
// A state is an index 24h + 8d + l with h in Z4, d in Z3 and l in Z8. Four
// generators act on states: R rotates h, D rotates d, T rotates l and M
// negates all three. The fast backend executes plans as table lookups over
// states. The general backend executes the same plans over elements of
// Cl(0,7) ⊗ Z4 ⊗ Z3, reached from states by lift and returned by project.
// Both backends produce the same result wherever both apply.
//
// # Pipeline
//
//	descriptor -> ir.Build -> ir.Normalize -> compiler.Classify
//	           -> compiler.SelectBackend -> compiler.Lower -> model.Plan
//	           -> runtime.Engine.Run
//
// Normalization folds constants, removes identities and inverse pairs, and
// optionally fuses runs of state transforms into a single lookup table.
// Classification assigns C0 (constant), C1 (state transforms only), C2
// (rank-1 elements) or C3 (general elements); C3 plans always run on the
// general backend.
//
// # Basic Usage
//
//	dualc compile rotate.yaml -o rotate.dplan
//	dualc run rotate.dplan --in x=21
//
// or from Go:
//
//	desc, err := model.LoadDescriptor("rotate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	plan, err := compiler.New(compiler.Options{}).Compile(ctx, desc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := runtime.Run(ctx, plan, map[string]value.Value{"x": value.Of(21)})
//
// # Package Structure
//
//   - core: state space, generators and transform tables
//   - algebra: dense Cl(0,7) ⊗ Z4 ⊗ Z3 elements
//   - bridge: lift, project and the algebra images of the generators
//   - value: the state | element sum carried between ops
//   - kernels: op vocabulary and registry
//   - ir: IR construction, normalization and reference evaluation
//   - compiler: classification, backend selection, lowering and caching
//   - runtime: fast and general executors
//   - model: descriptors, plans and the binary plan format
//   - store: persistent plan store
//   - cmd/dualc: command-line front end
package dualc
