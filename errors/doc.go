// Package errors provides structured error types for the physx runtime.
//
// Errors are categorized by Phase (where in the lifecycle the error occurred)
// and Kind (error category). The Error type carries the runtime mode and the
// native resource stage involved, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConstruct, errors.KindResourceConstruction).
//		Stage("foundation").
//		Detail("native constructor returned handle 0").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ArtifactLoad("accelerated", cause)
//	err := errors.NotInitialized(errors.PhaseRuntime, "physics")
//
// Matching by kind works through the standard library:
//
//	if errors.Is(err, &errors.Error{Kind: errors.KindArtifactLoad}) { ... }
//	if errors.KindOf(err) == errors.KindUnsupported { ... }
package errors
