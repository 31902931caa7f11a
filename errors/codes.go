package errors

// -----------------------------------------------------------------------------
// State Error Codes
// -----------------------------------------------------------------------------

const (
	// CodeInvalidState indicates a coordinate, index or byte outside the
	// canonical state space.
	CodeInvalidState = "INVALID_STATE"
)

// -----------------------------------------------------------------------------
// Compile Error Codes
// -----------------------------------------------------------------------------
// Structural problems are fatal at compile time and never reach Run.

const (
	// CodeMalformedDescriptor indicates a descriptor that fails validation:
	// unknown names, bad parameters, a leading "$" reference.
	CodeMalformedDescriptor = "MALFORMED_DESCRIPTOR"

	// CodeHintMismatch indicates the complexity hint disagrees with the
	// computed class.
	CodeHintMismatch = "HINT_MISMATCH"

	// CodeUnknownOp indicates an op name missing from the registry.
	CodeUnknownOp = "UNKNOWN_OP"

	// CodeTypeMismatch indicates an operand whose kind the op cannot accept.
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeBackendCapabilityViolation indicates the requested backend cannot
	// express the computation.
	CodeBackendCapabilityViolation = "BACKEND_CAPABILITY_VIOLATION"

	// CodeDuplicateOp indicates a registry insertion under a taken name.
	CodeDuplicateOp = "DUPLICATE_OP"
)

// -----------------------------------------------------------------------------
// Runtime Error Codes
// -----------------------------------------------------------------------------

const (
	// CodeNotRank1 indicates a projection of an element that is not the
	// image of a single state. Recoverable by running on the general backend.
	CodeNotRank1 = "NOT_RANK1"

	// CodeMissingBinding indicates a runtime parameter without a value.
	CodeMissingBinding = "MISSING_BINDING"

	// CodeOverflow indicates tracked ring overflow surfaced as an error.
	CodeOverflow = "OVERFLOW"
)

// -----------------------------------------------------------------------------
// IO Error Codes
// -----------------------------------------------------------------------------

const (
	// CodeCorruptPlan indicates a serialized plan that cannot be decoded.
	CodeCorruptPlan = "CORRUPT_PLAN"

	// CodeStoreFailed indicates the persistent plan store failed.
	CodeStoreFailed = "STORE_FAILED"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrInvalidState               = &Error{Code: CodeInvalidState, Category: CategoryState}
	ErrMalformedDescriptor        = &Error{Code: CodeMalformedDescriptor, Category: CategoryCompile}
	ErrHintMismatch               = &Error{Code: CodeHintMismatch, Category: CategoryCompile}
	ErrUnknownOp                  = &Error{Code: CodeUnknownOp, Category: CategoryCompile}
	ErrTypeMismatch               = &Error{Code: CodeTypeMismatch, Category: CategoryCompile}
	ErrBackendCapabilityViolation = &Error{Code: CodeBackendCapabilityViolation, Category: CategoryCompile}
	ErrDuplicateOp                = &Error{Code: CodeDuplicateOp, Category: CategoryCompile}
	ErrNotRank1                   = &Error{Code: CodeNotRank1, Category: CategoryRuntime}
	ErrMissingBinding             = &Error{Code: CodeMissingBinding, Category: CategoryRuntime}
	ErrOverflow                   = &Error{Code: CodeOverflow, Category: CategoryRuntime}
	ErrCorruptPlan                = &Error{Code: CodeCorruptPlan, Category: CategoryIO}
	ErrStoreFailed                = &Error{Code: CodeStoreFailed, Category: CategoryIO}
)
