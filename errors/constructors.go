package errors

import "fmt"

// InvalidState reports a value outside the canonical state space.
func InvalidState(format string, args ...any) *Error {
	return New(CodeInvalidState, CategoryState, fmt.Sprintf(format, args...))
}

// NotRank1 reports a projection of an element with no unique state preimage.
func NotRank1(message string) *Error {
	return New(CodeNotRank1, CategoryRuntime, message)
}

// MissingBinding reports a runtime parameter absent from the inputs.
func MissingBinding(name string) *Error {
	return New(CodeMissingBinding, CategoryRuntime, "runtime parameter has no binding").
		WithContext("param", name)
}

// Malformed reports a descriptor that cannot be built.
func Malformed(format string, args ...any) *Error {
	return New(CodeMalformedDescriptor, CategoryCompile, fmt.Sprintf(format, args...))
}

// UnknownOp reports an op name the registry does not know.
func UnknownOp(name string) *Error {
	return New(CodeUnknownOp, CategoryCompile, "op is not registered").WithContext("op", name)
}

// TypeMismatch reports an operand of the wrong kind.
func TypeMismatch(op string, format string, args ...any) *Error {
	return New(CodeTypeMismatch, CategoryCompile, fmt.Sprintf(format, args...)).WithContext("op", op)
}

// CapabilityViolation reports a backend that cannot express a computation class.
func CapabilityViolation(backend, class string) *Error {
	return New(CodeBackendCapabilityViolation, CategoryCompile, "backend cannot execute computation class").
		WithContext("backend", backend).
		WithContext("class", class)
}

// HintMismatch reports a complexity hint that disagrees with classification.
func HintMismatch(hint, computed string) *Error {
	return New(CodeHintMismatch, CategoryCompile, "complexity hint does not match computed class").
		WithContext("hint", hint).
		WithContext("computed", computed)
}

// CorruptPlan reports an undecodable serialized plan.
func CorruptPlan(format string, args ...any) *Error {
	return New(CodeCorruptPlan, CategoryIO, fmt.Sprintf(format, args...))
}
