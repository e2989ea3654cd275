// Package fault normalizes errors before they are reported.
//
// A WrapperRegistry holds the error types that only exist to carry another
// error up a call chain. Normalize strips those carriers so the report shows
// the underlying cause. Summarize turns an error and its Unwrap chain into a
// domain.FaultSummary with resolved stack frames.
package fault
