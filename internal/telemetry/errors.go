package telemetry

import "fmt"

// FieldCountError reports a record whose comma-split arity is not FieldCount.
type FieldCountError struct {
	Got int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("telemetry: record has %d fields, want %d", e.Got, FieldCount)
}

// FieldParseError reports the first field of a record that failed structural
// parsing. Value is the offending wire token.
type FieldParseError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldParseError) Error() string {
	return fmt.Sprintf("telemetry: field %s: invalid value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldParseError) Unwrap() error { return e.Err }

// FieldRangeError reports a structurally valid field whose value falls
// outside its physical range.
type FieldRangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *FieldRangeError) Error() string {
	return fmt.Sprintf("telemetry: field %s: value %v outside range [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}
