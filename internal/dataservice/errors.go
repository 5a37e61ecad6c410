package dataservice

import "fmt"

// StructureError reports a DDL failure: missing privileges, or an existing
// object whose shape conflicts with what the domain expects.
type StructureError struct {
	Domain string
	Object string // the schema or table involved
	Reason string
	Err    error
}

func (e *StructureError) Error() string {
	msg := fmt.Sprintf("structure error in domain %s on %s: %s", e.Domain, e.Object, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StructureError) Unwrap() error { return e.Err }
