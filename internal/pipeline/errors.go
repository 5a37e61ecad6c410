package pipeline

import "fmt"

// FetchError reports an upstream raw-data failure during the fetch stage.
// The affected unit terminates in StateFailed; other units are unaffected.
type FetchError struct {
	Codes []string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch raw bars for %v: %v", e.Codes, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
