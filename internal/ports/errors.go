package ports

import (
	"errors"
	"fmt"
)

var ErrNotConfigurable = errors.New("recognizer does not support reconfiguration")

// DecodeError means the submitted audio could not be turned into a
// canonical waveform.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode audio: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// InferenceError means the recognizer failed on one chunk. The rest of
// the invocation is abandoned.
type InferenceError struct {
	Chunk int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed on chunk %d: %v", e.Chunk, e.Err)
}
func (e *InferenceError) Unwrap() error { return e.Err }

// InfrastructureError means the queue or the status store could not be
// reached. The affected job's state is unknown.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *InfrastructureError) Unwrap() error { return e.Err }
