package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by NextPhase before any Load completed.
	ErrNotLoaded = errors.New("phases not loaded")
	// ErrNoMorePhases is returned by NextPhase once the sequence is drained.
	ErrNoMorePhases = errors.New("no more phases")
	// ErrEmptyResult means the selected strategy produced no sequence.
	ErrEmptyResult = errors.New("empty phases")
	// ErrMalformedRecord marks a level record missing required data.
	ErrMalformedRecord = errors.New("malformed level record")
	// ErrAlreadyMaterialized is returned when a descriptor is materialized twice.
	ErrAlreadyMaterialized = errors.New("phase already materialized")
)

// ErrorKind classifies a failed acquisition for the fallback policy.
type ErrorKind int

const (
	// KindAcquisition: the item service or navigator failed.
	KindAcquisition ErrorKind = iota
	// KindEmpty: no strategy applied or the strategy produced no phases.
	KindEmpty
	// KindFatal: reserved for failures the fallback must not hide.
	// Nothing produces it yet.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition"
	case KindEmpty:
		return "empty"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Recoverable reports whether the fallback set may silently replace the
// intended content.
func (k ErrorKind) Recoverable() bool {
	return k != KindFatal
}

// AcquisitionError wraps a failure of the selected strategy.
type AcquisitionError struct {
	Kind     ErrorKind
	Strategy Strategy
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s via %s: %v", e.Kind, e.Strategy, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// classify wraps err into an AcquisitionError unless it already is one.
func classify(s Strategy, err error) *AcquisitionError {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return ae
	}
	kind := KindAcquisition
	if errors.Is(err, ErrEmptyResult) {
		kind = KindEmpty
	}
	return &AcquisitionError{Kind: kind, Strategy: s, Err: err}
}

// IntegrityError reports a level record that cannot be materialized.
type IntegrityError struct {
	Field string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrMalformedRecord, e.Field)
}

func (e *IntegrityError) Unwrap() error {
	return ErrMalformedRecord
}
