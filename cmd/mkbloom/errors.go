package main

import (
	"errors"
	"fmt"
	"io/fs"

	"mkbloom.lopezb.com/internal/mkbloom/artifact"
)

// Kind classifies a build failure. Every kind is fatal; the tool has no
// recovery path and never retries.
type Kind int

const (
	// InputUnreadable: the corpus cannot be opened or read to completion, or
	// it changed between the count and populate passes.
	InputUnreadable Kind = iota + 1

	// OutputUnwritable: the bitmap, metadata or metrics file cannot be
	// created or written.
	OutputUnwritable

	// InvalidRateInput: the false positive rate is not a probability in (0, 1).
	InvalidRateInput

	// InvalidOption: some other option has an unusable value.
	InvalidOption

	// EntropyUnavailable: no hash keys could be drawn for the filter.
	EntropyUnavailable
)

func (k Kind) String() string {
	switch k {
	case InputUnreadable:
		return "InputUnreadable"
	case OutputUnwritable:
		return "OutputUnwritable"
	case InvalidRateInput:
		return "InvalidRateInput"
	case InvalidOption:
		return "InvalidOption"
	case EntropyUnavailable:
		return "EntropyUnavailable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// buildError names the resource that failed, so the operator can tell which
// file to look at without reading a stack of wrapped errors.
type buildError struct {
	kind     Kind
	action   string // "opening", "creating", "parsing", ...
	resource string // "INFILE", "OUTFILE", "FALSE_POSITIVE_RATE", ...
	err      error
}

func (e *buildError) Error() string {
	return fmt.Sprintf("Error %s %s: %v", e.action, e.resource, e.err)
}

func (e *buildError) Unwrap() error { return e.err }

// kindOf returns the Kind of err, or 0 if it is not a build error.
func kindOf(err error) Kind {
	var be *buildError
	if errors.As(err, &be) {
		return be.kind
	}
	return 0
}

func rateError(err error) error {
	return &buildError{kind: InvalidRateInput, action: "parsing", resource: "FALSE_POSITIVE_RATE", err: err}
}

// inputError distinguishes a corpus that cannot be opened from one that fails
// part way through.
func inputError(err error) error {
	action := "reading"
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Op == "open" {
		action = "opening"
	}
	return &buildError{kind: InputUnreadable, action: action, resource: "INFILE", err: err}
}

// outputError labels an artifact failure with the output it concerns.
func outputError(action string, err error) error {
	resource := "output"
	var ae *artifact.Error
	if errors.As(err, &ae) {
		resource = ae.Resource
		err = ae.Err
	}
	return &buildError{kind: OutputUnwritable, action: action, resource: resource, err: err}
}
