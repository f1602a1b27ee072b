// Package errors provides error handling for dealstream.
//
// This package re-exports github.com/cockroachdb/errors so every package
// wraps and inspects errors the same way, and defines the sentinel errors
// shared across the stream client, the API client and the CLI.
//
// Usage:
//
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	if errors.Is(err, errors.ErrNotAuthenticated) {
//	    // prompt for login
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
)

// Error inspection
var (
	Is          = crdb.Is
	As          = crdb.As
	Unwrap      = crdb.Unwrap
	UnwrapAll   = crdb.UnwrapAll
	GetAllHints = crdb.GetAllHints
)

// Sentinel errors. Wrap these with errors.Wrap() to add context while
// preserving the type for errors.Is().
var (
	// ErrInvalidJobID indicates an empty or otherwise unusable job identifier.
	ErrInvalidJobID = New("invalid job id")

	// ErrMissingStatusFunc indicates initial-state reconciliation was
	// requested without a job-status accessor.
	ErrMissingStatusFunc = New("initial state requested without a job status accessor")

	// ErrMissingTokenProvider indicates a subscription was attempted without
	// a way to obtain a bearer credential.
	ErrMissingTokenProvider = New("token provider is required")

	// ErrNotAuthenticated indicates no credential is stored or configured.
	ErrNotAuthenticated = New("not authenticated")
)
