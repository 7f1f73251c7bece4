// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
// Package errs wraps pkg/errors and attaches the error-kind taxonomy used
// across the engine: invalid-argument, schema-conflict, io, corruption,
// capacity, and unsupported.
package errs

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Code identifies the kind of failure, independent of the error's Go type.
type Code string

const (
	InvalidArgument Code = "invalid-argument"
	SchemaConflict  Code = "schema-conflict"
	IO              Code = "io"
	Corruption      Code = "corruption"
	Capacity        Code = "capacity"
	Unsupported     Code = "unsupported"
	Uncoded         Code = "uncoded"
)

// codedError is the fundamental type returned by New, Wrap, and friends.
type codedError struct {
	Code    Code
	Path    string
	Message string
}

func (ce *codedError) Error() string {
	if ce.Path != "" {
		return string(ce.Code) + ": " + ce.Message + " (path=" + ce.Path + ")"
	}
	return string(ce.Code) + ": " + ce.Message
}

func (ce *codedError) Is(target error) bool {
	other, ok := target.(*codedError)
	if !ok {
		return false
	}
	return ce.Code == other.Code
}

// New creates a coded error carrying a stack trace.
func New(code Code, message string) error {
	return errors.WithStack(&codedError{Code: code, Message: message})
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return errors.WithStack(&codedError{Code: code, Message: errors.Errorf(format, args...).Error()})
}

// WithPath annotates a coded error with the filesystem or array path that
// triggered it, carrying the underlying backend message alongside the path.
func WithPath(code Code, path, message string) error {
	return errors.WithStack(&codedError{Code: code, Path: path, Message: message})
}

// Wrap returns a new coded error whose message is message + ": " +
// err.Error(), the same shape as errors.Wrap but with a Code attached. Only
// err's text is kept: its Code and stack are not, and Cause returns the new
// error rather than err.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&codedError{Code: code, Message: message + ": " + err.Error()})
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) error {
	return Wrap(err, code, errors.Errorf(format, args...).Error())
}

// Is reports whether err (or anything it wraps) carries the given Code.
func Is(err error, code Code) bool {
	return errors.Is(err, &codedError{Code: code})
}

// CodeOf returns the Code carried by err, or Uncoded if none is attached.
func CodeOf(err error) Code {
	cause := errors.Cause(err)
	if ce, ok := cause.(*codedError); ok {
		return ce.Code
	}
	return Uncoded
}

// Cause unwraps to the innermost error, matching pkg/errors.Cause.
func Cause(err error) error {
	return errors.Cause(err)
}

// MarshalJSON renders err as a JSON object carrying its code, message, and
// path, for logging and API error bodies.
func MarshalJSON(err error) string {
	cause := errors.Cause(err)
	ce, ok := cause.(*codedError)
	if !ok {
		ce = &codedError{Code: Uncoded, Message: err.Error()}
	}
	b, jerr := json.Marshal(struct {
		Code    Code   `json:"code"`
		Path    string `json:"path,omitempty"`
		Message string `json:"message"`
	}{ce.Code, ce.Path, ce.Message})
	if jerr != nil {
		return ce.Error()
	}
	return string(b)
}
