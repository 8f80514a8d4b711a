/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package core

import (
	"fmt"
	"net/http"

	"github.com/jasonish/evecore/querystring"
	"github.com/pkg/errors"
)

// ErrUnimplemented is returned by a datastore that does not support an
// operation.
var ErrUnimplemented = errors.New("not implemented")

// ErrEventNotFound is returned when an operation targeting a specific
// event did not match any event.
var ErrEventNotFound = errors.New("event not found")

// BadRequestError is returned for invalid input, such as a malformed
// query string, timestamp or duration.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func NewBadRequestError(format string, args ...interface{}) error {
	return &BadRequestError{
		Message: fmt.Sprintf(format, args...),
	}
}

// ParseError is an event that could not be decoded during ingest. These
// are logged and the event dropped, they don't fail the submission.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse event on line %d: %v", e.Line, e.Err)
}

// BackendError is a failure talking to, or returned by, the underlying
// event store.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Cause() error {
	return e.Err
}

// NewBackendError wraps err with message as a BackendError. A nil err
// returns nil.
func NewBackendError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &BackendError{
		Err: errors.Wrap(err, message),
	}
}

func NewEventNotFoundError(id string) error {
	return errors.Wrapf(ErrEventNotFound, "id %s", id)
}

// Unimplemented returns ErrUnimplemented annotated with the operation
// name.
func Unimplemented(operation string) error {
	return errors.Wrap(ErrUnimplemented, operation)
}

func IsEventNotFound(err error) bool {
	return errors.Cause(err) == ErrEventNotFound
}

func IsUnimplemented(err error) bool {
	return errors.Cause(err) == ErrUnimplemented
}

func IsBadRequest(err error) bool {
	switch errors.Cause(err).(type) {
	case *BadRequestError, *querystring.ParseError:
		return true
	}
	return false
}

// HttpStatus maps an error to the HTTP status code to respond with.
func HttpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsUnimplemented(err):
		return http.StatusNotImplemented
	case IsEventNotFound(err):
		return http.StatusNotFound
	case IsBadRequest(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
