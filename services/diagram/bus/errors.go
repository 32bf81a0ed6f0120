// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package bus

import (
	"errors"
	"fmt"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

var (
	// ErrHandlerNotFound is wrapped by every HandlerNotFoundError.
	ErrHandlerNotFound = errors.New("no handler registered")

	// ErrDuplicateRegistration is wrapped by every DuplicateRegistrationError.
	ErrDuplicateRegistration = errors.New("handler already registered")
)

// HandlerNotFoundError reports a command type with no registered handler.
type HandlerNotFoundError struct {
	CommandType domain.CommandType
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for command type %q", e.CommandType)
}

func (e *HandlerNotFoundError) Unwrap() error { return ErrHandlerNotFound }

// DuplicateRegistrationError reports a second registration for a command
// type that already has a handler. Registration never silently overwrites.
type DuplicateRegistrationError struct {
	CommandType domain.CommandType
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("handler already registered for command type %q", e.CommandType)
}

func (e *DuplicateRegistrationError) Unwrap() error { return ErrDuplicateRegistration }
