// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that end up
// in storage keys and broadcast payloads. Validating at the boundary keeps
// malformed or hostile ids out of BadgerDB key space and websocket traffic.
package validation

import (
	"fmt"
	"regexp"
)

// cellIDPattern matches valid diagram, node, and edge identifiers.
// Allows: letters, digits, then letters/digits/underscore/dot/hyphen.
// Max length: 100 characters (covers UUIDs and editor-generated slugs).
var cellIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,99}$`)

// userIDPattern additionally allows '@' and '+' so emails pass through.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@+\-]{0,254}$`)

// ValidateCellID validates a diagram, node, or edge identifier.
//
// Valid identifiers:
//   - 1-100 characters
//   - start with a letter or digit
//   - contain only letters, digits, underscores, dots, hyphens
//
// Returns an error naming the offending field if the id is invalid.
func ValidateCellID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s exceeds maximum length of 100 characters", field)
	}
	if !cellIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters: %q", field, id)
	}
	return nil
}

// ValidateUserID validates a user identifier. Same character rules as cell
// ids but allows '@' so emails pass through unchanged.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("user id exceeds maximum length of 255 characters")
	}
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("user id contains invalid characters: %q", id)
	}
	return nil
}
