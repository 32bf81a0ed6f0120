// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateCellID(t *testing.T) {
	valid := []string{
		"diagram-1",
		"node_1",
		"a",
		"0",
		"f47ac10b-58cc-4372-a567-0e02b2c3d479",
		"node.v2",
		strings.Repeat("a", 100),
	}
	for _, id := range valid {
		if err := ValidateCellID("node_id", id); err != nil {
			t.Errorf("ValidateCellID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"-starts-with-hyphen",
		".starts-with-dot",
		"has space",
		"path/../traversal",
		"semi;colon",
		"null\x00byte",
		strings.Repeat("a", 101),
	}
	for _, id := range invalid {
		if err := ValidateCellID("node_id", id); err == nil {
			t.Errorf("ValidateCellID(%q) = nil, want error", id)
		}
	}
}

func TestValidateCellID_NamesField(t *testing.T) {
	err := ValidateCellID("edge_id", "")
	if err == nil || !strings.Contains(err.Error(), "edge_id") {
		t.Errorf("error %v does not name the field", err)
	}
}

func TestValidateUserID(t *testing.T) {
	valid := []string{
		"user-1",
		"anonymous",
		"alex@example.com",
		"alex+diagrams@example.com",
	}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("ValidateUserID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"has space",
		"@starts-with-at",
		strings.Repeat("a", 256),
	}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("ValidateUserID(%q) = nil, want error", id)
		}
	}
}
