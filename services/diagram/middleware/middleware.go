// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the command pipeline middleware: validation,
// logging, serialization (command journal), metrics, and history recording.
//
// Middleware run in fixed priority order, lowest first:
//
//	validation (10) -> logging (20) -> serialization (30) -> metrics (40) -> history (50)
//
// The history middleware sits innermost so its before-snapshot is captured
// as close to the handler as possible and its finality check runs first
// when the call stack unwinds.
package middleware

// Fixed pipeline priorities. Lower runs first (outermost).
const (
	PriorityValidation    = 10
	PriorityLogging       = 20
	PrioritySerialization = 30
	PriorityMetrics       = 40
	PriorityHistory       = 50
)
