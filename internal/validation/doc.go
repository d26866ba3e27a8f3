// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide; it caches struct
// metadata and reports field names by their json tag. Two custom tags are
// registered:
//
//   - topic_id: the value can be used as the id in a topic name
//   - finite: floats must not be NaN or infinite
//
// Inbound realtime commands and collaborator API bodies are validated here
// after decoding:
//
//	var req events.LocationUpdate
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return invalidData(verr.Error())
//	}
package validation
