// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package events

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Frame is one websocket text message in either direction:
//
//	{"event": "order:subscribe", "data": "ord-42"}
type Frame struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an outbound frame whose payload has not been encoded yet.
type Envelope struct {
	Event Name        `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrMalformedFrame is returned for input that is not a frame.
var ErrMalformedFrame = errors.New("malformed frame")

// Encode marshals an event and its payload into a frame.
func Encode(event Name, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}

// DecodeFrame parses an inbound frame. The event name must be present.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return f, nil
}

// DecodePayload strictly unmarshals frame data into v. Unknown fields and
// type mismatches are errors.
func DecodePayload(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return nil
}

// DecodeOrderRef accepts either "ord-42" or {"orderId": "ord-42"}.
func DecodeOrderRef(data json.RawMessage) (OrderRef, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return OrderRef{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		return OrderRef{OrderID: id}, nil
	}
	var ref OrderRef
	if err := DecodePayload(data, &ref); err != nil {
		return OrderRef{}, err
	}
	return ref, nil
}
