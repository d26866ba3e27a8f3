// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

// Package topic names the broadcast groups realtime sessions join.
//
// Four families exist and their string forms are part of the wire protocol:
//
//	order:{orderId}    sessions tracking one order
//	user:{userId}      every session of one user (joined on connect)
//	role:{role}        every session with one role (joined on connect)
//	admin:all-orders   the admin-wide order feed
//
// A Topic can only be built through the constructors or Parse, so a
// malformed name never reaches the router.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Topic is a broadcast group name.
type Topic string

// Family identifies which kind of group a Topic names.
type Family string

const (
	FamilyOrder Family = "order"
	FamilyUser  Family = "user"
	FamilyRole  Family = "role"
	FamilyAdmin Family = "admin"
)

// AdminAllOrders is the admin-wide order feed.
const AdminAllOrders Topic = "admin:all-orders"

// ErrInvalidTopic is returned by Parse for names outside the known families.
var ErrInvalidTopic = errors.New("invalid topic")

// ForOrder returns order:{orderID}.
func ForOrder(orderID string) (Topic, error) {
	return build(FamilyOrder, orderID)
}

// ForUser returns user:{userID}.
func ForUser(userID string) (Topic, error) {
	return build(FamilyUser, userID)
}

// ForRole returns role:{role}.
func ForRole(role string) (Topic, error) {
	return build(FamilyRole, role)
}

// MustForOrder is ForOrder for ids already known to be valid.
func MustForOrder(orderID string) Topic {
	t, err := ForOrder(orderID)
	if err != nil {
		panic(err)
	}
	return t
}

func build(f Family, id string) (Topic, error) {
	if err := checkID(id); err != nil {
		return "", fmt.Errorf("%w: %s id: %w", ErrInvalidTopic, f, err)
	}
	return Topic(string(f) + ":" + id), nil
}

// checkID rejects empty ids and ids carrying characters that would make
// the topic ambiguous on the wire or as a relay subject token.
func checkID(id string) error {
	if id == "" {
		return errors.New("empty")
	}
	if strings.TrimSpace(id) != id {
		return errors.New("surrounding whitespace")
	}
	if strings.ContainsAny(id, ": \t\r\n") {
		return errors.New("contains separator or whitespace")
	}
	return nil
}

// Parse validates a topic name.
func Parse(s string) (Topic, error) {
	if Topic(s) == AdminAllOrders {
		return AdminAllOrders, nil
	}
	family, id, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
	switch Family(family) {
	case FamilyOrder, FamilyUser, FamilyRole:
		return build(Family(family), id)
	default:
		return "", fmt.Errorf("%w: unknown family %q", ErrInvalidTopic, family)
	}
}

// Family returns the family of t.
func (t Topic) Family() Family {
	family, _, _ := strings.Cut(string(t), ":")
	return Family(family)
}

// ID returns the id part of t, or "" for AdminAllOrders.
func (t Topic) ID() string {
	if t == AdminAllOrders {
		return ""
	}
	_, id, _ := strings.Cut(string(t), ":")
	return id
}

func (t Topic) String() string {
	return string(t)
}
