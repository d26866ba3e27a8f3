// Ordertrail - Real-time Order Tracking Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ordertrail

package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ordertrail/internal/events"
	"github.com/tomtom215/ordertrail/internal/logging"
	"github.com/tomtom215/ordertrail/internal/metrics"
	"github.com/tomtom215/ordertrail/internal/orderdir"
	"github.com/tomtom215/ordertrail/internal/topic"
	"github.com/tomtom215/ordertrail/internal/validation"
)

// CommandError is a non-terminal protocol error reported to the offending
// session as an error event.
type CommandError struct {
	Code    events.ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func forbidden(format string, args ...interface{}) *CommandError {
	return &CommandError{Code: events.CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func invalidData(format string, args ...interface{}) *CommandError {
	return &CommandError{Code: events.CodeInvalidData, Message: fmt.Sprintf(format, args...)}
}

// Authorizer decides whether a role may run a command.
type Authorizer interface {
	Allowed(role, action string) (bool, error)
}

// ProtocolConfig wires the protocol's collaborators.
type ProtocolConfig struct {
	Authorizer Authorizer

	// Directory answers ownership and prior-status lookups. Nil means
	// every session may track every order.
	Directory orderdir.Directory

	// LookupTimeout bounds each directory call.
	LookupTimeout time.Duration

	Audit *logging.AuditLogger
}

// Protocol decodes inbound frames and runs the matching command.
type Protocol struct {
	hub      *Hub
	emitter  *Emitter
	authz    Authorizer
	dir      orderdir.Directory
	timeout  time.Duration
	audit    *logging.AuditLogger
	commands map[events.Name]commandFunc
}

type commandFunc func(ctx context.Context, s *Session, data json.RawMessage) error

// NewProtocol creates the command dispatcher.
func NewProtocol(hub *Hub, emitter *Emitter, cfg ProtocolConfig) *Protocol {
	if cfg.Directory == nil {
		cfg.Directory = orderdir.Open{}
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if cfg.Audit == nil {
		cfg.Audit = logging.NewAuditLogger()
	}

	p := &Protocol{
		hub:     hub,
		emitter: emitter,
		authz:   cfg.Authorizer,
		dir:     cfg.Directory,
		timeout: cfg.LookupTimeout,
		audit:   cfg.Audit,
	}
	p.commands = map[events.Name]commandFunc{
		events.CmdOrderSubscribe:         p.orderSubscribe,
		events.CmdOrderUnsubscribe:       p.orderUnsubscribe,
		events.CmdAdminOrdersSubscribe:   p.adminOrdersSubscribe,
		events.CmdAdminOrdersUnsubscribe: p.adminOrdersUnsubscribe,
		events.CmdDriverLocationUpdate:   p.driverLocationUpdate,
		events.CmdDriverStatusUpdate:     p.driverStatusUpdate,
		events.CmdPing:                   p.ping,
	}
	return p
}

// Dispatch handles one inbound frame from s. Every failure is reported to
// s as an error event; none of them end the session.
func (p *Protocol) Dispatch(ctx context.Context, s *Session, raw []byte) {
	frame, err := events.DecodeFrame(raw)
	if err != nil {
		p.reject(ctx, s, "", invalidData("malformed frame"))
		return
	}
	metrics.CommandsReceived.WithLabelValues(metricCommand(frame.Event)).Inc()

	run, ok := p.commands[frame.Event]
	if !ok {
		p.reject(ctx, s, frame.Event, invalidData("unknown command %q", frame.Event))
		return
	}

	if cmdErr := p.authorize(s, frame.Event); cmdErr != nil {
		p.reject(ctx, s, frame.Event, cmdErr)
		return
	}

	if err := p.run(ctx, s, frame, run); err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			logging.Ctx(ctx).Error().Err(err).Str("command", string(frame.Event)).Msg("command failed")
			cmdErr = invalidData("command could not be processed")
		}
		p.reject(ctx, s, frame.Event, cmdErr)
	}
}

// run executes a command, converting a panic into INVALID_DATA.
func (p *Protocol) run(ctx context.Context, s *Session, f events.Frame, cmd commandFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("command", string(f.Event)).
				Interface("panic", r).
				Msg("recovered panic in command handler")
			err = invalidData("command could not be processed")
		}
	}()
	return cmd(ctx, s, f.Data)
}

func (p *Protocol) authorize(s *Session, cmd events.Name) *CommandError {
	allowed, err := p.authz.Allowed(string(s.identity.Role), string(cmd))
	if err != nil {
		logging.Error().Err(err).Str("command", string(cmd)).Msg("authorization check failed")
		return forbidden("%s is not permitted", cmd)
	}
	if !allowed {
		p.audit.LogCommandForbidden(s.identity.UserID, string(s.identity.Role), s.id, string(cmd))
		return forbidden("role %s may not use %s", s.identity.Role, cmd)
	}
	return nil
}

func (p *Protocol) reject(ctx context.Context, s *Session, cmd events.Name, e *CommandError) {
	metrics.RecordCommandError(metricCommand(cmd), string(e.Code))
	logging.Ctx(ctx).Debug().
		Str("command", string(cmd)).
		Str("code", string(e.Code)).
		Str("message", e.Message).
		Msg("command rejected")

	if err := p.hub.Send(s, events.Error, events.ErrorPayload{Code: e.Code, Message: e.Message}); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("could not deliver error event")
	}
}

// metricCommand keeps label cardinality bounded for unknown commands.
func metricCommand(cmd events.Name) string {
	switch cmd {
	case events.CmdOrderSubscribe, events.CmdOrderUnsubscribe,
		events.CmdAdminOrdersSubscribe, events.CmdAdminOrdersUnsubscribe,
		events.CmdDriverLocationUpdate, events.CmdDriverStatusUpdate, events.CmdPing:
		return string(cmd)
	case "":
		return "malformed"
	default:
		return "unknown"
	}
}

func decodeOrderTopic(data json.RawMessage) (events.OrderRef, topic.Topic, error) {
	ref, err := events.DecodeOrderRef(data)
	if err != nil {
		return ref, "", invalidData("orderId is required")
	}
	if verr := validation.ValidateStruct(&ref); verr != nil {
		return ref, "", invalidData("%s", verr.Error())
	}
	t, err := topic.ForOrder(ref.OrderID)
	if err != nil {
		return ref, "", invalidData("invalid orderId")
	}
	return ref, t, nil
}

func (p *Protocol) orderSubscribe(ctx context.Context, s *Session, data json.RawMessage) error {
	ref, t, err := decodeOrderTopic(data)
	if err != nil {
		return err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	id := s.identity
	ok, err := p.dir.CanTrack(lookupCtx, ref.OrderID, &id)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("order_id", ref.OrderID).Msg("order access check failed")
		return forbidden("unable to verify access to order %s", ref.OrderID)
	}
	if !ok {
		p.audit.LogCommandForbidden(id.UserID, string(id.Role), s.id, string(events.CmdOrderSubscribe))
		return forbidden("not permitted to track order %s", ref.OrderID)
	}
	return p.hub.Join(s, t)
}

func (p *Protocol) orderUnsubscribe(_ context.Context, s *Session, data json.RawMessage) error {
	_, t, err := decodeOrderTopic(data)
	if err != nil {
		return err
	}
	return p.hub.Leave(s, t)
}

func (p *Protocol) adminOrdersSubscribe(_ context.Context, s *Session, _ json.RawMessage) error {
	return p.hub.Join(s, topic.AdminAllOrders)
}

func (p *Protocol) adminOrdersUnsubscribe(_ context.Context, s *Session, _ json.RawMessage) error {
	return p.hub.Leave(s, topic.AdminAllOrders)
}

func (p *Protocol) driverLocationUpdate(_ context.Context, s *Session, data json.RawMessage) error {
	var req events.LocationUpdate
	if err := events.DecodePayload(data, &req); err != nil {
		return invalidData("location update must be {orderId, lat, lng, heading?, speed?} with numeric coordinates")
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return invalidData("%s", verr.Error())
	}

	return p.emitter.LocationUpdated(events.LocationUpdated{
		OrderID:  req.OrderID,
		DriverID: s.identity.UserID,
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Heading:  req.Heading,
		Speed:    req.Speed,
	})
}

func (p *Protocol) driverStatusUpdate(ctx context.Context, s *Session, data json.RawMessage) error {
	var req events.StatusUpdate
	if err := events.DecodePayload(data, &req); err != nil {
		return invalidData("status update must be {orderId, status, note?}")
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return invalidData("%s", verr.Error())
	}
	if !events.IsKnownStatus(req.Status) {
		logging.Ctx(ctx).Debug().Str("status", req.Status).Msg("relaying status outside the documented vocabulary")
	}

	sent, err := p.emitter.StatusChanged(events.StatusUpdated{
		OrderID:        req.OrderID,
		Status:         req.Status,
		PreviousStatus: p.previousStatus(ctx, req.OrderID),
		Note:           req.Note,
	})
	if err != nil {
		return err
	}

	return p.hub.Send(s, events.Notification, events.NotificationPayload{
		Type:    events.NotifySuccess,
		Title:   "Status updated",
		Message: fmt.Sprintf("Order %s is now %s", sent.OrderID, sent.Status),
		OrderID: sent.OrderID,
	})
}

// previousStatus prefers what this process last announced, then the order
// directory, then "unknown".
func (p *Protocol) previousStatus(ctx context.Context, orderID string) string {
	if status, ok := p.emitter.LastStatus(orderID); ok {
		return status
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	status, err := p.dir.CurrentStatus(lookupCtx, orderID)
	if err == nil && status != "" {
		return status
	}
	if err != nil && !errors.Is(err, orderdir.ErrOrderNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("previous status lookup failed")
	}
	return events.StatusUnknown
}

func (p *Protocol) ping(_ context.Context, s *Session, _ json.RawMessage) error {
	return p.hub.Send(s, events.Pong, nil)
}
