// Package notify turns ride status changes into human-readable announcements
// for riders and drivers and hands them to delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Message is one announcement addressed to one party.
type Message struct {
	Recipient string            `json:"recipient"`
	Role      Role              `json:"role"`
	RideID    string            `json:"ride_id"`
	Status    models.RideStatus `json:"status"`
	Text      string            `json:"text"`
}

// Sender delivers a message over some channel. Implementations must be bounded in time.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Directory resolves display names for the parties of a ride.
type Directory interface {
	RiderName(id string) string
	DriverName(id string) string
}

// RiderNotifier tells the rider about every status change of their ride.
type RiderNotifier struct {
	Names  Directory
	Sender Sender
}

func (n *RiderNotifier) Name() string { return "rider_notifier" }

func (n *RiderNotifier) OnRideStatusChanged(ctx context.Context, snap ride.Snapshot, s models.RideStatus) error {
	return n.Sender.Send(ctx, Message{
		Recipient: snap.RiderID,
		Role:      RoleRider,
		RideID:    snap.ID,
		Status:    s,
		Text:      statusText("Rider", n.Names.RiderName(snap.RiderID), snap.ID, s),
	})
}

// NotifyPayment sends the payment outcome for a completed ride.
func (n *RiderNotifier) NotifyPayment(ctx context.Context, snap ride.Snapshot, amount float64, paid bool) error {
	name := n.Names.RiderName(snap.RiderID)
	text := fmt.Sprintf("[Notification to Rider %s]: Payment of %.2f successful.", name, amount)
	if !paid {
		text = fmt.Sprintf("[Notification to Rider %s]: Payment of %.2f for Ride %s failed.", name, amount, snap.ID)
	}
	return n.Sender.Send(ctx, Message{
		Recipient: snap.RiderID,
		Role:      RoleRider,
		RideID:    snap.ID,
		Status:    snap.Status,
		Text:      text,
	})
}

// DriverNotifier tells the assigned driver; it stays quiet until one is assigned.
type DriverNotifier struct {
	Names  Directory
	Sender Sender
}

func (n *DriverNotifier) Name() string { return "driver_notifier" }

func (n *DriverNotifier) OnRideStatusChanged(ctx context.Context, snap ride.Snapshot, s models.RideStatus) error {
	if snap.DriverID == "" {
		return nil
	}
	return n.Sender.Send(ctx, Message{
		Recipient: snap.DriverID,
		Role:      RoleDriver,
		RideID:    snap.ID,
		Status:    s,
		Text:      statusText("Driver", n.Names.DriverName(snap.DriverID), snap.ID, s),
	})
}

func statusText(party, name, rideID string, s models.RideStatus) string {
	return fmt.Sprintf("[Notification to %s %s]: Ride %s is now %s", party, name, rideID, s)
}

// LogSender writes announcements to the structured log.
type LogSender struct {
	Logger *zap.Logger
}

func (l LogSender) Send(_ context.Context, m Message) error {
	l.Logger.Info(m.Text,
		zap.String("recipient", m.Recipient),
		zap.String("role", string(m.Role)),
		zap.String("ride_id", m.RideID),
		zap.Stringer("status", m.Status),
	)
	return nil
}

// MultiSender delivers to every sender; one failing channel does not stop the rest.
type MultiSender []Sender

func (ms MultiSender) Send(ctx context.Context, m Message) error {
	var errs []error
	for _, s := range ms {
		if err := s.Send(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
