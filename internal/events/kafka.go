// Package events publishes ride status changes to Kafka for downstream projections.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
)

const defaultWriteTimeout = 2 * time.Second

// StatusEvent is the wire form of one ride status change.
type StatusEvent struct {
	RideID   string            `json:"ride_id"`
	RiderID  string            `json:"rider_id"`
	DriverID string            `json:"driver_id,omitempty"`
	Status   models.RideStatus `json:"status"`
	Fare     *float64          `json:"fare,omitempty"`
	At       time.Time         `json:"at"`
}

func NewStatusEvent(snap ride.Snapshot, s models.RideStatus) StatusEvent {
	return StatusEvent{
		RideID:   snap.ID,
		RiderID:  snap.RiderID,
		DriverID: snap.DriverID,
		Status:   s,
		Fare:     snap.Fare,
		At:       snap.UpdatedAt,
	}
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return NewPublisher(w, timeout)
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &KafkaPublisher{writer: w, timeout: timeout}
}

func (k *KafkaPublisher) Name() string { return "kafka_publisher" }

// OnRideStatusChanged publishes the change keyed by ride ID so one ride's
// events stay on one partition, in order.
func (k *KafkaPublisher) OnRideStatusChanged(ctx context.Context, snap ride.Snapshot, s models.RideStatus) error {
	b, err := json.Marshal(NewStatusEvent(snap, s))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(snap.ID), Value: b})
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
