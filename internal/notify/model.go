package notify

import (
	"context"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
)

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusSkipped   DeliveryStatus = "skipped"
)

// Delivery is a side-channel record of what happened to an event.
type Delivery struct {
	ID        int64          `json:"id"`
	EventKind tag.EventKind  `json:"event_kind"`
	Code      string         `json:"code"`
	Deliverer string         `json:"deliverer"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListOptions filters delivery history.
type ListOptions struct {
	Code   string
	Status *DeliveryStatus
	Limit  int
	Offset int
}

// DeliveryLog persists delivery outcomes.
type DeliveryLog interface {
	Record(ctx context.Context, d *Delivery) error
	List(ctx context.Context, opts ListOptions) ([]Delivery, error)
}

// Deliverer performs the actual outbound notification.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, evt tag.Event) error
}

// OTPPayload is the payload of contact_otp events.
type OTPPayload struct {
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	OTP         string    `json:"otp"`
	ExpiresAt   time.Time `json:"expires_at"`
}
