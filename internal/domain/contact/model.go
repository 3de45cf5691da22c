package contact

import "time"

// PendingUpdate is an outstanding, OTP-gated contact change for one tag.
// Only a hash of the OTP is kept.
type PendingUpdate struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	OTPHash       string    `json:"-"`
	ProposedEmail string    `json:"proposed_email,omitempty"`
	ProposedPhone string    `json:"proposed_phone,omitempty"`
	Attempts      int       `json:"attempts"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expired reports whether the update can no longer be verified at now.
func (p PendingUpdate) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Channel names how an OTP reaches its recipient.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Challenge is returned to the caller, who is responsible for delivering OTP.
type Challenge struct {
	Code        string    `json:"code"`
	OTP         string    `json:"-"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expires_at"`
}
