package tag

import "time"

// Kind identifies what a tag is attached to.
type Kind string

const (
	KindItem Kind = "item"
	KindPet  Kind = "pet"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindItem || k == KindPet
}

// Status represents the operational status of a tag
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusFound     Status = "found"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusFound:
		return true
	}
	return false
}

// MaxScanHistory bounds the scan ledger kept on each record.
const MaxScanHistory = 50

// Location is an optional point or free-text place description.
type Location struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Label     string  `json:"label,omitempty"`
}

// Contact holds the owner's reachable details.
type Contact struct {
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Message  string    `json:"message,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Settings are per-tag feature flags.
type Settings struct {
	InstantAlerts   bool `json:"instant_alerts"`
	LocationSharing bool `json:"location_sharing"`
	ShowContact     bool `json:"show_contact"`
}

// DefaultSettings returns the flags assigned to newly issued tags.
func DefaultSettings() Settings {
	return Settings{
		InstantAlerts:   true,
		LocationSharing: false,
		ShowContact:     true,
	}
}

// ScanEvent is one entry of the scan ledger.
type ScanEvent struct {
	ScannedAt time.Time `json:"scanned_at"`
	Source    string    `json:"source"`
	Agent     string    `json:"agent"`
	Location  *Location `json:"location,omitempty"`
}

// FoundInfo is what a finder reported.
type FoundInfo struct {
	FinderName  string    `json:"finder_name,omitempty"`
	FinderPhone string    `json:"finder_phone,omitempty"`
	FinderEmail string    `json:"finder_email,omitempty"`
	Location    *Location `json:"location,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ReportedAt  time.Time `json:"reported_at"`
}

// Record links a code to its owner, contact details and lifecycle state
type Record struct {
	Code          string         `json:"code"`
	Kind          Kind           `json:"kind"`
	Owner         string         `json:"owner,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	Contact       Contact        `json:"contact"`
	Settings      Settings       `json:"settings"`
	Status        Status         `json:"status"`
	IsActivated   bool           `json:"is_activated"`
	ActivatedAt   *time.Time     `json:"activated_at,omitempty"`
	ScanCount     int64          `json:"scan_count"`
	LastScannedAt *time.Time     `json:"last_scanned_at,omitempty"`
	ScanHistory   []ScanEvent    `json:"scan_history,omitempty"`
	FoundInfo     *FoundInfo     `json:"found_info,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PublicView is the projection served to unauthenticated lookups
type PublicView struct {
	Code        string         `json:"code"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status"`
	IsActivated bool           `json:"is_activated"`
	Details     map[string]any `json:"details,omitempty"`
	Contact     *Contact       `json:"contact,omitempty"`
	Message     string         `json:"message,omitempty"`
	Settings    Settings       `json:"settings"`
	Found       bool           `json:"found"`
}

// NewPublicView projects a record down to what a finder may see.
// Contact details are only exposed when the owner opted in.
func NewPublicView(rec *Record) *PublicView {
	view := &PublicView{
		Code:        rec.Code,
		Kind:        rec.Kind,
		Status:      rec.Status,
		IsActivated: rec.IsActivated,
		Details:     cloneDetails(rec.Details),
		Message:     rec.Contact.Message,
		Settings:    rec.Settings,
		Found:       rec.Status == StatusFound,
	}
	if rec.Settings.ShowContact {
		contact := rec.Contact
		contact.Location = nil
		if rec.Settings.LocationSharing {
			contact.Location = rec.Contact.Location.clone()
		}
		view.Contact = &contact
	}
	return view
}

// Summary is a lightweight listing entry
type Summary struct {
	Code          string     `json:"code"`
	Kind          Kind       `json:"kind"`
	Owner         string     `json:"owner,omitempty"`
	Status        Status     `json:"status"`
	IsActivated   bool       `json:"is_activated"`
	ScanCount     int64      `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EventKind names an event emitted to the notification side channel.
type EventKind string

const (
	EventScanned    EventKind = "scanned"
	EventFound      EventKind = "found"
	EventContactOTP EventKind = "contact_otp"
)

// Event is handed to the EventPublisher after a lifecycle change.
type Event struct {
	Kind       EventKind  `json:"kind"`
	Code       string     `json:"code"`
	Record     Record     `json:"record"`
	Scan       *ScanEvent `json:"scan,omitempty"`
	Finder     *FoundInfo `json:"finder,omitempty"`
	Payload    any        `json:"payload,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
