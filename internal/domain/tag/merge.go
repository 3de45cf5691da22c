package tag

import "time"

// ContactPatch carries optional contact changes. Nil fields are left untouched.
type ContactPatch struct {
	Name          *string   `json:"name,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Message       *string   `json:"message,omitempty"`
	Location      *Location `json:"location,omitempty"`
	ClearLocation bool      `json:"clear_location,omitempty"`
}

// SettingsPatch carries optional flag changes.
type SettingsPatch struct {
	InstantAlerts   *bool `json:"instant_alerts,omitempty"`
	LocationSharing *bool `json:"location_sharing,omitempty"`
	ShowContact     *bool `json:"show_contact,omitempty"`
}

// DetailsPatch is a partial update of the owner-editable parts of a record.
// Keys in Details with a nil value are removed.
type DetailsPatch struct {
	Details  map[string]any `json:"details,omitempty"`
	Contact  *ContactPatch  `json:"contact,omitempty"`
	Settings *SettingsPatch `json:"settings,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p DetailsPatch) Empty() bool {
	return len(p.Details) == 0 && p.Contact == nil && p.Settings == nil
}

// Apply returns c with the patch merged in.
func (c Contact) Apply(p *ContactPatch) Contact {
	if p == nil {
		return c
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Message != nil {
		c.Message = *p.Message
	}
	if p.ClearLocation {
		c.Location = nil
	} else if p.Location != nil {
		c.Location = p.Location.clone()
	}
	return c
}

// Apply returns s with the patch merged in.
func (s Settings) Apply(p *SettingsPatch) Settings {
	if p == nil {
		return s
	}
	if p.InstantAlerts != nil {
		s.InstantAlerts = *p.InstantAlerts
	}
	if p.LocationSharing != nil {
		s.LocationSharing = *p.LocationSharing
	}
	if p.ShowContact != nil {
		s.ShowContact = *p.ShowContact
	}
	return s
}

// MergeDetails merges patch into a copy of base.
func MergeDetails(base, patch map[string]any) map[string]any {
	out := cloneDetails(base)
	if len(patch) == 0 {
		return out
	}
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Activation binds a record to an owner.
type Activation struct {
	Owner string
	At    time.Time
}

// Mutation is a field-level update applied atomically by a RecordStore.
// Unset fields are left untouched. Details, Contact and Settings are patches
// merged into the stored values inside the store's atomic section, so
// concurrent partial updates never overwrite each other. Precondition, when
// set, runs against the current record in the same section; an error aborts
// the update and is returned unchanged.
type Mutation struct {
	Precondition func(current *Record) error

	Details    map[string]any
	Contact    *ContactPatch
	Settings   *SettingsPatch
	Status     *Status
	FoundInfo  *FoundInfo
	Activation *Activation
	Deactivate bool
	Scan       *ScanEvent
	UpdatedAt  time.Time
}

// Apply mutates r in place. Stores that hold records in memory use it directly;
// SQL stores use it for everything except the scan ledger.
func (r *Record) Apply(m Mutation) {
	if len(m.Details) > 0 {
		r.Details = MergeDetails(r.Details, m.Details)
	}
	r.Contact = r.Contact.Apply(m.Contact)
	r.Settings = r.Settings.Apply(m.Settings)
	if m.Status != nil {
		r.Status = *m.Status
	}
	if m.FoundInfo != nil {
		r.FoundInfo = m.FoundInfo.clone()
	}
	if m.Deactivate {
		r.Owner = ""
		r.IsActivated = false
		r.ActivatedAt = nil
	}
	if m.Activation != nil {
		at := m.Activation.At
		r.Owner = m.Activation.Owner
		r.IsActivated = true
		r.ActivatedAt = &at
	}
	if m.Scan != nil {
		at := m.Scan.ScannedAt
		r.ScanCount++
		r.LastScannedAt = &at
		r.ScanHistory = AppendScan(r.ScanHistory, m.Scan.clone())
	}
	if !m.UpdatedAt.IsZero() {
		r.UpdatedAt = m.UpdatedAt
	}
}

// AppendScan appends evt and drops the oldest entries beyond MaxScanHistory.
func AppendScan(history []ScanEvent, evt ScanEvent) []ScanEvent {
	history = append(history, evt)
	if over := len(history) - MaxScanHistory; over > 0 {
		trimmed := make([]ScanEvent, MaxScanHistory)
		copy(trimmed, history[over:])
		history = trimmed
	}
	return history
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Details = cloneDetails(r.Details)
	out.Contact.Location = r.Contact.Location.clone()
	if r.ActivatedAt != nil {
		at := *r.ActivatedAt
		out.ActivatedAt = &at
	}
	if r.LastScannedAt != nil {
		at := *r.LastScannedAt
		out.LastScannedAt = &at
	}
	if r.ScanHistory != nil {
		out.ScanHistory = make([]ScanEvent, len(r.ScanHistory))
		for i, evt := range r.ScanHistory {
			out.ScanHistory[i] = evt.clone()
		}
	}
	out.FoundInfo = r.FoundInfo.clone()
	return &out
}

func (l *Location) clone() *Location {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}

func (e ScanEvent) clone() ScanEvent {
	e.Location = e.Location.clone()
	return e
}

func (f *FoundInfo) clone() *FoundInfo {
	if f == nil {
		return nil
	}
	out := *f
	out.Location = f.Location.clone()
	return &out
}

// Summarize returns the listing view of r.
func (r *Record) Summarize() Summary {
	return Summary{
		Code:          r.Code,
		Kind:          r.Kind,
		Owner:         r.Owner,
		Status:        r.Status,
		IsActivated:   r.IsActivated,
		ScanCount:     r.ScanCount,
		LastScannedAt: r.LastScannedAt,
		CreatedAt:     r.CreatedAt,
	}
}
