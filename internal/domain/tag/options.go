package tag

// ListOptions provides filtering options for listing tags.
type ListOptions struct {
	Owner     string
	Kinds     []Kind
	Statuses  []Status
	Activated *bool
	Limit     int
	Offset    int
}

// ScanMeta describes the request that produced a scan.
type ScanMeta struct {
	Source   string
	Agent    string
	Location *Location
}

// FinderReport is what a finder submits when reporting a tag found.
type FinderReport struct {
	Name     string
	Phone    string
	Email    string
	Location *Location
	Notes    string
}
