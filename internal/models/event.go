package models

// Section identifies which whiteboard section produced an event.
type Section string

const (
	SectionSupervision  Section = "Supervision"
	SectionFlying       Section = "FlyingEvents"
	SectionGround       Section = "GroundEvents"
	SectionNotAvailable Section = "NotAvailable"
	SectionAcademics    Section = "Academics"
)

// Visibility scopes who an event applies to beyond the named person.
type Visibility string

const (
	VisibilityPersonal  Visibility = "personal"
	VisibilityAll       Visibility = "all"
	VisibilityStaffOnly Visibility = "staffOnly"
)

// EventRecord is one schedule entry for one person on one day. Time, when
// present, is normalized 24-hour HH:MM. Records are immutable once produced;
// every materializer run regenerates them wholesale.
type EventRecord struct {
	Date        string       `json:"date"`
	Time        string       `json:"time,omitempty"`
	Section     Section      `json:"section"`
	Description string       `json:"description"`
	Details     EventDetails `json:"details"`
	Visibility  Visibility   `json:"visibility"`
}

// EventDetails is a tagged union keyed by Section: exactly one pointer is set
// per record. A new section means a new field here, which keeps consumers
// exhaustive at compile time instead of digging through untyped maps.
type EventDetails struct {
	Supervision  *SupervisionDetails  `json:"supervision,omitempty"`
	Flying       *FlyingDetails       `json:"flying,omitempty"`
	Ground       *GroundDetails       `json:"ground,omitempty"`
	NotAvailable *NotAvailableDetails `json:"notAvailable,omitempty"`
	Academics    *AcademicsDetails    `json:"academics,omitempty"`
}

// SupervisionDetails describes a duty slot. AUTH duties carry no times.
type SupervisionDetails struct {
	Duty  string `json:"duty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// FlyingDetails mirrors the flying-events column schema.
type FlyingDetails struct {
	Aircraft           string   `json:"aircraft"`
	BriefStart         string   `json:"briefStart"`
	ETD                string   `json:"etd"`
	ETA                string   `json:"eta"`
	DebriefEnd         string   `json:"debriefEnd"`
	Crew               []string `json:"crew"`
	Notes              string   `json:"notes,omitempty"`
	Effective          bool     `json:"effective"`
	Cancelled          bool     `json:"cancelled"`
	PartiallyEffective bool     `json:"partiallyEffective"`
}

// GroundDetails describes a ground event block.
type GroundDetails struct {
	Start  string   `json:"start"`
	End    string   `json:"end"`
	People []string `json:"people"`
}

// NotAvailableDetails describes an unavailability block.
type NotAvailableDetails struct {
	Reason string `json:"reason"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// AcademicsDetails is a synthetic fixed classroom block derived from the
// person's category, not from sheet cells.
type AcademicsDetails struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
