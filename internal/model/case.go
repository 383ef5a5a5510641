// Package model defines data structures for the railway support bot.
package model

import "strconv"

// CaseType is one of the closed set of request kinds a conversation can open.
type CaseType string

const (
	CaseComplaint    CaseType = "complaint"
	CaseLostAndFound CaseType = "lost_and_found"
	CaseGratitude    CaseType = "gratitude"
)

// CaseOrder is the fixed scan order used when choosing the next question.
var CaseOrder = []CaseType{CaseLostAndFound, CaseComplaint, CaseGratitude}

// Valid reports whether t is one of the known case types.
func (t CaseType) Valid() bool {
	switch t {
	case CaseComplaint, CaseLostAndFound, CaseGratitude:
		return true
	}
	return false
}

// Title returns the human readable case title used in replies.
func (t CaseType) Title() string {
	switch t {
	case CaseComplaint:
		return "Complaint"
	case CaseLostAndFound:
		return "Lost and found"
	case CaseGratitude:
		return "Gratitude"
	}
	return string(t)
}

// CaseStatus is the lifecycle state of a case.
type CaseStatus string

const (
	StatusCollecting CaseStatus = "collecting"
	StatusDone       CaseStatus = "done"
)

// Slot names a single field required to complete a case.
type Slot string

const (
	SlotTrain         Slot = "train"
	SlotCarNumber     Slot = "carNumber"
	SlotComplaintText Slot = "complaintText"
	SlotPlace         Slot = "place"
	SlotItem          Slot = "item"
	SlotWhen          Slot = "when"
	SlotItemDetails   Slot = "itemDetails"
	SlotStaffName     Slot = "staffName"
	SlotGratitudeText Slot = "gratitudeText"
)

// CaseSlots holds every slot a case can carry. Which fields apply is
// decided by the case schema for the case type.
//
// A filled slot is never overwritten. The one exception is a gratitude
// placeholder such as "thanks", which the dialog engine replaces with the
// first substantive gratitude text; SetText itself never replaces a value.
type CaseSlots struct {
	Train         string `json:"train,omitempty"`
	CarNumber     int    `json:"carNumber,omitempty"`
	ComplaintText string `json:"complaintText,omitempty"`
	Place         string `json:"place,omitempty"`
	Item          string `json:"item,omitempty"`
	When          string `json:"when,omitempty"`
	ItemDetails   string `json:"itemDetails,omitempty"`
	StaffName     string `json:"staffName,omitempty"`
	GratitudeText string `json:"gratitudeText,omitempty"`
}

// Get returns the slot value as text, empty when unset.
func (s *CaseSlots) Get(slot Slot) string {
	switch slot {
	case SlotTrain:
		return s.Train
	case SlotCarNumber:
		if s.CarNumber > 0 {
			return strconv.Itoa(s.CarNumber)
		}
		return ""
	case SlotComplaintText:
		return s.ComplaintText
	case SlotPlace:
		return s.Place
	case SlotItem:
		return s.Item
	case SlotWhen:
		return s.When
	case SlotItemDetails:
		return s.ItemDetails
	case SlotStaffName:
		return s.StaffName
	case SlotGratitudeText:
		return s.GratitudeText
	}
	return ""
}

// SetText fills a text slot if it is still empty and reports whether it
// changed. Car number is numeric and is filled through SetCar.
func (s *CaseSlots) SetText(slot Slot, value string) bool {
	if value == "" {
		return false
	}
	var field *string
	switch slot {
	case SlotTrain:
		field = &s.Train
	case SlotComplaintText:
		field = &s.ComplaintText
	case SlotPlace:
		field = &s.Place
	case SlotItem:
		field = &s.Item
	case SlotWhen:
		field = &s.When
	case SlotItemDetails:
		field = &s.ItemDetails
	case SlotStaffName:
		field = &s.StaffName
	case SlotGratitudeText:
		field = &s.GratitudeText
	default:
		return false
	}
	if *field != "" {
		return false
	}
	*field = value
	return true
}

// SetCar fills the car number if unset.
func (s *CaseSlots) SetCar(car int) bool {
	if car <= 0 || s.CarNumber > 0 {
		return false
	}
	s.CarNumber = car
	return true
}

// CaseState is one in-progress or finished request inside a session.
type CaseState struct {
	Type     CaseType   `json:"type"`
	Status   CaseStatus `json:"status"`
	TicketID string     `json:"ticketId,omitempty"`
	Slots    CaseSlots  `json:"slots"`
}

// NewCase returns an empty collecting case.
func NewCase(t CaseType) *CaseState {
	return &CaseState{Type: t, Status: StatusCollecting}
}

// Done reports whether a ticket has been created for the case.
func (c *CaseState) Done() bool {
	return c.TicketID != ""
}

// MarkDone records the ticket id. The id is immutable once set.
func (c *CaseState) MarkDone(ticketID string) {
	if c.TicketID != "" || ticketID == "" {
		return
	}
	c.TicketID = ticketID
	c.Status = StatusDone
}

// Cases is the fixed mapping from case type to at most one case.
type Cases struct {
	Complaint    *CaseState `json:"complaint,omitempty"`
	LostAndFound *CaseState `json:"lost_and_found,omitempty"`
	Gratitude    *CaseState `json:"gratitude,omitempty"`
}

// Get returns the case for t, or nil.
func (c *Cases) Get(t CaseType) *CaseState {
	switch t {
	case CaseComplaint:
		return c.Complaint
	case CaseLostAndFound:
		return c.LostAndFound
	case CaseGratitude:
		return c.Gratitude
	}
	return nil
}

// Open creates a case of type t unless one already exists. It reports
// whether a new case was created.
func (c *Cases) Open(t CaseType) bool {
	if !t.Valid() || c.Get(t) != nil {
		return false
	}
	switch t {
	case CaseComplaint:
		c.Complaint = NewCase(t)
	case CaseLostAndFound:
		c.LostAndFound = NewCase(t)
	case CaseGratitude:
		c.Gratitude = NewCase(t)
	}
	return true
}

// Active returns the present cases in CaseOrder.
func (c *Cases) Active() []*CaseState {
	var out []*CaseState
	for _, t := range CaseOrder {
		if cs := c.Get(t); cs != nil {
			out = append(out, cs)
		}
	}
	return out
}

// Types returns the present case types in CaseOrder.
func (c *Cases) Types() []CaseType {
	var out []CaseType
	for _, cs := range c.Active() {
		out = append(out, cs.Type)
	}
	return out
}

// Len returns the number of present cases.
func (c *Cases) Len() int {
	return len(c.Active())
}
