package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Slot is one bookable time unit inside a schedule's serialized slot list.
// ReservedUntil is kept as the stored RFC 3339 text so that a malformed value
// can be read back and treated as no reservation.
type Slot struct {
	ID            string `json:"id"`
	Time          string `json:"time"`
	Active        bool   `json:"active"`
	ReservedUntil string `json:"reservedUntil,omitempty"`
	ReservedBy    *int64 `json:"reservedBy,omitempty"`
}

// UnmarshalJSON defaults a missing active flag to true.
func (s *Slot) UnmarshalJSON(b []byte) error {
	type plain Slot
	p := plain{Active: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = Slot(p)
	return nil
}

// reservation returns the hold expiry. ok is false when no hold is recorded
// or the stored timestamp does not parse.
func (s Slot) reservation() (until time.Time, ok bool) {
	if s.ReservedUntil == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.ReservedUntil)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HeldAt reports whether an unexpired reservation exists at now.
func (s Slot) HeldAt(now time.Time) bool {
	until, ok := s.reservation()
	return ok && until.After(now)
}

// BookableAt reports whether the slot is active and not held at now.
func (s Slot) BookableAt(now time.Time) bool {
	return s.Active && !s.HeldAt(now)
}

func (s Slot) hasReservation() bool {
	return s.ReservedUntil != "" || s.ReservedBy != nil
}

func (s Slot) heldBy(patientID int64) bool {
	return s.ReservedBy != nil && *s.ReservedBy == patientID
}

// checkClaim applies the availability rules shared by Book and Reserve. A live
// hold only blocks patients other than its holder.
func (s Slot) checkClaim(patientID int64, now time.Time) error {
	if !s.Active {
		return ErrSlotUnavailable
	}
	if s.HeldAt(now) && !s.heldBy(patientID) {
		return ErrSlotReserved
	}
	return nil
}

func (s *Slot) clearReservation() {
	s.ReservedUntil = ""
	s.ReservedBy = nil
}

func (s *Slot) markBooked() {
	s.Active = false
	s.clearReservation()
}

func (s *Slot) markReserved(patientID int64, until time.Time) {
	s.ReservedUntil = until.UTC().Format(time.RFC3339Nano)
	by := patientID
	s.ReservedBy = &by
}

func (s *Slot) release() {
	s.Active = true
	s.clearReservation()
}

// SlotList is the ordered slot sequence persisted on a schedule.
type SlotList []Slot

// DecodeSlotList parses the stored JSON form. An empty column decodes to an
// empty list.
func DecodeSlotList(data []byte) (SlotList, error) {
	if len(data) == 0 || string(data) == "null" {
		return SlotList{}, nil
	}
	var l SlotList
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if l == nil {
		l = SlotList{}
	}
	return l, nil
}

// Encode returns the stored JSON form; a nil list encodes as [].
func (l SlotList) Encode() ([]byte, error) {
	if l == nil {
		l = SlotList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}
	return data, nil
}

// Find returns the index of the first slot with the given id, or -1.
func (l SlotList) Find(id string) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// Bookable returns the slots that can be booked at now, in order.
func (l SlotList) Bookable(now time.Time) SlotList {
	out := make(SlotList, 0, len(l))
	for _, s := range l {
		if s.BookableAt(now) {
			out = append(out, s)
		}
	}
	return out
}

// HasReservations reports whether any slot carries reservation fields.
func (l SlotList) HasReservations() bool {
	for _, s := range l {
		if s.hasReservation() {
			return true
		}
	}
	return false
}

// clearExpired drops reservations that are expired or unreadable at now and
// returns how many were cleared.
func (l SlotList) clearExpired(now time.Time) int {
	cleared := 0
	for i := range l {
		if l[i].hasReservation() && !l[i].HeldAt(now) {
			l[i].clearReservation()
			cleared++
		}
	}
	return cleared
}

// Clone returns a deep copy.
func (l SlotList) Clone() SlotList {
	if l == nil {
		return nil
	}
	out := make(SlotList, len(l))
	for i, s := range l {
		out[i] = s
		if s.ReservedBy != nil {
			by := *s.ReservedBy
			out[i].ReservedBy = &by
		}
	}
	return out
}

// Validate checks a slot list supplied by a doctor: ids must be present and
// unique within the schedule.
func (l SlotList) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for i, s := range l {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return fmt.Errorf("%w: slot %d has no id", ErrValidation, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate slot id %q", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
