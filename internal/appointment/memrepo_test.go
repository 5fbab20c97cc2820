package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// -- In-memory repository --
//
// memRepo emulates Postgres row locks with one mutex per row, held from the
// locking read until the transaction commits or rolls back. Writes inside a
// transaction are staged and only become visible on commit.

type memRepo struct {
	mu sync.Mutex

	schedules map[int64]*Schedule
	appts     map[int64]*Appointment
	events    []EventLog
	rows      map[string]*sync.Mutex

	nextScheduleID int64
	nextApptID     int64
	nextEventID    int64

	lockLog      [][]int64 // schedule lock order per committed or rolled back tx
	slotWrites   int
	failOnCommit error
	baseTime     time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		schedules: make(map[int64]*Schedule),
		appts:     make(map[int64]*Appointment),
		rows:      make(map[string]*sync.Mutex),
		baseTime:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func cloneSchedule(s *Schedule) *Schedule {
	c := *s
	c.Slots = s.Slots.Clone()
	return &c
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	if a.ScheduleID != nil {
		v := *a.ScheduleID
		c.ScheduleID = &v
	}
	if a.SlotID != nil {
		v := *a.SlotID
		c.SlotID = &v
	}
	return &c
}

func (m *memRepo) rowLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[key]
	if !ok {
		l = &sync.Mutex{}
		m.rows[key] = l
	}
	return l
}

// addSchedule stores a schedule directly, bypassing the service.
func (m *memRepo) addSchedule(doctorID int64, date string, slots ...Slot) *Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScheduleID++
	s := &Schedule{
		ID:           m.nextScheduleID,
		DoctorUserID: doctorID,
		DoctorName:   fmt.Sprintf("Dr. %d", doctorID),
		Date:         date,
		Slots:        SlotList(slots).Clone(),
	}
	m.schedules[s.ID] = s
	return cloneSchedule(s)
}

func (m *memRepo) schedule(id int64) *Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil
	}
	return cloneSchedule(s)
}

func (m *memRepo) slot(scheduleID int64, slotID string) Slot {
	s := m.schedule(scheduleID)
	if s == nil {
		panic(fmt.Sprintf("schedule %d missing", scheduleID))
	}
	i := s.Slots.Find(slotID)
	if i < 0 {
		panic(fmt.Sprintf("slot %s missing", slotID))
	}
	return s.Slots[i]
}

func (m *memRepo) deleteSchedule(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
}

func (m *memRepo) appointment(id int64) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil
	}
	return cloneAppointment(a)
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepo) lastLockOrder() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lockLog) == 0 {
		return nil
	}
	return m.lockLog[len(m.lockLog)-1]
}

// Repository

func (m *memRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	tx := &memTx{
		repo:      m,
		slots:     make(map[int64]SlotList),
		created:   make(map[int64]*Appointment),
		updated:   make(map[int64]*Appointment),
		lockedIDs: make(map[string]bool),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOnCommit != nil {
		return fmt.Errorf("commit transaction: %w", m.failOnCommit)
	}
	for id, slots := range tx.slots {
		if s, ok := m.schedules[id]; ok {
			s.Slots = slots
			m.slotWrites++
		}
	}
	for id, a := range tx.created {
		m.appts[id] = a
	}
	for id, a := range tx.updated {
		m.appts[id] = a
	}
	for _, ev := range tx.events {
		m.nextEventID++
		ev.ID = m.nextEventID
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id int64) (*Appointment, error) {
	if a := m.appointment(id); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) listAppointments(match func(*Appointment) bool) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if match(a) {
			out = append(out, *cloneAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorUserID int64) ([]Appointment, error) {
	return m.listAppointments(func(a *Appointment) bool { return a.DoctorUserID == doctorUserID }), nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientUserID int64) ([]Appointment, error) {
	return m.listAppointments(func(a *Appointment) bool { return a.PatientUserID == patientUserID }), nil
}

func (m *memRepo) ListEventsByAppointment(_ context.Context, appointmentID int64) ([]EventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventLog
	for _, ev := range m.events {
		if ev.AppointmentID != nil && *ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memRepo) CreateSchedule(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScheduleID++
	s.ID = m.nextScheduleID
	s.CreatedAt = m.baseTime
	s.UpdatedAt = m.baseTime
	m.schedules[s.ID] = cloneSchedule(s)
	return nil
}

func (m *memRepo) GetScheduleByID(_ context.Context, id int64) (*Schedule, error) {
	if s := m.schedule(id); s != nil {
		return s, nil
	}
	return nil, ErrScheduleNotFound
}

func (m *memRepo) listSchedules(match func(*Schedule) bool) []Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Schedule
	for _, s := range m.schedules {
		if match(s) {
			out = append(out, *cloneSchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memRepo) ListSchedulesByDoctor(_ context.Context, doctorUserID int64) ([]Schedule, error) {
	return m.listSchedules(func(s *Schedule) bool { return s.DoctorUserID == doctorUserID }), nil
}

func (m *memRepo) ListSchedules(_ context.Context) ([]Schedule, error) {
	return m.listSchedules(func(*Schedule) bool { return true }), nil
}

func (m *memRepo) ListScheduleIDsWithReservations(_ context.Context) ([]int64, error) {
	var ids []int64
	for _, s := range m.listSchedules(func(s *Schedule) bool { return s.Slots.HasReservations() }) {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// Transaction

type memTx struct {
	repo *memRepo

	held      []*sync.Mutex
	lockedIDs map[string]bool
	order     []int64

	slots   map[int64]SlotList
	created map[int64]*Appointment
	updated map[int64]*Appointment
	events  []EventLog
}

func (t *memTx) lock(key string) {
	if t.lockedIDs[key] {
		return
	}
	l := t.repo.rowLock(key)
	l.Lock()
	t.held = append(t.held, l)
	t.lockedIDs[key] = true
}

func (t *memTx) release() {
	t.repo.mu.Lock()
	t.repo.lockLog = append(t.repo.lockLog, t.order)
	t.repo.mu.Unlock()
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
}

func (t *memTx) LockSchedule(ctx context.Context, id int64) (*Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.lock(fmt.Sprintf("schedule:%d", id))
	t.order = append(t.order, id)

	s := t.repo.schedule(id)
	if s == nil {
		return nil, ErrScheduleNotFound
	}
	if staged, ok := t.slots[id]; ok {
		s.Slots = staged.Clone()
	}
	return s, nil
}

func (t *memTx) UpdateScheduleSlots(_ context.Context, id int64, slots SlotList) error {
	if t.repo.schedule(id) == nil {
		return ErrScheduleNotFound
	}
	t.slots[id] = slots.Clone()
	return nil
}

func (t *memTx) LockAppointment(_ context.Context, id int64) (*Appointment, error) {
	t.lock(fmt.Sprintf("appointment:%d", id))
	if a, ok := t.updated[id]; ok {
		return cloneAppointment(a), nil
	}
	a := t.repo.appointment(id)
	if a == nil {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

func (t *memTx) CreateAppointment(_ context.Context, a *Appointment) error {
	t.repo.mu.Lock()
	t.repo.nextApptID++
	a.ID = t.repo.nextApptID
	a.CreatedAt = t.repo.baseTime.Add(time.Duration(a.ID) * time.Second)
	a.UpdatedAt = a.CreatedAt
	t.repo.mu.Unlock()

	t.created[a.ID] = cloneAppointment(a)
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment) error {
	if t.repo.appointment(a.ID) == nil && t.created[a.ID] == nil {
		return ErrAppointmentNotFound
	}
	t.updated[a.ID] = cloneAppointment(a)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	if ev.EventType == "" {
		return errors.New("event type required")
	}
	t.events = append(t.events, ev)
	return nil
}

// -- Test helpers --

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingCache struct {
	noopCache
	mu          sync.Mutex
	invalidated []int64
	available   []Schedule
	hasAvail    bool
}

func (c *countingCache) Invalidate(_ context.Context, doctorUserID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, doctorUserID)
	c.available = nil
	c.hasAvail = false
}

func (c *countingCache) GetAvailable(context.Context) ([]Schedule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available, c.hasAvail
}

func (c *countingCache) SetAvailable(_ context.Context, s []Schedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = s
	c.hasAvail = true
}

func ptr[T any](v T) *T {
	return &v
}
