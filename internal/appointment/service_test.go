package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/config"
)

func newTestService(t *testing.T) (*Service, *memRepo, *fakeClock) {
	t.Helper()
	repo := newMemRepo()
	clock := newFakeClock()
	svc := NewService(repo, nil, zap.NewNop(), config.Config{}, WithClock(clock.Now))
	return svc, repo, clock
}

func bookReq(scheduleID int64, slotID string, patientID int64) BookRequest {
	return BookRequest{
		ScheduleID:    ptr(scheduleID),
		SlotID:        ptr(slotID),
		PatientUserID: patientID,
	}
}

func TestBookThenSecondPatientGetsUnavailable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "9-9:30", Time: "09:00-09:30", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "9-9:30", 1))
	if err != nil {
		t.Fatalf("first book: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", appt.Status)
	}
	if appt.DoctorUserID != 10 || appt.Date != "2026-03-02" || appt.SlotTime != "09:00-09:30" {
		t.Errorf("appointment not filled from schedule: %+v", appt)
	}
	if *appt.ScheduleID != sched.ID || *appt.SlotID != "9-9:30" {
		t.Errorf("appointment references wrong pair: %d/%s", *appt.ScheduleID, *appt.SlotID)
	}

	slot := repo.slot(sched.ID, "9-9:30")
	if slot.Active || slot.hasReservation() {
		t.Errorf("booked slot should be inactive without reservation: %+v", slot)
	}

	_, err = svc.Book(ctx, bookReq(sched.ID, "9-9:30", 2))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("second book: expected ErrSlotUnavailable, got %v", err)
	}
}

func TestConcurrentBookExactlyOneWins(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Time: "10:00", Active: true})

	const workers = 32
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
		other       []error
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(patient int64) {
			defer wg.Done()
			<-start
			_, err := svc.Book(context.Background(), bookReq(sched.ID, "a", patient))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotUnavailable):
				unavailable++
			default:
				other = append(other, err)
			}
		}(int64(i + 1))
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if unavailable != workers-1 {
		t.Errorf("unavailable = %d, want %d", unavailable, workers-1)
	}
	if len(other) > 0 {
		t.Errorf("unexpected errors: %v", other)
	}

	appts, _ := repo.ListAppointmentsByDoctor(context.Background(), 10)
	if len(appts) != 1 {
		t.Errorf("expected exactly one appointment, got %d", len(appts))
	}
}

func TestBookCancelBook(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	first, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, err := svc.Cancel(ctx, first.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if slot := repo.slot(sched.ID, "a"); !slot.Active {
		t.Error("slot should be active again after cancel")
	}

	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 2)); err != nil {
		t.Fatalf("second book after cancel: %v", err)
	}
	if slot := repo.slot(sched.ID, "a"); slot.Active {
		t.Error("slot should be booked again")
	}
}

func TestReserveBlocksOtherPatient(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	until, err := svc.Reserve(ctx, sched.ID, "a", 1, 300*time.Second)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if want := clock.Now().Add(300 * time.Second); !until.Equal(want) {
		t.Errorf("until = %s, want %s", until, want)
	}

	slot := repo.slot(sched.ID, "a")
	if !slot.Active || slot.ReservedBy == nil || *slot.ReservedBy != 1 {
		t.Errorf("unexpected slot after reserve: %+v", slot)
	}

	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 2)); !errors.Is(err, ErrSlotReserved) {
		t.Fatalf("expected ErrSlotReserved, got %v", err)
	}
	if _, err := svc.Reserve(ctx, sched.ID, "a", 2, time.Minute); !errors.Is(err, ErrSlotReserved) {
		t.Fatalf("expected ErrSlotReserved on competing reserve, got %v", err)
	}
}

func TestExpiredReservationDoesNotBlockBooking(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	if _, err := svc.Reserve(ctx, sched.ID, "a", 1, time.Second); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	clock.Advance(1500 * time.Millisecond)

	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 2)); err != nil {
		t.Fatalf("book after expiry: %v", err)
	}
	slot := repo.slot(sched.ID, "a")
	if slot.Active || slot.hasReservation() {
		t.Errorf("expired reservation should be cleared on booking: %+v", slot)
	}
}

func TestReservationHolderCanBook(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	if _, err := svc.Reserve(ctx, sched.ID, "a", 1, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 1)); err != nil {
		t.Fatalf("holder book: %v", err)
	}
	if slot := repo.slot(sched.ID, "a"); slot.hasReservation() {
		t.Error("booking should clear the hold")
	}
}

func TestReserveDefaultTTL(t *testing.T) {
	repo := newMemRepo()
	clock := newFakeClock()
	svc := NewService(repo, nil, zap.NewNop(), config.Config{DefaultReservationTTL: 2 * time.Minute}, WithClock(clock.Now))
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	until, err := svc.Reserve(context.Background(), sched.ID, "a", 1, 0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := until.Sub(clock.Now()); got != 2*time.Minute {
		t.Errorf("ttl = %s, want 2m", got)
	}
}

func TestReserveInactiveSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: false})

	if _, err := svc.Reserve(context.Background(), sched.ID, "a", 1, time.Minute); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookErrors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	tests := []struct {
		name string
		req  BookRequest
		want error
	}{
		{"unknown schedule", bookReq(999, "a", 1), ErrScheduleNotFound},
		{"unknown slot", bookReq(sched.ID, "zz", 1), ErrSlotNotFound},
		{"missing patient", bookReq(sched.ID, "a", 0), ErrValidation},
		{"schedule without slot", BookRequest{ScheduleID: ptr(sched.ID), PatientUserID: 1}, ErrValidation},
		{"slot without schedule", BookRequest{SlotID: ptr("a"), PatientUserID: 1}, ErrValidation},
		{"unslotted without doctor", BookRequest{PatientUserID: 1}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Book(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if slot := repo.slot(sched.ID, "a"); !slot.Active {
		t.Error("failed bookings must not touch the slot")
	}
}

func TestBookWithoutSchedule(t *testing.T) {
	svc, repo, _ := newTestService(t)

	appt, err := svc.Book(context.Background(), BookRequest{
		PatientUserID: 1,
		DoctorUserID:  10,
		DoctorName:    "Dr. Who",
		Date:          "2026-03-04",
		SlotTime:      "11:00-11:30",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.HasSlot() {
		t.Error("unslotted booking should carry no slot reference")
	}
	if stored := repo.appointment(appt.ID); stored == nil || stored.Status != StatusConfirmed {
		t.Errorf("appointment not stored as CONFIRMED: %+v", stored)
	}
}

func TestCommitFailureSurfaces(t *testing.T) {
	svc, repo, _ := newTestService(t)
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})
	repo.failOnCommit = errors.New("connection reset")

	if _, err := svc.Book(context.Background(), bookReq(sched.ID, "a", 1)); err == nil {
		t.Fatal("expected commit error")
	}
	if slot := repo.slot(sched.ID, "a"); !slot.Active {
		t.Error("slot must stay active when the transaction fails")
	}
}

func TestCancelNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Cancel(context.Background(), 404); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestCancelWithDeletedSlotIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.DeleteSlot(ctx, sched.ID, "a"); err != nil {
		t.Fatalf("delete slot: %v", err)
	}

	got, err := svc.Cancel(ctx, appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
}

func TestCancelWithDeletedScheduleIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	repo.deleteSchedule(sched.ID)

	if _, err := svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if stored := repo.appointment(appt.ID); stored.Status != StatusCancelled {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestCancelTwiceKeepsRebookedSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	first, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 2)); err != nil {
		t.Fatalf("rebook: %v", err)
	}

	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if slot := repo.slot(sched.ID, "a"); slot.Active {
		t.Error("repeated cancel released another patient's booking")
	}
}

func TestRescheduleMovesAppointment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	oldSched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Time: "09:00", Active: true})
	newSched := repo.addSchedule(10, "2026-03-03", Slot{ID: "b", Time: "14:00", Active: true})

	appt, err := svc.Book(ctx, bookReq(oldSched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	moved, err := svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(newSched.ID), SlotID: ptr("b")})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if moved.Status != StatusRescheduled {
		t.Errorf("status = %s", moved.Status)
	}
	if *moved.ScheduleID != newSched.ID || *moved.SlotID != "b" {
		t.Errorf("moved to %d/%s", *moved.ScheduleID, *moved.SlotID)
	}
	if moved.Date != "2026-03-03" || moved.SlotTime != "14:00" {
		t.Errorf("date/time not taken from new slot: %s %s", moved.Date, moved.SlotTime)
	}
	if moved.ID != appt.ID {
		t.Error("reschedule must update in place")
	}
	if !repo.slot(oldSched.ID, "a").Active {
		t.Error("old slot should be released")
	}
	if repo.slot(newSched.ID, "b").Active {
		t.Error("new slot should be booked")
	}

	appts, _ := repo.ListAppointmentsByPatient(ctx, 1)
	if len(appts) != 1 {
		t.Errorf("reschedule must not create a second appointment, have %d", len(appts))
	}
}

func TestRescheduleExplicitDateTime(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Time: "10:00", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	moved, err := svc.Reschedule(ctx, appt.ID, RescheduleRequest{
		ScheduleID: ptr(sched.ID),
		SlotID:     ptr("b"),
		Date:       ptr("2026-03-09"),
		SlotTime:   ptr("10:00-10:30"),
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.Date != "2026-03-09" || moved.SlotTime != "10:00-10:30" {
		t.Errorf("explicit values ignored: %s %s", moved.Date, moved.SlotTime)
	}
}

func TestRescheduleToUnavailableSlotRollsBack(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	oldSched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})
	newSched := repo.addSchedule(10, "2026-03-03", Slot{ID: "b", Active: false})

	appt, err := svc.Book(ctx, bookReq(oldSched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, err = svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(newSched.ID), SlotID: ptr("b")})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}

	if repo.slot(oldSched.ID, "a").Active {
		t.Error("old slot must stay booked when the reschedule fails")
	}
	stored := repo.appointment(appt.ID)
	if stored.Status != StatusConfirmed || *stored.ScheduleID != oldSched.ID {
		t.Errorf("appointment changed by failed reschedule: %+v", stored)
	}
}

func TestRescheduleMissingTargets(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, err = svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(int64(999)), SlotID: ptr("a")})
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
	_, err = svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(sched.ID), SlotID: ptr("nope")})
	if !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
	_, err = svc.Reschedule(ctx, 12345, RescheduleRequest{})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
	_, err = svc.Reschedule(ctx, appt.ID, RescheduleRequest{SlotID: ptr("a")})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	if repo.slot(sched.ID, "a").Active {
		t.Error("failed reschedules must leave the booked slot alone")
	}
}

func TestRescheduleWithoutNewSlotReleasesOld(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true})

	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	moved, err := svc.Reschedule(ctx, appt.ID, RescheduleRequest{Date: ptr("2026-04-01")})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.HasSlot() {
		t.Error("appointment should have no slot reference")
	}
	if moved.Date != "2026-04-01" || moved.Status != StatusRescheduled {
		t.Errorf("unexpected appointment: %+v", moved)
	}
	if !repo.slot(sched.ID, "a").Active {
		t.Error("old slot should be released")
	}
}

func TestRescheduleLocksInAscendingOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	low := repo.addSchedule(10, "2026-03-02", Slot{ID: "x", Active: true})
	high := repo.addSchedule(10, "2026-03-03", Slot{ID: "y", Active: true})

	appt, err := svc.Book(ctx, bookReq(high.ID, "y", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(low.ID), SlotID: ptr("x")}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	got := repo.lastLockOrder()
	if !slices.Equal(got, []int64{low.ID, high.ID}) {
		t.Errorf("lock order = %v, want [%d %d]", got, low.ID, high.ID)
	}
}

func TestConcurrentCrossReschedulesDoNotDeadlock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	s1 := repo.addSchedule(10, "2026-03-02", Slot{ID: "a1", Active: true}, Slot{ID: "a2", Active: true})
	s2 := repo.addSchedule(11, "2026-03-02", Slot{ID: "b1", Active: true}, Slot{ID: "b2", Active: true})

	onS1, err := svc.Book(ctx, bookReq(s1.ID, "a1", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	onS2, err := svc.Book(ctx, bookReq(s2.ID, "b1", 2))
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	done := make(chan error, 2)
	go func() {
		_, err := svc.Reschedule(ctx, onS1.ID, RescheduleRequest{ScheduleID: ptr(s2.ID), SlotID: ptr("b2")})
		done <- err
	}()
	go func() {
		_, err := svc.Reschedule(ctx, onS2.ID, RescheduleRequest{ScheduleID: ptr(s1.ID), SlotID: ptr("a2")})
		done <- err
	}()

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("reschedule: %v", err)
			}
		case <-timeout:
			t.Fatal("cross reschedules deadlocked")
		}
	}

	if !repo.slot(s1.ID, "a1").Active || !repo.slot(s2.ID, "b1").Active {
		t.Error("previous slots should be released")
	}
	if repo.slot(s1.ID, "a2").Active || repo.slot(s2.ID, "b2").Active {
		t.Error("target slots should be booked")
	}
}

func TestRescheduleCancelledAppointmentDoesNotReleaseOldSlot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Active: true})

	first, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Book(ctx, bookReq(sched.ID, "a", 2)); err != nil {
		t.Fatalf("rebook: %v", err)
	}

	if _, err := svc.Reschedule(ctx, first.ID, RescheduleRequest{ScheduleID: ptr(sched.ID), SlotID: ptr("b")}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if repo.slot(sched.ID, "a").Active {
		t.Error("slot rebooked by another patient was released")
	}
}

func TestLifecycleEventsRecorded(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Active: true})

	if _, err := svc.Reserve(ctx, sched.ID, "a", 1, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	appt, err := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Reschedule(ctx, appt.ID, RescheduleRequest{ScheduleID: ptr(sched.ID), SlotID: ptr("b")}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if _, err := svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	want := []string{EventSlotReserved, EventAppointmentConfirmed, EventAppointmentRescheduled, EventAppointmentCancelled}
	if got := repo.eventTypes(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	history, err := svc.ListAppointmentEvents(ctx, appt.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("appointment history has %d events, want 3", len(history))
	}
}

func TestListAppointmentsNewestFirst(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Active: true})

	first, _ := svc.Book(ctx, bookReq(sched.ID, "a", 1))
	second, _ := svc.Book(ctx, bookReq(sched.ID, "b", 1))

	byDoctor, err := svc.ListAppointmentsByDoctor(ctx, 10)
	if err != nil {
		t.Fatalf("list by doctor: %v", err)
	}
	if len(byDoctor) != 2 || byDoctor[0].ID != second.ID || byDoctor[1].ID != first.ID {
		t.Errorf("unexpected order: %+v", byDoctor)
	}

	byPatient, err := svc.ListAppointmentsByPatient(ctx, 1)
	if err != nil {
		t.Fatalf("list by patient: %v", err)
	}
	if len(byPatient) != 2 || byPatient[0].ID != second.ID {
		t.Errorf("unexpected order: %+v", byPatient)
	}

	empty, err := svc.ListAppointmentsByDoctor(ctx, 999)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v (%v)", empty, err)
	}
}

func TestReleaseExpiredReservations(t *testing.T) {
	svc, repo, clock := newTestService(t)
	ctx := context.Background()
	sched := repo.addSchedule(10, "2026-03-02", Slot{ID: "a", Active: true}, Slot{ID: "b", Active: true})
	other := repo.addSchedule(11, "2026-03-02", Slot{ID: "c", Active: true})

	if _, err := svc.Reserve(ctx, sched.ID, "a", 1, time.Second); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Reserve(ctx, sched.ID, "b", 2, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	clock.Advance(time.Minute)

	writesBefore := repo.slotWrites
	cleared, err := svc.ReleaseExpiredReservations(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared = %d, want 1", cleared)
	}
	if repo.slot(sched.ID, "a").hasReservation() {
		t.Error("expired reservation should be gone")
	}
	if !repo.slot(sched.ID, "b").HeldAt(clock.Now()) {
		t.Error("live reservation should survive the sweep")
	}
	if repo.slotWrites != writesBefore+1 {
		t.Errorf("expected one slot write, got %d", repo.slotWrites-writesBefore)
	}
	if repo.schedule(other.ID).Slots.HasReservations() {
		t.Error("untouched schedule gained reservations")
	}

	cleared, err = svc.ReleaseExpiredReservations(ctx)
	if err != nil || cleared != 0 {
		t.Errorf("second sweep cleared %d (%v), want 0", cleared, err)
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrSlotUnavailable, true},
		{fmt.Errorf("new slot: %w", ErrSlotReserved), true},
		{ErrSlotNotFound, false},
		{ErrValidation, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsConflict(tt.err); got != tt.want {
			t.Errorf("IsConflict(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}
