package availability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/clinic"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

type fixture struct {
	store   *appointments.MemoryStore
	hours   clinic.Hours
	engine  *Engine
	doctor  appointments.User
	patient appointments.User
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	store := appointments.NewMemoryStore()
	hours := clinic.DefaultHours()
	hours.Now = func() time.Time { return now }
	f := &fixture{
		store:   store,
		hours:   hours,
		engine:  NewEngine(store, hours, logging.Discard()),
		doctor:  store.AddUser(appointments.User{Role: appointments.RoleDoctor, FullName: "Dr. Asha Rao"}),
		patient: store.AddUser(appointments.User{Role: appointments.RolePatient, FullName: "Ravi Kumar"}),
	}
	return f
}

func (f *fixture) book(t *testing.T, start time.Time, d time.Duration) {
	t.Helper()
	_, err := f.store.CreateBooked(context.Background(), appointments.NewAppointment{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, StartAt: start, EndAt: start.Add(d),
	})
	require.NoError(t, err)
}

func (f *fixture) at(day string, hour, minute int) time.Time {
	d, _ := f.hours.ParseDate(day)
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestFreeSlotsSkipsBookedHours(t *testing.T) {
	f := newFixture(t, time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC))
	f.book(t, f.at("2026-01-25", 10, 0), time.Hour)
	f.book(t, f.at("2026-01-25", 14, 0), time.Hour)

	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
	require.Equal(t, StatusSuccess, res.Status)

	var got []string
	for _, s := range res.Slots {
		got = append(got, s.ISOStart)
	}
	assert.Equal(t, []string{
		"2026-01-25T11:00:00+05:30",
		"2026-01-25T12:00:00+05:30",
		"2026-01-25T13:00:00+05:30",
		"2026-01-25T15:00:00+05:30",
		"2026-01-25T16:00:00+05:30",
	}, got)
	assert.Equal(t, "11:00 AM", res.Slots[0].Time)
	assert.Equal(t, "11:00 AM - 12:00 PM", res.Slots[0].Display)
	assert.Equal(t, "On 2026-01-25, the following slots are available: 11:00 AM, 12:00 PM, 01:00 PM, 03:00 PM, 04:00 PM", res.Summary)
}

func TestFreeSlotsPartialOverlapBlocksSlot(t *testing.T) {
	f := newFixture(t, time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC))
	f.book(t, f.at("2026-01-25", 12, 30), 30*time.Minute)

	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, res.Slots, 6)
	for _, s := range res.Slots {
		assert.NotEqual(t, "12:00 PM", s.Time)
	}
}

func TestFreeSlotsPastDateIsOutOfRange(t *testing.T) {
	f := newFixture(t, time.Date(2026, 1, 25, 6, 0, 0, 0, time.UTC))
	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-24")
	assert.Equal(t, StatusOutOfRange, res.Status)
	assert.Empty(t, res.Slots)
}

func TestFreeSlotsTodayDropsElapsedSlots(t *testing.T) {
	// 13:30 IST
	f := newFixture(t, time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC))
	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
	require.Equal(t, StatusSuccess, res.Status)

	var times []string
	for _, s := range res.Slots {
		times = append(times, s.Time)
	}
	assert.Equal(t, []string{"02:00 PM", "03:00 PM", "04:00 PM"}, times)
}

func TestFreeSlotsTodayFullyBooked(t *testing.T) {
	// 16:30 IST, the last slot has started
	f := newFixture(t, time.Date(2026, 1, 25, 11, 0, 0, 0, time.UTC))
	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
	assert.Equal(t, StatusFullyBooked, res.Status)
	assert.Equal(t, "The doctor is fully booked for today.", res.Message)
	assert.NotNil(t, res.Slots)
	assert.Empty(t, res.Slots)
}

func TestFreeSlotsFutureDayFullyBooked(t *testing.T) {
	f := newFixture(t, time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC))
	f.book(t, f.at("2026-01-25", 10, 0), 7*time.Hour)

	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
	assert.Equal(t, StatusFullyBooked, res.Status)
	assert.Equal(t, "No slots available on 2026-01-25.", res.Message)
}

func TestFreeSlotsInvalidDate(t *testing.T) {
	f := newFixture(t, time.Now())
	res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "tomorrow")
	assert.Equal(t, StatusValidationError, res.Status)
}

type failingStore struct {
	*appointments.MemoryStore
}

func (failingStore) ListBookedOverlapping(context.Context, string, clinic.Interval) ([]appointments.Appointment, error) {
	return nil, errors.New("db down")
}

func TestFreeSlotsStoreFailure(t *testing.T) {
	hours := clinic.DefaultHours()
	hours.Now = func() time.Time { return time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC) }
	engine := NewEngine(failingStore{appointments.NewMemoryStore()}, hours, logging.Discard())

	res := engine.FreeSlots(context.Background(), "d", "2026-01-25")
	assert.Equal(t, StatusSystemError, res.Status)
}

type strictIDStore struct {
	*appointments.MemoryStore
}

func (strictIDStore) ListBookedOverlapping(_ context.Context, doctorID string, _ clinic.Interval) ([]appointments.Appointment, error) {
	return nil, fmt.Errorf("%w: doctor %q", appointments.ErrInvalidID, doctorID)
}

func TestFreeSlotsMalformedDoctorIDIsValidationError(t *testing.T) {
	hours := clinic.DefaultHours()
	hours.Now = func() time.Time { return time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC) }
	engine := NewEngine(strictIDStore{appointments.NewMemoryStore()}, hours, logging.Discard())

	res := engine.FreeSlots(context.Background(), "Dr. Rao", "2026-01-25")
	assert.Equal(t, StatusValidationError, res.Status)
	assert.Empty(t, res.Slots)
}

// Every returned slot lies inside working hours and overlaps no booking.
func TestFreeSlotsNeverOverlapRandomBookings(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for round := 0; round < 50; round++ {
		f := newFixture(t, time.Date(2026, 1, 20, 3, 0, 0, 0, time.UTC))
		var booked []clinic.Interval
		for i := 0; i < 1+rng.Intn(5); i++ {
			start := f.at("2026-01-25", 9+rng.Intn(9), 15*rng.Intn(4))
			iv := clinic.Interval{Start: start, End: start.Add(time.Duration(15+15*rng.Intn(6)) * time.Minute)}
			if _, err := f.store.CreateBooked(context.Background(), appointments.NewAppointment{
				DoctorID: f.doctor.ID, PatientID: f.patient.ID, StartAt: iv.Start, EndAt: iv.End,
			}); err == nil {
				booked = append(booked, iv)
			}
		}

		res := f.engine.FreeSlots(context.Background(), f.doctor.ID, "2026-01-25")
		for _, s := range res.Slots {
			slot := clinic.Interval{Start: s.Start, End: s.End}
			assert.True(t, f.hours.WithinWorkingHours(slot))
			for _, b := range booked {
				assert.False(t, slot.Overlaps(b), "slot %s overlaps booking %v", s.Display, b)
			}
		}
		// and every free candidate is reported
		expected := 0
		for _, c := range f.hours.Slots(f.at("2026-01-25", 0, 0)) {
			free := true
			for _, b := range booked {
				if c.Overlaps(b) {
					free = false
				}
			}
			if free {
				expected++
			}
		}
		assert.Len(t, res.Slots, expected)
	}
}
