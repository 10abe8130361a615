package appointments

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medbook-agent/internal/clinic"
)

func seedStore(t *testing.T) (*MemoryStore, User, User) {
	t.Helper()
	store := NewMemoryStore()
	doctor := store.AddUser(User{Role: RoleDoctor, FullName: "Dr. Asha Rao", Email: "asha@example.com"})
	patient := store.AddUser(User{Role: RolePatient, FullName: "Ravi Kumar", Email: "ravi@example.com"})
	return store, doctor, patient
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusBooked.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusBooked.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusBooked.CanTransitionTo(StatusBooked))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusBooked))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCancelled))
}

func TestNewAppointmentValidate(t *testing.T) {
	start := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	req := NewAppointment{DoctorID: "d", PatientID: "p", StartAt: start, EndAt: start.Add(time.Hour), Symptoms: "   "}
	require.NoError(t, req.Validate())
	assert.Equal(t, DefaultSymptoms, req.Symptoms)

	bad := NewAppointment{DoctorID: "d", PatientID: "p", StartAt: start, EndAt: start}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInterval)

	missing := NewAppointment{PatientID: "p", StartAt: start, EndAt: start.Add(time.Hour)}
	assert.ErrorIs(t, missing.Validate(), ErrMissingParticipant)
}

func TestMemoryStoreUsers(t *testing.T) {
	store, doctor, _ := seedStore(t)
	store.AddUser(User{Role: RoleDoctor, FullName: "Dr. Aman Mehta", Email: "aman@example.com"})

	got, err := store.GetUser(context.Background(), doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Asha Rao", got.FullName)

	_, err = store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	doctors, err := store.ListUsersByRole(context.Background(), RoleDoctor)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. Aman Mehta", doctors[0].FullName)

	matches, err := store.SearchUsersByName(context.Background(), RoleDoctor, "ASHA")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, doctor.ID, matches[0].ID)

	patients, err := store.SearchUsersByName(context.Background(), RolePatient, "asha")
	require.NoError(t, err)
	assert.Empty(t, patients)
}

func TestMemoryStoreCreateBookedRejectsOverlap(t *testing.T) {
	store, doctor, patient := seedStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 25, 8, 30, 0, 0, time.UTC)

	first, err := store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, first.Status)
	assert.Equal(t, DefaultSymptoms, first.Symptoms)

	_, err = store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start.Add(30 * time.Minute), EndAt: start.Add(90 * time.Minute)})
	assert.ErrorIs(t, err, ErrSlotTaken)

	// back-to-back is fine
	_, err = store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start.Add(time.Hour), EndAt: start.Add(2 * time.Hour)})
	require.NoError(t, err)

	// another doctor is independent
	other := store.AddUser(User{Role: RoleDoctor, FullName: "Dr. Other"})
	_, err = store.CreateBooked(ctx, NewAppointment{DoctorID: other.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour)})
	require.NoError(t, err)
}

func TestMemoryStoreCancelledSlotIsFree(t *testing.T) {
	store, doctor, patient := seedStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 25, 8, 30, 0, 0, time.UTC)

	appt, err := store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, appt.ID, StatusCancelled))
	assert.ErrorIs(t, store.UpdateStatus(ctx, appt.ID, StatusCompleted), ErrInvalidTransition)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "nope", StatusCancelled), ErrNotFound)

	_, err = store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour)})
	require.NoError(t, err)
}

func TestMemoryStoreListBooked(t *testing.T) {
	store, doctor, patient := seedStore(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 25, 4, 30, 0, 0, time.UTC) // 10:00 IST

	for i, symptoms := range []string{"High fever", "Back pain", "fever and cough"} {
		start := day.Add(time.Duration(2-i) * time.Hour)
		_, err := store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour), Symptoms: symptoms})
		require.NoError(t, err)
	}

	window := clinic.Interval{Start: day, End: day.Add(24 * time.Hour)}
	all, err := store.ListBooked(ctx, Query{DoctorID: doctor.ID, Window: window})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartAt.Before(all[1].StartAt))
	assert.Equal(t, "Ravi Kumar", all[0].PatientName)

	fever, err := store.ListBooked(ctx, Query{DoctorID: doctor.ID, Window: window, Keyword: "FEVER"})
	require.NoError(t, err)
	assert.Len(t, fever, 2)

	// window end is exclusive on start time
	narrow, err := store.ListBooked(ctx, Query{DoctorID: doctor.ID, Window: clinic.Interval{Start: day, End: day.Add(time.Hour)}})
	require.NoError(t, err)
	require.Len(t, narrow, 1)
	assert.Equal(t, "fever and cough", narrow[0].Symptoms)
}

// Random concurrent bookings must never leave two overlapping booked
// appointments for the same doctor.
func TestMemoryStoreConcurrentBookingsNeverOverlap(t *testing.T) {
	store, doctor, patient := seedStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 25, 4, 30, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))

	type attempt struct{ start, end time.Time }
	attempts := make([]attempt, 200)
	for i := range attempts {
		start := base.Add(time.Duration(rng.Intn(7*4)) * 15 * time.Minute)
		attempts[i] = attempt{start: start, end: start.Add(time.Duration(1+rng.Intn(4)) * 15 * time.Minute)}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, conflicts int
	for _, a := range attempts {
		wg.Add(1)
		go func(a attempt) {
			defer wg.Done()
			_, err := store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: a.start, EndAt: a.end})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a)
	}
	wg.Wait()

	booked, err := store.ListBookedOverlapping(ctx, doctor.ID, clinic.Interval{Start: base, End: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, created, len(booked))
	assert.Equal(t, len(attempts), created+conflicts)
	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			assert.False(t, booked[i].Interval().Overlaps(booked[j].Interval()), "%v overlaps %v", booked[i], booked[j])
		}
	}
}

func TestMemoryStoreCreateBookedHonoursCancelledContext(t *testing.T) {
	store, doctor, patient := seedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := store.CreateBooked(ctx, NewAppointment{DoctorID: doctor.ID, PatientID: patient.ID, StartAt: start, EndAt: start.Add(time.Hour)})
	assert.ErrorIs(t, err, context.Canceled)
}
