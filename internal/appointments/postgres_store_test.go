package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medbook-agent/internal/clinic"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresStoreGetUser(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New().String()
	created := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM users").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "full_name", "email", "created_at"}).
			AddRow(id, RoleDoctor, "Dr. Asha Rao", "asha@example.com", created))

	u, err := store.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, u.Role)
	assert.Equal(t, "Dr. Asha Rao", u.FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New().String()
	mock.ExpectQuery("FROM users").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := store.GetUser(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)

	// malformed ids never reach the database
	_, err = store.GetUser(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListBookedOverlappingRejectsMalformedDoctorID(t *testing.T) {
	store, mock := newMockStore(t)
	window := clinic.Interval{
		Start: time.Date(2026, 1, 25, 4, 30, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 25, 11, 30, 0, 0, time.UTC),
	}

	_, err := store.ListBookedOverlapping(context.Background(), "Dr. Rao", window)
	assert.ErrorIs(t, err, ErrInvalidID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSearchUsersEscapesPattern(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("full_name ILIKE").
		WithArgs("doctor", `%50\%\_off%`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "full_name", "email", "created_at"}))

	users, err := store.SearchUsersByName(context.Background(), RoleDoctor, " 50%_off ")
	require.NoError(t, err)
	assert.Empty(t, users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListBookedWithKeyword(t *testing.T) {
	store, mock := newMockStore(t)
	doctorID := uuid.New().String()
	start := time.Date(2026, 1, 24, 18, 30, 0, 0, time.UTC)
	window := clinic.Interval{Start: start, End: start.Add(48 * time.Hour)}
	apptStart := start.Add(10 * time.Hour)

	mock.ExpectQuery("JOIN users p").
		WithArgs(doctorID, window.Start, window.End, "%fever%").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_id", "patient_id", "start_at", "end_at", "status", "symptoms", "created_at", "full_name"}).
			AddRow("a1", doctorID, "p1", apptStart, apptStart.Add(time.Hour), StatusBooked, "High fever", start, "Ravi Kumar"))

	list, err := store.ListBooked(context.Background(), Query{DoctorID: doctorID, Window: window, Keyword: " fever "})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ravi Kumar", list[0].PatientName)
	assert.Equal(t, StatusBooked, list[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListBookedOverlapping(t *testing.T) {
	store, mock := newMockStore(t)
	doctorID := uuid.New().String()
	window := clinic.Interval{Start: time.Date(2026, 1, 25, 4, 30, 0, 0, time.UTC), End: time.Date(2026, 1, 25, 11, 30, 0, 0, time.UTC)}

	mock.ExpectQuery("start_at < \\$3 AND end_at > \\$2").
		WithArgs(doctorID, window.Start, window.End).
		WillReturnError(errors.New("connection reset"))

	_, err := store.ListBookedOverlapping(context.Background(), doctorID, window)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func bookingRequest() NewAppointment {
	start := time.Date(2026, 1, 25, 8, 30, 0, 0, time.UTC)
	return NewAppointment{
		DoctorID:  uuid.New().String(),
		PatientID: uuid.New().String(),
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		Symptoms:  "cough",
	}
}

func TestPostgresStoreCreateBooked(t *testing.T) {
	store, mock := newMockStore(t)
	req := bookingRequest()
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(req.DoctorID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.DoctorID, req.StartAt, req.EndAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), req.DoctorID, req.PatientID, req.StartAt, req.EndAt, "booked", "cough").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	appt, err := store.CreateBooked(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, appt.Status)
	assert.Equal(t, created, appt.CreatedAt)
	_, err = uuid.Parse(appt.ID)
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateBookedRecheckFindsOverlap(t *testing.T) {
	store, mock := newMockStore(t)
	req := bookingRequest()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(req.DoctorID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.DoctorID, req.StartAt, req.EndAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.CreateBooked(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateBookedMapsExclusionViolation(t *testing.T) {
	store, mock := newMockStore(t)
	req := bookingRequest()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(req.DoctorID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.DoctorID, req.StartAt, req.EndAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), req.DoctorID, req.PatientID, req.StartAt, req.EndAt, "booked", "cough").
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectRollback()

	_, err := store.CreateBooked(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateBookedOtherErrorsRollBack(t *testing.T) {
	store, mock := newMockStore(t)
	req := bookingRequest()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(req.DoctorID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.DoctorID, req.StartAt, req.EndAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), req.DoctorID, req.PatientID, req.StartAt, req.EndAt, "booked", "cough").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"})
	mock.ExpectRollback()

	_, err := store.CreateBooked(context.Background(), req)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotTaken))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateStatus(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusBooked))
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs(id, "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	require.NoError(t, store.UpdateStatus(context.Background(), id, StatusCancelled))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(StatusCompleted))
	mock.ExpectRollback()
	assert.ErrorIs(t, store.UpdateStatus(context.Background(), id, StatusCancelled), ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
