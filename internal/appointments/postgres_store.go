package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/medbook-agent/internal/clinic"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// PostgresStore persists users and appointments in Postgres. The
// appointments table carries an exclusion constraint over
// (doctor_id, tstzrange(start_at, end_at)) for booked rows; CreateBooked also
// serializes per doctor with an advisory lock so the re-check is exact.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `
		SELECT id::text, role, full_name, email, created_at
		FROM users
		WHERE id = $1
	`
	var u User
	if err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Role, &u.FullName, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, role Role) ([]User, error) {
	query := `
		SELECT id::text, role, full_name, email, created_at
		FROM users
		WHERE role = $1
		ORDER BY full_name, id
	`
	return s.queryUsers(ctx, query, string(role))
}

func (s *PostgresStore) SearchUsersByName(ctx context.Context, role Role, fragment string) ([]User, error) {
	query := `
		SELECT id::text, role, full_name, email, created_at
		FROM users
		WHERE role = $1 AND full_name ILIKE $2 ESCAPE '\'
		ORDER BY full_name, id
	`
	return s.queryUsers(ctx, query, string(role), likePattern(fragment))
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Role, &u.FullName, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate users: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListBookedOverlapping(ctx context.Context, doctorID string, window clinic.Interval) ([]Appointment, error) {
	if _, err := uuid.Parse(doctorID); err != nil {
		return nil, fmt.Errorf("%w: doctor %q", ErrInvalidID, doctorID)
	}
	query := `
		SELECT id::text, doctor_id::text, patient_id::text, start_at, end_at, status, symptoms, created_at
		FROM appointments
		WHERE doctor_id = $1 AND status = 'booked' AND start_at < $3 AND end_at > $2
		ORDER BY start_at
	`
	rows, err := s.pool.Query(ctx, query, doctorID, window.Start.UTC(), window.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: query overlapping: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartAt, &a.EndAt, &a.Status, &a.Symptoms, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate appointments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListBooked(ctx context.Context, q Query) ([]Appointment, error) {
	query := `
		SELECT a.id::text, a.doctor_id::text, a.patient_id::text, a.start_at, a.end_at, a.status, a.symptoms, a.created_at, p.full_name
		FROM appointments a
		JOIN users p ON p.id = a.patient_id
		WHERE a.doctor_id = $1 AND a.status = 'booked' AND a.start_at >= $2 AND a.start_at < $3
	`
	args := []any{q.DoctorID, q.Window.Start.UTC(), q.Window.End.UTC()}
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		query += ` AND a.symptoms ILIKE $4 ESCAPE '\'`
		args = append(args, likePattern(kw))
	}
	query += ` ORDER BY a.start_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query booked: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.StartAt, &a.EndAt, &a.Status, &a.Symptoms, &a.CreatedAt, &a.PatientName); err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate appointments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateBooked(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.DoctorID); err != nil {
		return nil, fmt.Errorf("appointments: lock doctor: %w", err)
	}

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND status = 'booked' AND start_at < $3 AND end_at > $2
		)
	`, req.DoctorID, req.StartAt.UTC(), req.EndAt.UTC()).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("appointments: overlap check: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	appt := Appointment{
		ID:        uuid.New().String(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		StartAt:   req.StartAt.UTC(),
		EndAt:     req.EndAt.UTC(),
		Status:    StatusBooked,
		Symptoms:  req.Symptoms,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, start_at, end_at, status, symptoms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, appt.ID, appt.DoctorID, appt.PatientID, appt.StartAt, appt.EndAt, string(appt.Status), appt.Symptoms).Scan(&appt.CreatedAt)
	if err != nil {
		if isConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return &appt, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, next Status) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("appointments: select status: %w", err)
	}
	if !current.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	if _, err := tx.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(next)); err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgExclusionViolation || pgErr.Code == pgUniqueViolation
	}
	return false
}

// likePattern escapes LIKE metacharacters and wraps the fragment for substring matching.
func likePattern(fragment string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(fragment)) + "%"
}

var _ Store = (*PostgresStore)(nil)
