package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/medbook-agent/internal/clinic"
)

// MemoryStore keeps users and appointments in process. A single mutex covers
// the overlap check and the insert in CreateBooked.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]User
	appointments map[string]Appointment
	now          func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]User),
		appointments: make(map[string]Appointment),
		now:          time.Now,
	}
}

// AddUser registers a user, assigning an id when blank.
func (s *MemoryStore) AddUser(u User) User {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) ListUsersByRole(ctx context.Context, role Role) ([]User, error) {
	return s.filterUsers(role, func(User) bool { return true }), nil
}

func (s *MemoryStore) SearchUsersByName(ctx context.Context, role Role, fragment string) ([]User, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	return s.filterUsers(role, func(u User) bool {
		return strings.Contains(strings.ToLower(u.FullName), needle)
	}), nil
}

func (s *MemoryStore) filterUsers(role Role, keep func(User) bool) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.Role == role && keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName == out[j].FullName {
			return out[i].ID < out[j].ID
		}
		return out[i].FullName < out[j].FullName
	})
	return out
}

func (s *MemoryStore) ListBookedOverlapping(ctx context.Context, doctorID string, window clinic.Interval) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlappingLocked(doctorID, window), nil
}

func (s *MemoryStore) overlappingLocked(doctorID string, window clinic.Interval) []Appointment {
	var out []Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Status == StatusBooked && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (s *MemoryStore) ListBooked(ctx context.Context, q Query) ([]Appointment, error) {
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.DoctorID != q.DoctorID || a.Status != StatusBooked {
			continue
		}
		if a.StartAt.Before(q.Window.Start) || !a.StartAt.Before(q.Window.End) {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(a.Symptoms), keyword) {
			continue
		}
		if p, ok := s.users[a.PatientID]; ok {
			a.PatientName = p.FullName
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) CreateBooked(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := clinic.Interval{Start: req.StartAt, End: req.EndAt}
	if len(s.overlappingLocked(req.DoctorID, window)) > 0 {
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
		CreatedAt: s.now().UTC(),
	}
	s.appointments[appt.ID] = appt
	return &appt, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return ErrNotFound
	}
	if !a.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	a.Status = next
	s.appointments[id] = a
	return nil
}

func sortByStart(list []Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartAt.Equal(list[j].StartAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartAt.Before(list[j].StartAt)
	})
}

var _ Store = (*MemoryStore)(nil)
