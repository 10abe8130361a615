package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/medbook-agent/internal/appointments"
)

var seedUsers = []appointments.User{
	{ID: "doc-rao", Role: appointments.RoleDoctor, FullName: "Dr. Asha Rao", Email: "asha.rao@clinic.example"},
	{ID: "doc-mehta", Role: appointments.RoleDoctor, FullName: "Dr. Vikram Mehta", Email: "vikram.mehta@clinic.example"},
	{ID: "doc-iyer", Role: appointments.RoleDoctor, FullName: "Dr. Lakshmi Iyer", Email: "lakshmi.iyer@clinic.example"},
	{ID: "pat-kumar", Role: appointments.RolePatient, FullName: "Ravi Kumar", Email: "ravi.kumar@example.com"},
	{ID: "pat-sharma", Role: appointments.RolePatient, FullName: "Priya Sharma", Email: "priya.sharma@example.com"},
}

func seedDirectory(store *appointments.MemoryStore) {
	for _, u := range seedUsers {
		store.AddUser(u)
	}
}

// resolveUser accepts an exact id or a name fragment matching exactly one user.
func resolveUser(ctx context.Context, store *appointments.MemoryStore, ref string) (*appointments.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("a user id or name is required")
	}
	if u, err := store.GetUser(ctx, ref); err == nil {
		return u, nil
	}

	var matches []appointments.User
	for _, role := range []appointments.Role{appointments.RoleDoctor, appointments.RolePatient} {
		found, err := store.SearchUsersByName(ctx, role, ref)
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no user matches %q", ref)
	case 1:
		return &matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.FullName)
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(names, ", "))
	}
}
