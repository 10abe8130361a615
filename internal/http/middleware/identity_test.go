package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, secret, sub, role, name string, exp time.Duration) string {
	t.Helper()
	token, err := SignToken(secret, Claims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		},
	})
	require.NoError(t, err)
	return token
}

func callerCapture(got *tools.Caller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := tools.CallerFrom(r.Context())
		if ok {
			*got = c
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestIdentityAttachesCaller(t *testing.T) {
	var got tools.Caller
	req := httptest.NewRequest(http.MethodPost, "/agent/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "p-1", "patient", "Ravi", time.Hour))
	rec := httptest.NewRecorder()

	Identity(testSecret, nil, logging.Discard())(callerCapture(&got)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tools.Caller{UserID: "p-1", Role: appointments.RolePatient, Name: "Ravi"}, got)
}

func TestIdentityRejects(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret":   "Bearer " + signedToken(t, "other", "p-1", "patient", "", time.Hour),
		"expired":        "Bearer " + signedToken(t, testSecret, "p-1", "patient", "", -time.Minute),
		"bad role":       "Bearer " + signedToken(t, testSecret, "p-1", "admin", "", time.Hour),
		"no subject":     "Bearer " + signedToken(t, testSecret, "", "doctor", "", time.Hour),
		"garbage":        "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var got tools.Caller
			req := httptest.NewRequest(http.MethodPost, "/agent/chat", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			Identity(testSecret, nil, logging.Discard())(callerCapture(&got)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, got.UserID)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestIdentityDisabledWithoutSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/agent/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, "p-1", "patient", "", time.Hour))
	rec := httptest.NewRecorder()
	Identity("", nil, logging.Discard())(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityChecksUserStore(t *testing.T) {
	store := appointments.NewMemoryStore()
	store.AddUser(appointments.User{ID: "d-1", Role: appointments.RoleDoctor, FullName: "Dr. Asha Rao", Email: "asha@clinic.test"})

	run := func(sub, role string) (int, tools.Caller) {
		var got tools.Caller
		req := httptest.NewRequest(http.MethodPost, "/agent/chat", nil)
		req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret, sub, role, "claimed", time.Hour))
		rec := httptest.NewRecorder()
		Identity(testSecret, store, logging.Discard())(callerCapture(&got)).ServeHTTP(rec, req)
		return rec.Code, got
	}

	code, got := run("d-1", "doctor")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Dr. Asha Rao", got.Name)

	code, _ = run("d-1", "patient")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = run("ghost", "doctor")
	assert.Equal(t, http.StatusUnauthorized, code)
}
