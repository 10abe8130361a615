package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	"github.com/wolfman30/medbook-agent/internal/tools"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

// Claims is the token body the identity middleware accepts. Subject holds
// the user id.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserLookup confirms a token's subject still exists with the claimed role.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*appointments.User, error)
}

// Identity verifies an HMAC-signed bearer token and attaches the caller to
// the request context. When users is non-nil the subject must resolve to a
// user with the same role; the stored name wins over the claim.
func Identity(secret string, users UserLookup, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, "authentication disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeAuthError(w, "missing authorization header")
				return
			}

			claims, err := ParseToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				logger.Debug("rejected bearer token", "error", err)
				writeAuthError(w, "invalid token")
				return
			}

			caller := tools.Caller{UserID: claims.Subject, Role: appointments.Role(claims.Role), Name: claims.Name}
			if users != nil {
				user, err := users.GetUser(r.Context(), claims.Subject)
				if err != nil {
					if !errors.Is(err, appointments.ErrNotFound) {
						logger.Error("identity lookup failed", "user_id", claims.Subject, "error", err)
					}
					writeAuthError(w, "unknown user")
					return
				}
				if user.Role != caller.Role {
					writeAuthError(w, "role mismatch")
					return
				}
				caller.Name = user.FullName
			}

			next.ServeHTTP(w, r.WithContext(tools.WithCaller(r.Context(), caller)))
		})
	}
}

// ParseToken validates tokenString and its role claim.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("middleware: token subject is empty")
	}
	if !appointments.Role(claims.Role).Valid() {
		return nil, errors.New("middleware: token role is not patient or doctor")
	}
	return claims, nil
}

// SignToken issues a token for local tooling and tests.
func SignToken(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
