package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

type contextKey string

const actorKey contextKey = "actor"

// Require authenticates the Bearer token and admits only the given roles.
func Require(ti *TokenIssuer, roles ...appointment.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, "Not Authorized Login Again")
				return
			}

			actor, err := ti.Verify(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Not Authorized Login Again")
				return
			}

			if !allowed(actor.Role, roles) {
				deny(w, http.StatusForbidden, "Forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the authenticated actor placed by Require.
func ActorFrom(ctx context.Context) (appointment.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(appointment.Actor)
	return actor, ok
}

// WithActor is used by tests and internal callers that bypass HTTP auth.
func WithActor(ctx context.Context, actor appointment.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket handshakes, so upgrades may pass the token as ?token= instead.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
				return t, true
			}
		}
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func allowed(role appointment.Role, roles []appointment.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": msg,
		"code":    "Unauthorized",
	})
}
