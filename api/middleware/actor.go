package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/api/responses"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

const (
	userIDHeader   = "X-User-Id"
	userRoleHeader = "X-User-Role"
)

// Actor reads the identity headers the auth gateway sets upstream and attaches
// the actor to the request context. Requests without both headers are rejected;
// this service is never exposed without the gateway in front of it.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			actorID, err := uuid.Parse(r.Header.Get(userIDHeader))
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid user identity"))
				return
			}
			role, err := enums.ParseActorRole(r.Header.Get(userRoleHeader))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid user role"))
				return
			}

			ctx = WithActor(ctx, actorID, role)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actorID.String())
				ctx = logg.WithActorRole(ctx, role.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
