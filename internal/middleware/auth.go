package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/policy"
	"github.com/microvault/strain-registry/internal/repository"
	"github.com/microvault/strain-registry/internal/utils"
)

// principalKey is the context key under which the resolved Principal is
// stored for handlers.
const principalKey = "principal"

// UserStore is the account lookup the resolver needs.  *repository.UserRepo
// satisfies it.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// Authenticate returns an Echo middleware that resolves a bearer token into
// a live Principal.  The token only identifies the account; role, clearance
// and active status are re-read from the users table on every request, so a
// clearance downgrade or account disable takes effect immediately instead of
// waiting for the token to expire.
//
// Status mapping, kept for client compatibility: a missing token is 401, a
// bad or expired token, an unknown account, or a disabled account is 403.
func Authenticate(secret string, users UserStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "access token required"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Signature, algorithm and expiry failures all collapse into one
			// message so the response cannot be used to probe which check
			// failed.
			uid, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid or expired token"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := users.GetByID(ctx, uid)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return c.JSON(http.StatusForbidden, echo.Map{"error": "user not found"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "auth lookup failed"})
			}
			if !u.Active() {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
			}

			c.Set(principalKey, policy.Principal{
				ID:        u.ID,
				Role:      u.Role,
				Clearance: u.Clearance(),
				Active:    true,
			})
			return next(c)
		}
	}
}

// CurrentPrincipal returns the Principal stored by Authenticate.  The second
// return value is false when the middleware did not run.
func CurrentPrincipal(c echo.Context) (policy.Principal, bool) {
	p, ok := c.Get(principalKey).(policy.Principal)
	return p, ok
}
