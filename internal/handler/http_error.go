package handler

// http_error.go maps service-layer errors onto the HTTP surface.  The
// mapping is kept for compatibility with the original API: conflicts are
// 400, policy denials are 403 except the self-delete and not-deleted cases
// which were always 400, and anything unexpected is a generic 500 with the
// detail confined to the server log.

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/microvault/strain-registry/internal/policy"
	"github.com/microvault/strain-registry/internal/repository"
	"github.com/microvault/strain-registry/internal/service"
)

// fieldError is one entry of a validation error list.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validationFailed writes a 400 with the per-field message list.
func validationFailed(c echo.Context, errs []fieldError) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"errors": errs})
}

var denyMessages = map[policy.Reason]string{
	policy.ReasonAccountDisabled:       "account disabled",
	policy.ReasonInsufficientClearance: "insufficient biosafety clearance",
	policy.ReasonRoleForbidden:         "insufficient permissions",
	policy.ReasonNotOwner:              "you can only modify your own strains",
	policy.ReasonSelfActionBlocked:     "you cannot delete your own account",
	policy.ReasonNotDeleted:            "strain is not deleted",
	policy.ReasonAlreadyInitialized:    "system already initialized",
}

// serviceError translates an error returned by the service layer into a
// JSON response.
func serviceError(c echo.Context, err error) error {
	if de, ok := service.AsDeny(err); ok {
		d := de.Decision
		status := http.StatusForbidden
		switch d.Reason {
		case policy.ReasonSelfActionBlocked, policy.ReasonNotDeleted:
			status = http.StatusBadRequest
		}
		body := echo.Map{
			"error":  denyMessages[d.Reason],
			"reason": string(d.Reason),
		}
		if d.Reason == policy.ReasonInsufficientClearance {
			body["required"] = d.Required
			body["current"] = d.Current
		}
		return c.JSON(status, body)
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrNoFieldsToUpdate):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no fields to update"})
	case errors.Is(err, repository.ErrStrainCodeExists):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "strain code already exists"})
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email already registered"})
	}

	log.Printf("%s %s failed: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
