package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/microvault/strain-registry/internal/config"
	"github.com/microvault/strain-registry/internal/middleware"
	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/service"
	"github.com/microvault/strain-registry/internal/utils"
)

// AuthHandler bundles dependencies for account endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Accounts *service.Accounts
}

func NewAuthHandler(cfg config.Config, accounts *service.Accounts) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: accounts}
}

// ----- DTOs -----

type registerReq struct {
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	FullName       string  `json:"full_name"`
	LabAffiliation *string `json:"lab_affiliation"`
}

type createUserReq struct {
	Email              string  `json:"email"`
	Password           string  `json:"password"`
	FullName           string  `json:"full_name"`
	Role               string  `json:"role"`
	BiosafetyClearance *int    `json:"biosafety_clearance"`
	LabAffiliation     *string `json:"lab_affiliation"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID                 uint64  `json:"id"`
	Email              string  `json:"email"`
	FullName           string  `json:"full_name"`
	Role               string  `json:"role"`
	BiosafetyClearance *int    `json:"biosafety_clearance"`
	LabAffiliation     *string `json:"lab_affiliation,omitempty"`
}

type authResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	User    userPart  `json:"user"`
}

func publicUser(u *model.User) userPart {
	return userPart{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		Role:               u.Role,
		BiosafetyClearance: u.BiosafetyClearance,
		LabAffiliation:     u.LabAffiliation,
	}
}

// validEmail checks the local@domain.tld shape: exactly one @, a non-empty
// local part, and a domain with at least one interior dot.
func validEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	domain := s[at+1:]
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// accountFieldErrors validates the fields shared by both account-creation
// paths and returns the full problem list at once.
func accountFieldErrors(email, password, fullName string) []fieldError {
	var errs []fieldError
	if !validEmail(email) {
		errs = append(errs, fieldError{Field: "email", Message: "valid email required"})
	}
	if strings.TrimSpace(fullName) == "" {
		errs = append(errs, fieldError{Field: "full_name", Message: "full name required"})
	}
	for _, msg := range utils.ValidatePassword(password) {
		errs = append(errs, fieldError{Field: "password", Message: msg})
	}
	return errs
}

// Register is the bootstrap path: it creates the single first admin account
// at clearance 4 and returns 403 forever after.  Self-service registration
// does not exist beyond this; accounts are provisioned by admins.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if errs := accountFieldErrors(req.Email, req.Password, req.FullName); len(errs) > 0 {
		return validationFailed(c, errs)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Accounts.Bootstrap(ctx, service.NewAccountInput{
		Email:          req.Email,
		Password:       req.Password,
		FullName:       strings.TrimSpace(req.FullName),
		LabAffiliation: req.LabAffiliation,
	})
	if err != nil {
		return serviceError(c, err)
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.TokenTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusCreated, authResp{Token: access.Token, Expires: access.Exp, User: publicUser(u)})
}

// CreateUser provisions an account on behalf of the authenticated admin.
// Clearance is mandatory (1..4) for admins and researchers; technicians may
// be created without one.
func (h *AuthHandler) CreateUser(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	errs := accountFieldErrors(req.Email, req.Password, req.FullName)
	switch req.Role {
	case model.RoleAdmin, model.RoleResearcher:
		if req.BiosafetyClearance == nil {
			errs = append(errs, fieldError{Field: "biosafety_clearance", Message: "clearance required for this role"})
		}
	case model.RoleTechnician:
		// clearance optional
	default:
		errs = append(errs, fieldError{Field: "role", Message: "role must be admin, researcher or technician"})
	}
	if req.BiosafetyClearance != nil &&
		(*req.BiosafetyClearance < model.ClearanceMin || *req.BiosafetyClearance > model.ClearanceMax) {
		errs = append(errs, fieldError{Field: "biosafety_clearance", Message: "clearance must be between 1 and 4"})
	}
	if len(errs) > 0 {
		return validationFailed(c, errs)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Accounts.CreateUser(ctx, p, service.NewAccountInput{
		Email:          req.Email,
		Password:       req.Password,
		FullName:       strings.TrimSpace(req.FullName),
		Role:           req.Role,
		Clearance:      req.BiosafetyClearance,
		LabAffiliation: req.LabAffiliation,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": publicUser(u)})
}

// Login verifies credentials and returns a signed token plus the public
// account fields.  Unknown email and wrong password produce the identical
// 401 body.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Accounts.Login(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		return serviceError(c, err)
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.TokenTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, authResp{Token: access.Token, Expires: access.Exp, User: publicUser(u)})
}

// DeleteUser soft-deletes the target account.  Deleting your own account is
// rejected with 400; a missing or already-deleted target is 404.
func (h *AuthHandler) DeleteUser(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Accounts.DeleteUser(ctx, p, id); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
