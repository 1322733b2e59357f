package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/microvault/strain-registry/internal/middleware"
	"github.com/microvault/strain-registry/internal/model"
	"github.com/microvault/strain-registry/internal/repository"
	"github.com/microvault/strain-registry/internal/service"
)

// StrainHandler exposes the strain registry operations over HTTP.
type StrainHandler struct {
	Registry *service.StrainRegistry
}

func NewStrainHandler(registry *service.StrainRegistry) *StrainHandler {
	return &StrainHandler{Registry: registry}
}

// potentialParams lists the flag filters accepted on the list endpoint.
var potentialParams = []string{
	"potential_nitrogen_fixer",
	"potential_phosphate_solubilizer",
	"potential_proteolytic",
	"potential_lipolytic",
	"potential_amylolytic",
	"potential_cellulolytic",
	"potential_antimicrobial",
	"potential_iaa_hormone",
}

type createStrainReq struct {
	StrainCode        string  `json:"strain_code"`
	MicroorganismType string  `json:"microorganism_type"`
	Genus             string  `json:"genus"`
	Species           string  `json:"species"`
	SampleType        string  `json:"sample_type"`
	OriginLocation    string  `json:"origin_location"`
	IsolationDate     *string `json:"isolation_date"`

	CharacteristicsMacroscopic *string `json:"characteristics_macroscopic"`
	CharacteristicsMicroscopic *string `json:"characteristics_microscopic"`
	CharacteristicsBiochemical *string `json:"characteristics_biochemical"`

	PotentialNitrogenFixer        bool `json:"potential_nitrogen_fixer"`
	PotentialPhosphateSolubilizer bool `json:"potential_phosphate_solubilizer"`
	PotentialProteolytic          bool `json:"potential_proteolytic"`
	PotentialLipolytic            bool `json:"potential_lipolytic"`
	PotentialAmylolytic           bool `json:"potential_amylolytic"`
	PotentialCellulolytic         bool `json:"potential_cellulolytic"`
	PotentialAntimicrobial        bool `json:"potential_antimicrobial"`
	PotentialIAAHormone           bool `json:"potential_iaa_hormone"`

	StorageLocation  *string `json:"storage_location"`
	StorageTechnique *string `json:"storage_technique"`
	CultureStock     *string `json:"culture_stock"`

	BiosafetyLevel *int `json:"biosafety_level"`
}

// List returns the strains visible to the caller, filtered, sorted and
// paginated.  The clearance scope is enforced in the service; this handler
// only parses the query string.
func (h *StrainHandler) List(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	q := repository.StrainSearchQuery{
		MicroorganismType: strings.TrimSpace(c.QueryParam("microorganism_type")),
		Genus:             strings.TrimSpace(c.QueryParam("genus")),
		SampleType:        strings.TrimSpace(c.QueryParam("sample_type")),
		Search:            strings.TrimSpace(c.QueryParam("search")),
		SortBy:            c.QueryParam("sort"),
		SortDesc:          !strings.EqualFold(c.QueryParam("order"), "asc"), // DESC unless asc requested
		Page:              atoiDefault(c.QueryParam("page"), 1),
		PageSize:          pageSize(c.QueryParam("limit")),
	}
	if lvl := atoiDefault(c.QueryParam("biosafety"), 0); lvl >= model.ClearanceMin && lvl <= model.ClearanceMax {
		q.BiosafetyLevel = lvl
	}
	for _, name := range potentialParams {
		if v := c.QueryParam(name); v == "true" || v == "1" {
			q.Potentials = append(q.Potentials, name)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	strains, total, err := h.Registry.List(ctx, p, q)
	if err != nil {
		return serviceError(c, err)
	}

	pages := total / int64(q.PageSize)
	if total%int64(q.PageSize) != 0 {
		pages++
	}
	return c.JSON(http.StatusOK, echo.Map{
		"strains": strains,
		"pagination": echo.Map{
			"page":  q.Page,
			"limit": q.PageSize,
			"total": total,
			"pages": pages,
		},
	})
}

// Get returns a single strain.  A record above the caller's clearance is
// 403 with the level comparison in the body; absent or deleted records are
// 404.
func (h *StrainHandler) Get(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid strain id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Registry.Get(ctx, p, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Create registers a new strain owned by the caller.
func (h *StrainHandler) Create(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req createStrainReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	var errs []fieldError
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fieldError{Field: field, Message: field + " required"})
		}
	}
	require("strain_code", req.StrainCode)
	require("microorganism_type", req.MicroorganismType)
	require("genus", req.Genus)
	require("species", req.Species)
	require("sample_type", req.SampleType)
	require("origin_location", req.OriginLocation)
	if req.BiosafetyLevel != nil &&
		(*req.BiosafetyLevel < model.ClearanceMin || *req.BiosafetyLevel > model.ClearanceMax) {
		errs = append(errs, fieldError{Field: "biosafety_level", Message: "biosafety level must be between 1 and 4"})
	}
	if len(errs) > 0 {
		return validationFailed(c, errs)
	}

	s := model.Strain{
		StrainCode:        strings.TrimSpace(req.StrainCode),
		MicroorganismType: strings.TrimSpace(req.MicroorganismType),
		Genus:             strings.TrimSpace(req.Genus),
		Species:           strings.TrimSpace(req.Species),
		SampleType:        strings.TrimSpace(req.SampleType),
		OriginLocation:    strings.TrimSpace(req.OriginLocation),
		IsolationDate:     req.IsolationDate,

		CharacteristicsMacroscopic: req.CharacteristicsMacroscopic,
		CharacteristicsMicroscopic: req.CharacteristicsMicroscopic,
		CharacteristicsBiochemical: req.CharacteristicsBiochemical,

		PotentialNitrogenFixer:        req.PotentialNitrogenFixer,
		PotentialPhosphateSolubilizer: req.PotentialPhosphateSolubilizer,
		PotentialProteolytic:          req.PotentialProteolytic,
		PotentialLipolytic:            req.PotentialLipolytic,
		PotentialAmylolytic:           req.PotentialAmylolytic,
		PotentialCellulolytic:         req.PotentialCellulolytic,
		PotentialAntimicrobial:        req.PotentialAntimicrobial,
		PotentialIAAHormone:           req.PotentialIAAHormone,

		StorageLocation:  req.StorageLocation,
		StorageTechnique: req.StorageTechnique,
		CultureStock:     req.CultureStock,
	}
	if req.BiosafetyLevel != nil {
		s.BiosafetyLevel = *req.BiosafetyLevel
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Registry.Create(ctx, p, &s); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Update applies a partial update: only the fields present in the body
// change.
func (h *StrainHandler) Update(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid strain id"})
	}

	var upd repository.StrainUpdate
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	var errs []fieldError
	if upd.StrainCode != nil && strings.TrimSpace(*upd.StrainCode) == "" {
		errs = append(errs, fieldError{Field: "strain_code", Message: "strain_code cannot be empty"})
	}
	if upd.BiosafetyLevel != nil &&
		(*upd.BiosafetyLevel < model.ClearanceMin || *upd.BiosafetyLevel > model.ClearanceMax) {
		errs = append(errs, fieldError{Field: "biosafety_level", Message: "biosafety level must be between 1 and 4"})
	}
	if len(errs) > 0 {
		return validationFailed(c, errs)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Registry.Update(ctx, p, id, upd)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete soft-deletes a strain.
func (h *StrainHandler) Delete(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid strain id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Registry.Delete(ctx, p, id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "strain deleted", "id": id})
}

// Restore brings a soft-deleted strain back.
func (h *StrainHandler) Restore(c echo.Context) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid strain id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Registry.Restore(ctx, p, id); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "strain restored", "id": id})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// maxPageSize caps the list page size so a huge ?limit= cannot pull the
// whole table in one query.
const maxPageSize = 100

func pageSize(raw string) int {
	n := atoiDefault(raw, 20)
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
